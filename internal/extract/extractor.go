// Package extract reads context documents and derives their metadata.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"

	"github.com/mike-a-ellis/ctxindex/internal/markdown"
)

// SupportedExtensions lists the file formats the extractor accepts.
var SupportedExtensions = []string{".md", ".markdown", ".txt", ".text"}

const headerMarker = "---"

var (
	hashtagPattern = regexp.MustCompile(`(?:^|\s)#([A-Za-z][\w-]*)`)
	tagSeparators  = regexp.MustCompile(`[,;]`)
)

var dateKeys = []string{"last_modified", "updated", "modified", "date"}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Supported reports whether path has one of SupportedExtensions.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Extractor turns files under a content root into Documents.
type Extractor struct {
	root     string
	outliner *markdown.Outliner
	logger   *slog.Logger
}

// New creates an Extractor. root is used to compute stable document IDs.
func New(root string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		root:     root,
		outliner: markdown.NewOutliner(),
		logger:   logger,
	}
}

// Read loads path and extracts its metadata. It returns ErrEmptyContent or
// ErrUnreadableEncoding (wrapped) when the file cannot be used at all. Any
// other failure while deriving metadata yields a minimal Document carrying
// a WarningExtractionFailed.
func (e *Extractor) Read(path string) (*Document, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	content, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyContent)
	}

	doc := e.base(path, info)
	e.populate(doc, content, info.ModTime())
	return doc, nil
}

func (e *Extractor) base(path string, info os.FileInfo) *Document {
	name := filepath.Base(path)
	rel := path
	if e.root != "" {
		if r, err := filepath.Rel(e.root, path); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)
	return &Document{
		ID:         DocumentID(rel),
		ContextID:  filepath.Base(filepath.Dir(path)),
		SourcePath: path,
		RelPath:    rel,
		FileName:   name,
		Extension:  strings.ToLower(filepath.Ext(name)),
		Size:       info.Size(),
	}
}

// populate fills in the derived metadata. A panic anywhere in here turns
// into a minimal document instead of failing the file.
func (e *Extractor) populate(doc *Document, content string, modTime time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction failed, using minimal document", "path", doc.SourcePath, "panic", r)
			doc.Title = doc.FileName
			doc.Tags = normalizeTags([]string{doc.ContextID, "error"})
			doc.Category = ""
			doc.Header = nil
			doc.Outline = nil
			doc.LastModified = modTime.UTC()
			doc.Warnings = append(doc.Warnings, Warning{
				Kind:    WarningExtractionFailed,
				Path:    doc.SourcePath,
				Message: fmt.Sprint(r),
			})
			if doc.Body == "" {
				doc.Body = strings.TrimSpace(content)
			}
		}
	}()

	header, body, perr := splitHeader(content)
	if perr != nil {
		e.logger.Warn("ignoring malformed header block", "path", doc.SourcePath, "error", perr)
		doc.Warnings = append(doc.Warnings, Warning{
			Kind:    WarningMetadataParse,
			Path:    doc.SourcePath,
			Message: perr.Error(),
		})
	}
	doc.Header = header
	doc.Body = strings.TrimSpace(body)

	if outline, err := e.outliner.Outline([]byte(doc.Body)); err == nil {
		doc.Outline = outline
	}

	doc.Title = resolveTitle(header, doc.Outline, doc.FileName)
	doc.Tags = normalizeTags(append(append(headerTags(header), hashtags(doc.Body)...), doc.ContextID))
	doc.Category = stringValue(header["category"])
	doc.Summary = stringValue(header["summary"])
	doc.LastModified = resolveDate(header, modTime)
}

// DocumentID derives a stable identifier from a path relative to the content root.
func DocumentID(rel string) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(rel)))
	return "doc:" + hex.EncodeToString(sum[:])
}

// decode accepts UTF-8 (with or without BOM) and BOM-marked UTF-16.
func decode(raw []byte) (string, error) {
	dec := unicode.BOMOverride(encoding.Nop.NewDecoder())
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableEncoding, err)
	}
	if !utf8.Valid(out) {
		return "", ErrUnreadableEncoding
	}
	return strings.ReplaceAll(string(out), "\r\n", "\n"), nil
}

// splitHeader separates a leading YAML block delimited by "---" lines. An
// unterminated block is treated as body text. A block that fails to parse
// is still removed from the body and reported as an error.
func splitHeader(content string) (map[string]any, string, error) {
	if !strings.HasPrefix(content, headerMarker+"\n") {
		return nil, content, nil
	}
	rest := content[len(headerMarker)+1:]

	var block, body string
	found := false
	offset := 0
	for _, line := range strings.SplitAfter(rest, "\n") {
		if strings.TrimRight(line, " \t\n") == headerMarker {
			block, body = rest[:offset], rest[offset+len(line):]
			found = true
			break
		}
		offset += len(line)
	}
	if !found {
		return nil, content, nil
	}

	if strings.TrimSpace(block) == "" {
		return nil, body, nil
	}
	var header map[string]any
	if err := yaml.Unmarshal([]byte(block), &header); err != nil {
		return nil, body, fmt.Errorf("parse header: %w", err)
	}
	return header, body, nil
}

func resolveTitle(header map[string]any, outline []markdown.Heading, fileName string) string {
	if t := stringValue(header["title"]); t != "" {
		return t
	}
	for _, h := range outline {
		if h.Title != "" && !h.Setext {
			return h.Title
		}
	}
	return TitleFromFileName(fileName)
}

// TitleFromFileName strips the extension and replaces separators with spaces.
func TitleFromFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

func headerTags(header map[string]any) []string {
	switch v := header["tags"].(type) {
	case nil:
		return nil
	case string:
		return tagSeparators.Split(v, -1)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringValue(item))
		}
		return out
	default:
		return []string{stringValue(v)}
	}
}

func hashtags(body string) []string {
	var out []string
	for _, m := range hashtagPattern.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	return out
}

// normalizeTags lower-cases, trims, de-duplicates and sorts tags.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func resolveDate(header map[string]any, modTime time.Time) time.Time {
	for _, k := range dateKeys {
		switch v := header[k].(type) {
		case time.Time:
			return v.UTC()
		case string:
			s := strings.TrimSpace(v)
			for _, layout := range dateLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return t.UTC()
				}
			}
		}
	}
	return modTime.UTC()
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}
