package extract

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRead_HeaderHeadingAndContext(t *testing.T) {
	root := t.TempDir()
	path := writeDoc(t, root, "CTX-1/design-notes.md", `---
tags: [x, y]
category: technical
date: 2024-03-05
---
# Overview

First paragraph with a #Followup hashtag.

Second paragraph.

Third paragraph.
`)

	doc, err := New(root, nil).Read(path)
	require.NoError(t, err)

	assert.Equal(t, "CTX-1", doc.ContextID)
	assert.Equal(t, "Overview", doc.Title)
	assert.Equal(t, []string{"ctx-1", "followup", "x", "y"}, doc.Tags)
	assert.Equal(t, "technical", doc.Category)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), doc.LastModified)
	assert.NotContains(t, doc.Body, "tags:")
	assert.True(t, len(doc.Body) > 0 && doc.Body[0] == '#')
	assert.Equal(t, "CTX-1/design-notes.md", doc.RelPath)
	assert.Equal(t, DocumentID("CTX-1/design-notes.md"), doc.ID)
	assert.Equal(t, ".md", doc.Extension)
	assert.Empty(t, doc.Warnings)
}

func TestRead_TitleFallbacks(t *testing.T) {
	root := t.TempDir()
	ex := New(root, nil)

	withHeaderTitle := writeDoc(t, root, "A/one.md", "---\ntitle: Declared\n---\n# Heading\n\ntext")
	doc, err := ex.Read(withHeaderTitle)
	require.NoError(t, err)
	assert.Equal(t, "Declared", doc.Title)

	noHeading := writeDoc(t, root, "A/meeting_notes-2024.txt", "just some text")
	doc, err = ex.Read(noHeading)
	require.NoError(t, err)
	assert.Equal(t, "meeting notes 2024", doc.Title)
	assert.Equal(t, []string{"a"}, doc.Tags)

	underlined := writeDoc(t, root, "A/standup.txt", "Attendees were Ann and Bob\n---\nDiscussed the release.")
	doc, err = ex.Read(underlined)
	require.NoError(t, err)
	assert.Equal(t, "standup", doc.Title)
	assert.Contains(t, doc.Body, "Attendees were Ann and Bob")
}

func TestPopulate_PanicYieldsMinimalDocument(t *testing.T) {
	// A nil outliner panics inside populate.
	ex := &Extractor{logger: slog.Default()}
	doc := &Document{
		ContextID:  "CTX-1",
		SourcePath: "/content/CTX-1/retro.md",
		FileName:   "retro.md",
		Extension:  ".md",
	}
	modTime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	ex.populate(doc, "---\ncategory: meeting\n---\n# Retro\n\nWhat went well.", modTime)

	assert.Equal(t, "retro.md", doc.Title)
	assert.Equal(t, []string{"ctx-1", "error"}, doc.Tags)
	assert.Empty(t, doc.Category)
	assert.Nil(t, doc.Header)
	assert.Equal(t, modTime.UTC(), doc.LastModified)
	assert.Equal(t, "# Retro\n\nWhat went well.", doc.Body)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, WarningExtractionFailed, doc.Warnings[0].Kind)
	assert.Equal(t, doc.SourcePath, doc.Warnings[0].Path)
}

func TestRead_TagsAsDelimitedString(t *testing.T) {
	root := t.TempDir()
	path := writeDoc(t, root, "Ops/runbook.md", "---\ntags: \"Deploy, Infra; deploy\"\n---\nbody text")

	doc, err := New(root, nil).Read(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy", "infra", "ops"}, doc.Tags)
}

func TestRead_MalformedHeaderDegrades(t *testing.T) {
	root := t.TempDir()
	path := writeDoc(t, root, "Notes/bad.md", "---\ntags: [unclosed\n---\nBody survives.")

	doc, err := New(root, nil).Read(path)
	require.NoError(t, err)
	assert.Equal(t, "Body survives.", doc.Body)
	assert.Equal(t, []string{"notes"}, doc.Tags)
	assert.Empty(t, doc.Category)
	require.Len(t, doc.Warnings, 1)
	assert.Equal(t, WarningMetadataParse, doc.Warnings[0].Kind)
}

func TestRead_UnterminatedHeaderIsBody(t *testing.T) {
	root := t.TempDir()
	path := writeDoc(t, root, "Notes/rule.md", "---\nnot a header\n")

	doc, err := New(root, nil).Read(path)
	require.NoError(t, err)
	assert.Contains(t, doc.Body, "not a header")
	assert.Nil(t, doc.Header)
}

func TestRead_Errors(t *testing.T) {
	root := t.TempDir()
	ex := New(root, nil)

	empty := writeDoc(t, root, "A/empty.md", "  \n\t\n")
	_, err := ex.Read(empty)
	assert.True(t, errors.Is(err, ErrEmptyContent))

	binary := writeDoc(t, root, "A/blob.txt", string([]byte{'a', 0xc3, 0x28, 0xa0, 0xa1}))
	_, err = ex.Read(binary)
	assert.True(t, errors.Is(err, ErrUnreadableEncoding))

	pdf := writeDoc(t, root, "A/file.pdf", "%PDF")
	_, err = ex.Read(pdf)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestRead_UTF16WithBOM(t *testing.T) {
	root := t.TempDir()
	// "Hi" in UTF-16LE with BOM
	path := writeDoc(t, root, "A/utf16.txt", string([]byte{0xff, 0xfe, 'H', 0, 'i', 0}))

	doc, err := New(root, nil).Read(path)
	require.NoError(t, err)
	assert.Equal(t, "Hi", doc.Body)
}

func TestRead_LastModifiedFallsBackToMtime(t *testing.T) {
	root := t.TempDir()
	path := writeDoc(t, root, "A/plain.md", "content")
	mtime := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	doc, err := New(root, nil).Read(path)
	require.NoError(t, err)
	assert.True(t, doc.LastModified.Equal(mtime))
}

func TestNormalizeTags(t *testing.T) {
	got := normalizeTags([]string{" B ", "#a", "b", "", "A"})
	assert.Equal(t, []string{"a", "b"}, got)
}
