package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, content *string) *Fetcher {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "docs", r.URL.Query().Get("path"))
		fmt.Fprint(w, `[{"sha":"abc123"}]`)
	})
	mux.HandleFunc("/repos/o/r/contents/docs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		fmt.Fprint(w, `[
			{"type":"dir","name":"CTX-1"},
			{"type":"dir","name":".github"},
			{"type":"file","name":"logo.png"}
		]`)
	})
	mux.HandleFunc("/repos/o/r/contents/docs/CTX-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"type":"file","name":"a.md"},{"type":"file","name":"b.txt"}]`)
	})
	mux.HandleFunc("/repos/o/r/contents/docs/CTX-1/a.md", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"type":"file","name":"a.md","encoding":"base64","sha":"s1","content":%q}`,
			base64.StdEncoding.EncodeToString([]byte(*content)))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := newClient(srv.Client(), "")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	return NewFetcher(client, "o", "r", "/docs/", "main", nil)
}

func TestListDocs(t *testing.T) {
	content := "# A"
	f := newTestFetcher(t, &content)

	docs, err := f.ListDocs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"CTX-1/a.md", "CTX-1/b.txt"}, docs)
}

func TestMirror_WritesOnlyChangedFiles(t *testing.T) {
	content := "# A\n\nfirst"
	f := newTestFetcher(t, &content)
	dest := t.TempDir()
	target := filepath.Join(dest, "CTX-1", "a.md")

	report, err := f.Mirror(context.Background(), dest)
	require.NoError(t, err)
	assert.Equal(t, "abc123", report.CommitSHA)
	assert.Equal(t, 2, report.Listed)
	assert.Equal(t, 1, report.Written)
	assert.Equal(t, []string{"CTX-1/b.txt"}, report.Failed)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	report, err = f.Mirror(context.Background(), dest)
	require.NoError(t, err)
	assert.Zero(t, report.Written)
	assert.Equal(t, 1, report.Unchanged)

	content = "# A\n\nsecond"
	report, err = f.Mirror(context.Background(), dest)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Written)
	got, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestWriteIfChanged(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "file.md")

	written, err := writeIfChanged(target, []byte("x"))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = writeIfChanged(target, []byte("x"))
	require.NoError(t, err)
	assert.False(t, written)

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
