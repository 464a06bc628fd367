package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.DocsIndexedTotal.Add(3)
	b.DocsIndexedTotal.Add(1)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "bloom_documents_indexed_total")
	assert.Contains(t, names, "go_goroutines")
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.StoreDocuments.Set(12)
	m.FilesSkippedTotal.WithLabelValues("binary").Inc()
	path := filepath.Join(t.TempDir(), "bloom.prom")

	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bloom_store_documents 12")
	assert.Contains(t, string(data), `bloom_files_skipped_total{reason="binary"} 1`)
}

func TestHandler(t *testing.T) {
	m := New()
	m.SearchQueriesTotal.WithLabelValues("hit").Inc()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `bloom_search_queries_total{result_type="hit"} 1`)
}
