package indexer

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/dumpstore"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/bloom"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/metrics"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Index.Bits = 4096
	cfg.Index.Hashes = 5
	cfg.Loader.Workers = 2
	return cfg
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "corpus")
	for name, body := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return root
}

type recordingNotifier struct {
	events []notify.DumpWritten
}

func (n *recordingNotifier) DumpWritten(_ context.Context, ev notify.DumpWritten) error {
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func TestPlan(t *testing.T) {
	ops := Plan(RunConfig{Restore: []string{"a.blm", "", "b.blm"}, Source: "docs", Dump: "out.blm"})
	assert.Equal(t, []Operation{
		OpRestore{Location: "a.blm"},
		OpRestore{Location: "b.blm"},
		OpBuild{Source: "docs"},
		OpDump{Location: "out.blm"},
	}, ops)
	assert.Empty(t, Plan(RunConfig{}))

	kinds := make([]string, len(ops))
	for i, op := range ops {
		kinds[i] = op.Kind().String()
	}
	assert.Equal(t, []string{"restore", "restore", "build", "dump"}, kinds)
}

func TestParamsFromConfig(t *testing.T) {
	p, err := ParamsFromConfig(config.IndexConfig{Bits: 100, Hashes: 3})
	require.NoError(t, err)
	assert.Equal(t, index.Params{Bits: 100, Hashes: 3}, p)

	p, err = ParamsFromConfig(config.IndexConfig{ExpectedTerms: 1000, ErrorRate: 0.01})
	require.NoError(t, err)
	assert.Equal(t, index.Params{Bits: 9586, Hashes: 7}, p)

	_, err = ParamsFromConfig(config.IndexConfig{Bits: 100})
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	_, err = ParamsFromConfig(config.IndexConfig{ExpectedTerms: 10, ErrorRate: 2})
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	_, err = ParamsFromConfig(config.IndexConfig{Bits: 100, Hashes: int(bloom.MaxHashes) + 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
	_, err = ParamsFromConfig(config.IndexConfig{ExpectedTerms: math.MaxInt32, ErrorRate: 1e-12})
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestRun_BuildDumpRestore(t *testing.T) {
	src := writeTree(t, map[string]string{
		"a.txt":     "The quick brown fox",
		"sub/b.txt": "jumps over the lazy dog",
	})
	out := filepath.Join(t.TempDir(), "index.blm")
	m := metrics.New()
	n := &recordingNotifier{}
	r, err := NewRunner(testConfig(), WithMetrics(m), WithNotifier(n))
	require.NoError(t, err)

	built, rep, err := r.Run(context.Background(), Plan(RunConfig{Source: src, Dump: out}))
	require.NoError(t, err)
	assert.Equal(t, []string{"corpus/a.txt", "corpus/sub/b.txt"}, built.DocIDs())
	assert.Equal(t, 2, rep.Indexed)
	assert.Positive(t, rep.DumpBytes)
	assert.Equal(t, 2, rep.Stats.Documents)
	require.Len(t, n.events, 1)
	assert.Equal(t, out, n.events[0].Location)
	assert.Equal(t, uint(4096), n.events[0].Bits)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DumpOperationsTotal.WithLabelValues("save", "ok")))

	restored, rep, err := r.Run(context.Background(), Plan(RunConfig{Restore: []string{out}}))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Restored)
	assert.True(t, restored.Equal(built))
	assert.Equal(t, []string{"corpus/sub/b.txt"}, restored.Query([]string{"lazy", "dog"}))
}

func TestRun_RestoreThenBuildReplaces(t *testing.T) {
	src := writeTree(t, map[string]string{"a.txt": "original words"})
	out := filepath.Join(t.TempDir(), "index.blm")
	r, err := NewRunner(testConfig())
	require.NoError(t, err)
	_, _, err = r.Run(context.Background(), Plan(RunConfig{Source: src, Dump: out}))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("rewritten"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "c.txt"), []byte("fresh"), 0o644))

	store, rep, err := r.Run(context.Background(), Plan(RunConfig{Restore: []string{out}, Source: src}))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Restored)
	assert.Equal(t, 1, rep.Replaced)
	assert.Equal(t, []string{"corpus/a.txt", "corpus/c.txt"}, store.DocIDs())
	assert.Empty(t, store.Query([]string{"original"}))
	assert.Equal(t, []string{"corpus/a.txt"}, store.Query([]string{"rewritten"}))
}

func TestRun_MergeRestores(t *testing.T) {
	dir := t.TempDir()
	left := filepath.Join(dir, "left.blm")
	right := filepath.Join(dir, "right.blm")
	cfg := testConfig()
	r, err := NewRunner(cfg)
	require.NoError(t, err)

	_, _, err = r.Run(context.Background(), Plan(RunConfig{Source: writeTree(t, map[string]string{"x.txt": "left"}), Dump: left}))
	require.NoError(t, err)
	_, _, err = r.Run(context.Background(), Plan(RunConfig{Source: writeTree(t, map[string]string{"x.txt": "right", "y.txt": "extra"}), Dump: right}))
	require.NoError(t, err)

	_, _, err = r.Run(context.Background(), Plan(RunConfig{Restore: []string{left, right}}))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateDocument)

	cfg.Index.Overwrite = true
	r, err = NewRunner(cfg)
	require.NoError(t, err)
	merged, _, err := r.Run(context.Background(), Plan(RunConfig{Restore: []string{left, right}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"corpus/x.txt", "corpus/y.txt"}, merged.DocIDs())
	assert.Equal(t, []string{"corpus/x.txt"}, merged.Query([]string{"right"}))
}

func TestRun_RestoreAfterBuildRejected(t *testing.T) {
	r, err := NewRunner(testConfig())
	require.NoError(t, err)
	_, _, err = r.Run(context.Background(), []Operation{OpBuild{Source: "x"}, OpRestore{Location: "y"}})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRun_MissingDump(t *testing.T) {
	r, err := NewRunner(testConfig())
	require.NoError(t, err)
	_, _, err = r.Run(context.Background(), Plan(RunConfig{Restore: []string{filepath.Join(t.TempDir(), "none.blm")}}))
	assert.ErrorIs(t, err, apperrors.ErrDumpNotFound)
}

func TestRun_CorruptDumpLeavesNoStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.blm")
	require.NoError(t, os.WriteFile(path, []byte("not a dump at all, just text"), 0o644))
	r, err := NewRunner(testConfig())
	require.NoError(t, err)

	store, _, err := r.Run(context.Background(), Plan(RunConfig{Restore: []string{path}}))
	assert.ErrorIs(t, err, apperrors.ErrCorruptData)
	assert.Nil(t, store)
}

func TestRun_EmptyPlanYieldsEmptyStore(t *testing.T) {
	r, err := NewRunner(testConfig())
	require.NoError(t, err)
	store, rep, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, store.Len())
	assert.Equal(t, r.Params(), store.Params())
	assert.Zero(t, rep.Stats.Documents)
}

func TestRun_CompressedDump(t *testing.T) {
	cfg := testConfig()
	cfg.Dump.Compress = true
	opened := map[string]int{}
	r, err := NewRunner(cfg, WithStoreOpener(func(ctx context.Context, loc string) (dumpstore.Store, error) {
		opened[loc]++
		return dumpstore.NewFileStore(loc, 0), nil
	}))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "z.blm")
	src := writeTree(t, map[string]string{"a.txt": "compressible compressible compressible"})
	built, _, err := r.Run(context.Background(), Plan(RunConfig{Source: src, Dump: out}))
	require.NoError(t, err)
	restored, _, err := r.Run(context.Background(), Plan(RunConfig{Restore: []string{out}}))
	require.NoError(t, err)
	assert.True(t, restored.Equal(built))
	assert.Equal(t, 2, opened[out])
}

func TestRun_Cancelled(t *testing.T) {
	r, err := NewRunner(testConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = r.Run(ctx, Plan(RunConfig{Source: t.TempDir()}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_DumpEventHidesPassword(t *testing.T) {
	const location = "redis://:hunter2@db:6379/0/idx"
	path := filepath.Join(t.TempDir(), "remote.blm")
	n := &recordingNotifier{}
	r, err := NewRunner(testConfig(), WithNotifier(n), WithStoreOpener(func(ctx context.Context, loc string) (dumpstore.Store, error) {
		require.Equal(t, location, loc)
		return dumpstore.NewFileStore(path, 0), nil
	}))
	require.NoError(t, err)

	src := writeTree(t, map[string]string{"a.txt": "secret free text"})
	_, _, err = r.Run(context.Background(), Plan(RunConfig{Source: src, Dump: location}))
	require.NoError(t, err)

	require.Len(t, n.events, 1)
	assert.Equal(t, "redis://:xxxxx@db:6379/0/idx", n.events[0].Location)
	assert.NotContains(t, n.events[0].Location, "hunter2")
}
