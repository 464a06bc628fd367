// Package loader walks a source tree and reads the documents to be indexed.
//
// Files are read concurrently but returned in lexical path order, so a build
// over the same tree always inserts documents in the same order.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
)

// sniffLen is how much of a file is inspected for NUL bytes.
const sniffLen = 8 << 10

// Document is one file ready for indexing.
type Document struct {
	ID      string
	Path    string
	Content []byte
}

// SkipReason says why a file was left out of the build.
type SkipReason string

const (
	SkipHidden     SkipReason = "hidden"
	SkipBinary     SkipReason = "binary"
	SkipTooLarge   SkipReason = "too_large"
	SkipUnreadable SkipReason = "unreadable"
	SkipIrregular  SkipReason = "irregular"
)

// Options controls which files are read.
type Options struct {
	Workers       int
	IncludeHidden bool
	IncludeBinary bool
	// MaxFileSize of zero means no limit.
	MaxFileSize int64
	// OnSkip, if set, is called once for every file left out. It may be
	// called from several goroutines.
	OnSkip func(path string, reason SkipReason)
}

// OptionsFromConfig maps the loader section of the configuration.
func OptionsFromConfig(cfg config.LoaderConfig) Options {
	return Options{
		Workers:       cfg.Workers,
		IncludeHidden: cfg.IncludeHidden,
		IncludeBinary: cfg.IncludeBinary,
		MaxFileSize:   cfg.MaxFileSize,
	}
}

// Loader reads documents from the local filesystem.
type Loader struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Loader. Workers below one means one.
func New(opts Options) *Loader {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Loader{
		opts:   opts,
		logger: slog.Default().With("component", "loader"),
	}
}

// Walk reads root, which may be a single file or a directory walked
// recursively. Document IDs are paths relative to the parent of root, using
// forward slashes, so indexing "notes" yields IDs like "notes/todo.txt".
func (l *Loader) Walk(ctx context.Context, root string) ([]Document, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %v", apperrors.ErrInvalidSource, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSource, err)
	}
	if !info.Mode().IsRegular() && !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is neither a file nor a directory", apperrors.ErrInvalidSource, root)
	}
	base := filepath.Dir(abs)

	var paths []string
	if info.IsDir() {
		paths, err = l.collect(ctx, abs)
		if err != nil {
			return nil, err
		}
	} else {
		if l.tooLarge(info.Size()) {
			l.skip(abs, SkipTooLarge)
			return nil, nil
		}
		paths = []string{abs}
	}

	docs := make([]*Document, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := l.read(base, path)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d != nil {
			out = append(out, *d)
		}
	}
	l.logger.Debug("source walked", "root", root, "files", len(paths), "documents", len(out))
	return out, nil
}

// collect lists candidate files under dir in lexical order.
func (l *Loader) collect(ctx context.Context, dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == dir {
				return fmt.Errorf("%w: %v", apperrors.ErrInvalidSource, err)
			}
			l.logger.Warn("skipping unreadable entry", "path", path, "error", err)
			l.skip(path, SkipUnreadable)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == dir {
			return nil
		}
		if !l.opts.IncludeHidden && strings.HasPrefix(d.Name(), ".") {
			l.skip(path, SkipHidden)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			l.skip(path, SkipIrregular)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			l.skip(path, SkipUnreadable)
			return nil
		}
		if l.tooLarge(info.Size()) {
			l.skip(path, SkipTooLarge)
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func (l *Loader) read(base, path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			l.logger.Warn("skipping unreadable file", "path", path, "error", err)
			l.skip(path, SkipUnreadable)
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !l.opts.IncludeBinary && isBinary(content) {
		l.skip(path, SkipBinary)
		return nil, nil
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return nil, fmt.Errorf("relativizing %s: %w", path, err)
	}
	return &Document{ID: filepath.ToSlash(rel), Path: path, Content: content}, nil
}

func (l *Loader) tooLarge(size int64) bool {
	return l.opts.MaxFileSize > 0 && size > l.opts.MaxFileSize
}

func (l *Loader) skip(path string, reason SkipReason) {
	l.logger.Debug("file skipped", "path", path, "reason", reason)
	if l.opts.OnSkip != nil {
		l.opts.OnSkip(path, reason)
	}
}

func isBinary(content []byte) bool {
	if len(content) > sniffLen {
		content = content[:sniffLen]
	}
	return bytes.IndexByte(content, 0) >= 0
}
