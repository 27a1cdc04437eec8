package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/matsen/bibreview/internal/base"
)

// ParseFile parses a BibReview XML file and records it as the base's Filename.
func ParseFile(path string, opts ...Option) (*base.Base, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bibreview file: %w", err)
	}
	defer f.Close()

	b, err := ParseReader(f, opts...)
	if err != nil {
		return nil, err
	}
	b.Filename = path
	return b, nil
}

// Parse parses a BibReview XML document held in memory.
func Parse(xmlString string, opts ...Option) (*base.Base, error) {
	return ParseReader(strings.NewReader(xmlString), opts...)
}

// ParseReader streams a BibReview XML document in a single pass and returns
// the base sorted by its own sort criteria.
func ParseReader(r io.Reader, opts ...Option) (*base.Base, error) {
	h := newHandler(resolveOptions(opts))
	if err := h.run(r); err != nil {
		return nil, err
	}
	if err := h.base.Sort(); err != nil {
		return nil, err
	}
	return h.base, nil
}

// ParseFiles parses several files concurrently. Results keep the order of
// paths; the first failure cancels files not yet started.
func ParseFiles(ctx context.Context, paths []string, opts ...Option) ([]*base.Base, error) {
	bases := make([]*base.Base, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := ParseFile(path, opts...)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			bases[i] = b
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bases, nil
}
