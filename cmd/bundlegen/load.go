package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bundlesync/engine/internal/domain/bundling"
	"github.com/bundlesync/engine/internal/infrastructure/snapshot"
	"golang.org/x/sync/errgroup"
)

// maxParallelReads bounds how many workbooks are parsed at once.
const maxParallelReads = 4

type fileIssue struct {
	File string
	snapshot.RowIssue
}

type input struct {
	Products   []bundling.ProductSnapshot
	Orders     []bundling.OrderSnapshot
	Skipped    []fileIssue
	Overridden int
}

type readFunc func(path string) (*snapshot.Snapshot, error)

func loadAll(ctx context.Context, paths []string) (*input, error) {
	return load(ctx, paths, snapshot.ReadFile)
}

// load reads every workbook concurrently and merges them in argument order.
func load(ctx context.Context, paths []string, read readFunc) (*input, error) {
	snaps := make([]*snapshot.Snapshot, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := read(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			snaps[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merge(paths, snaps), nil
}

// merge concatenates snapshots. A SKU seen again replaces the earlier
// product. Order IDs are prefixed with the file name when several files are
// merged, since exports from different stores reuse numbering.
func merge(paths []string, snaps []*snapshot.Snapshot) *input {
	out := &input{}
	index := make(map[string]int)
	for i, s := range snaps {
		name := strings.TrimSuffix(filepath.Base(paths[i]), filepath.Ext(paths[i]))
		for _, p := range s.Products {
			if at, ok := index[p.SKU]; ok {
				out.Products[at] = p
				out.Overridden++
				continue
			}
			index[p.SKU] = len(out.Products)
			out.Products = append(out.Products, p)
		}
		for _, o := range s.Orders {
			if len(snaps) > 1 {
				o.OrderID = name + "/" + o.OrderID
			}
			out.Orders = append(out.Orders, o)
		}
		for _, issue := range s.Skipped {
			out.Skipped = append(out.Skipped, fileIssue{File: paths[i], RowIssue: issue})
		}
	}
	return out
}
