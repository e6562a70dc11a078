package pool

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/veristore/veristore/internal/domain/catalog"
)

const (
	minStockCodeLen = 8
	maxStockCodeLen = 32
)

// StockFileName is the file LoadStockDir reads for key, e.g.
// "verification_Y1.gz".
func StockFileName(key catalog.Key) string {
	return strings.ToLower(string(key.Family())) + "_" + key.SKU() + ".gz"
}

// StreamStockFile calls fn for every code in a gzip-compressed,
// newline-separated stock file. Blank lines and codes outside the accepted
// length window are skipped.
func StreamStockFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for n := 0; scanner.Scan(); n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		code := strings.TrimSpace(scanner.Text())
		if len(code) < minStockCodeLen || len(code) > maxStockCodeLen {
			continue
		}
		fn(code)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}

// LoadStockDir loads provisioned stock for keys from dir, one file per key,
// reading files concurrently. Keys without a file are skipped. It returns
// the load stats of every key that had a file.
func (p *Pool) LoadStockDir(ctx context.Context, dir string, keys []catalog.Key) (map[catalog.Key]LoadStats, error) {
	stats := make([]*LoadStats, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		path := filepath.Join(dir, StockFileName(key))
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, errors.Wrapf(err, "stat %s", path)
		}
		g.Go(func() error {
			var codes []string
			if err := StreamStockFile(ctx, path, func(code string) {
				codes = append(codes, code)
			}); err != nil {
				return errors.Wrapf(err, "load %s", path)
			}
			st := p.Load(key, codes)
			stats[i] = &st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[catalog.Key]LoadStats, len(keys))
	for i, key := range keys {
		if stats[i] != nil {
			out[key] = *stats[i]
		}
	}
	return out, nil
}
