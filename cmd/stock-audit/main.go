// Command stock-audit checks provisioned stock files for codes that appear
// under more than one catalog key, and can rewrite the files without them.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/veristore/veristore/internal/domain/catalog"
	"github.com/veristore/veristore/internal/domain/pool"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

type stockFile struct {
	key  catalog.Key
	path string
}

// report maps every code found in two or more files to a bitmask of those
// files.
type report struct {
	files      []stockFile
	counts     []uint64
	duplicates map[string]uint
}

func main() {
	var (
		stockDir string
		fix      bool
		capacity uint
	)
	flag.StringVar(&stockDir, "stock-dir", "stock", "directory containing <family>_<sku>.gz stock files")
	flag.BoolVar(&fix, "fix", false, "rewrite stock files, keeping each duplicate only in its first file")
	flag.UintVar(&capacity, "expected-codes", 1_000_000, "expected codes per file, sizes the bloom filters")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	duplicates, err := run(ctx, stockDir, capacity, fix)
	if err != nil {
		slog.Error("stock audit failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if duplicates > 0 && !fix {
		slog.Warn("duplicate codes found, rerun with -fix to remove them", slog.Int("count", duplicates))
		os.Exit(2)
	}
	slog.Info("stock audit completed successfully")
}

func run(ctx context.Context, stockDir string, capacity uint, fix bool) (int, error) {
	files, err := discover(stockDir, catalog.Default().Entries())
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		slog.Info("no stock files found", slog.String("dir", stockDir))
		return 0, nil
	}
	if len(files) > bits.UintSize {
		return 0, errors.Errorf("too many stock files: %d > %d", len(files), bits.UintSize)
	}

	rep, err := audit(ctx, files, capacity)
	if err != nil {
		return 0, err
	}
	for i, f := range rep.files {
		slog.Info("stock file",
			slog.String("key", f.key.String()),
			slog.Uint64("codes", rep.counts[i]),
		)
	}
	slog.Info("duplicate codes found", slog.Int("count", len(rep.duplicates)))

	if fix && len(rep.duplicates) > 0 {
		if err := rewrite(ctx, rep); err != nil {
			return 0, errors.Wrap(err, "rewrite stock files")
		}
	}
	return len(rep.duplicates), nil
}

// discover lists the stock files present in dir in catalog order.
func discover(dir string, entries []catalog.Entry) ([]stockFile, error) {
	var files []stockFile
	for _, e := range entries {
		path := filepath.Join(dir, pool.StockFileName(e.Key))
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, errors.Wrapf(err, "check file %s", path)
		}
		files = append(files, stockFile{key: e.Key, path: path})
	}
	return files, nil
}

// audit runs two passes: one bloom filter per file, then every code is
// tested against the other files' filters. Candidates are confirmed by the
// bitmask merge, since a file only sets its own bit.
func audit(ctx context.Context, files []stockFile, capacity uint) (*report, error) {
	rep := &report{files: files, counts: make([]uint64, len(files))}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))
	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64
			if err := pool.StreamStockFile(gctx, f.path, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("key", f.key.String()), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", f.path)
			}
			filters[i] = filter
			rep.counts[i] = count
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("pass 2: finding candidate codes")
	candidates := make([]map[string]uint, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			found := make(map[string]uint)
			fileBit := uint(1) << uint(i)
			if err := pool.StreamStockFile(gctx, f.path, func(code string) {
				for j, other := range filters {
					if j != i && other.TestString(code) {
						found[code] |= fileBit
						return
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s for candidates", f.path)
			}
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, found := range candidates {
		for code, mask := range found {
			merged[code] |= mask
		}
	}
	rep.duplicates = make(map[string]uint)
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			rep.duplicates[code] = mask
		}
	}
	return rep, nil
}

// rewrite keeps every duplicate only in the first file holding it.
func rewrite(ctx context.Context, rep *report) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, f := range rep.files {
		fileBit := uint(1) << uint(i)
		affected := false
		for _, mask := range rep.duplicates {
			if mask&fileBit != 0 && lowestBit(mask) != fileBit {
				affected = true
				break
			}
		}
		if !affected {
			continue
		}
		g.Go(func() error {
			removed, err := rewriteFile(ctx, f.path, func(code string) bool {
				mask, dup := rep.duplicates[code]
				return !dup || lowestBit(mask) == fileBit
			})
			if err != nil {
				return err
			}
			slog.Info("stock file rewritten", slog.String("key", f.key.String()), slog.Int("removed", removed))
			return nil
		})
	}
	return g.Wait()
}

func rewriteFile(ctx context.Context, path string, keep func(code string) bool) (int, error) {
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, errors.Wrapf(err, "create %s", tmp)
	}
	defer func() { _ = os.Remove(tmp) }()

	gz := pgzip.NewWriter(out)
	w := bufio.NewWriter(gz)
	var removed int
	var writeErr error
	if err := pool.StreamStockFile(ctx, path, func(code string) {
		if writeErr != nil {
			return
		}
		if !keep(code) {
			removed++
			return
		}
		_, writeErr = w.WriteString(code + "\n")
	}); err != nil {
		_ = out.Close()
		return 0, errors.Wrapf(err, "read %s", path)
	}
	if writeErr != nil {
		_ = out.Close()
		return 0, errors.Wrapf(writeErr, "write %s", tmp)
	}
	if err := w.Flush(); err != nil {
		_ = out.Close()
		return 0, errors.Wrapf(err, "flush %s", tmp)
	}
	if err := gz.Close(); err != nil {
		_ = out.Close()
		return 0, errors.Wrapf(err, "close gzip %s", tmp)
	}
	if err := out.Close(); err != nil {
		return 0, errors.Wrapf(err, "close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return 0, errors.Wrapf(err, "replace %s", path)
	}
	return removed, nil
}

func lowestBit(mask uint) uint {
	return mask & -mask
}
