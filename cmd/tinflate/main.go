// Command tinflate is a command-line front end over the tinf, gzip,
// zlib, archive, fetch, and tarfs packages.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"

	"github.com/schollz/progressbar/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-tinflate/tinflate/archive"
	"github.com/go-tinflate/tinflate/fetch"
	"github.com/go-tinflate/tinflate/gzip"
	"github.com/go-tinflate/tinflate/tarfs"
	"github.com/go-tinflate/tinflate/tinf"
	"github.com/go-tinflate/tinflate/zlib"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tinflate",
		Short:         "decompress DEFLATE, gzip, and zlib streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCatCmd(), newLsCmd(), newFetchCmd())
	return root
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat FILE...",
		Short: "decompress files and write them to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCat(cmd.OutOrStdout(), args)
		},
	}
}

// runCat decompresses every file in args concurrently via errgroup,
// then writes the results to stdout in argument order. Each file's
// failure is logged and counted but never aborts the rest of the
// batch; the command only reports failure at the end, after every
// file has had a chance to run.
func runCat(stdout io.Writer, files []string) error {
	results := make([][]byte, len(files))
	failures := make([]error, len(files))

	var g errgroup.Group
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			out, err := decompressFile(path)
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", path, err)
				return nil
			}
			results[i] = out
			return nil
		})
	}
	// g.Wait's own error is always nil here since every goroutine
	// above swallows its error into failures; the real error, if any,
	// is assembled below.
	_ = g.Wait()

	var failed int
	for i, out := range results {
		if out != nil {
			if _, err := stdout.Write(out); err != nil {
				return err
			}
			continue
		}
		if failures[i] != nil {
			log.Print(failures[i])
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to decompress", failed, len(files))
	}
	return nil
}

func decompressFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var r io.Reader = f
	var bar *progressbar.ProgressBar
	if info.Size() > 1<<20 {
		bar = progressbar.NewOptions64(info.Size(),
			progressbar.OptionSetBytes64(info.Size()),
			progressbar.OptionSetWriter(os.Stderr))
		r = io.TeeReader(f, bar)
	}

	compressed, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if bar != nil {
		fmt.Fprintln(os.Stderr)
	}

	return decompressDetected(compressed)
}

// decompressDetected sniffs src's container format from its leading
// bytes (gzip's fixed two-byte magic, or a valid zlib CMF/FLG header
// checksum) and falls back to treating it as a raw DEFLATE stream,
// growing the destination buffer on *tinf.BufError the way
// archive.Reader does.
func decompressDetected(src []byte) ([]byte, error) {
	dst := make([]byte, tinf.EstimateOutputSize(len(src)))
	for {
		n, err := decompressOnce(dst, src)
		if err == nil {
			return dst[:n], nil
		}
		if !isBufError(err) {
			return nil, err
		}
		dst = make([]byte, len(dst)*2)
	}
}

func decompressOnce(dst, src []byte) (int, error) {
	switch {
	case len(src) >= 2 && src[0] == 0x1f && src[1] == 0x8b:
		return gzip.Decompress(dst, src)
	case len(src) >= 2 && src[0]&0x0f == 8 && (uint16(src[0])*256+uint16(src[1]))%31 == 0:
		return zlib.Decompress(dst, src)
	default:
		return tinf.Decompress(dst, src)
	}
}

func isBufError(err error) bool {
	var bufErr *tinf.BufError
	return errors.As(err, &bufErr)
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls ARCHIVE.tar.gz",
		Short: "list the members of a tar.gz archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(cmd.OutOrStdout(), args[0])
		},
	}
}

func runLs(stdout io.Writer, path string) error {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	tarBytes, err := decompressGrowing(func(dst []byte) (int, error) {
		return gzip.Decompress(dst, compressed)
	}, len(compressed))
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}

	fsys, err := tarfs.New(tarBytes)
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}

	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		fmt.Fprintln(stdout, p)
		return nil
	})
}

func decompressGrowing(decompress func(dst []byte) (int, error), srcLen int) ([]byte, error) {
	dst := make([]byte, tinf.EstimateOutputSize(srcLen))
	for {
		n, err := decompress(dst)
		if err == nil {
			return dst[:n], nil
		}
		if !isBufError(err) {
			return nil, err
		}
		dst = make([]byte, len(dst)*2)
	}
}

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch URL",
		Short: "fetch and decompress a remote gzip object over ranged HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func runFetch(ctx context.Context, stdout io.Writer, uri string) error {
	size, err := probeSize(ctx, uri)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	ra := fetch.New(ctx, uri, http.DefaultTransport)
	ar := archive.NewReader(ra, size)

	const chunk = 1 << 20
	buf := make([]byte, chunk)
	var out []byte
	for off := int64(0); ; {
		n, err := ar.ReadAt(buf, off)
		out = append(out, buf[:n]...)
		off += int64(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
	}

	_, err = stdout.Write(out)
	return err
}

func probeSize(ctx context.Context, uri string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return 0, err
	}
	res, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.ContentLength < 0 {
		return 0, fmt.Errorf("%q did not report a Content-Length", uri)
	}
	return res.ContentLength, nil
}
