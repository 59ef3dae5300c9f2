package commands

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/illmade-knight/go-graphicfetch/pkg/cache"
	"github.com/illmade-knight/go-graphicfetch/pkg/graphic"
	"github.com/illmade-knight/go-graphicfetch/pkg/loader"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	fetchOutDir  string
	fetchRaw     bool
	fetchTimeout time.Duration
)

var fetchCmd = &cobra.Command{
	Use:   "fetch URL [URL...]",
	Short: "Fetch images into the cache and optionally write them to a directory",
	Long: `fetch loads every URL through the cache. Duplicate URLs share a single
download. With --out each result is written to the directory: decoded
graphics as .png (still) or .gif (animated), or the original bytes with --raw.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOutDir, "out", "o", "", "directory to write results to")
	fetchCmd.Flags().BoolVar(&fetchRaw, "raw", false, "cache and write the original bytes without decoding")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 2*time.Minute, "overall deadline for all fetches")
}

func runFetch(cmd *cobra.Command, urls []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), fetchTimeout)
	defer cancel()

	a, err := bootstrap(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Error during cleanup.")
		}
	}()

	if fetchOutDir != "" {
		if err := os.MkdirAll(fetchOutDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var load func(ctx context.Context, key string) (string, []byte, error)
	if fetchRaw {
		l, err := a.rawLoader()
		if err != nil {
			return err
		}
		defer l.Close()
		load = func(ctx context.Context, key string) (string, []byte, error) {
			data, err := await(ctx, l, key)
			return "", data, err
		}
	} else {
		l, err := a.graphicLoader()
		if err != nil {
			return err
		}
		defer l.Close()
		load = func(ctx context.Context, key string) (string, []byte, error) {
			g, err := await(ctx, l, key)
			if err != nil {
				return "", nil, err
			}
			data, err := graphic.EncodeToBytes(g)
			if err != nil {
				return "", nil, err
			}
			if _, ok := g.(*graphic.Animated); ok {
				return ".gif", data, nil
			}
			return ".png", data, nil
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]string, len(urls))
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			ext, data, err := load(gctx, u)
			if err != nil {
				return fmt.Errorf("%s: %w", u, err)
			}
			if fetchOutDir == "" {
				results[i] = fmt.Sprintf("%s\t%d bytes", u, len(data))
				return nil
			}
			out := filepath.Join(fetchOutDir, outputName(u, ext))
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			results[i] = fmt.Sprintf("%s\t%s", u, out)
			return nil
		})
	}
	err = g.Wait()
	for _, r := range results {
		if r != "" {
			cmd.Println(r)
		}
	}
	return err
}

// await registers a listener for key and blocks until its result arrives.
// Registering through Fetch lets repeated URLs share one download.
func await[V any](ctx context.Context, l *loader.Loader[V], key string) (V, error) {
	listener := loader.NewChanListener[V]()
	l.Fetch(key, listener)
	select {
	case r := <-listener.Results():
		return r.Value, r.Err
	case <-ctx.Done():
		l.Cancel(key, listener)
		var zero V
		return zero, ctx.Err()
	}
}

// outputName derives a stable file name for u. The cache file name already
// combines a digest with the last path segment; ext replaces any extension
// when the content was re-encoded.
func outputName(u, ext string) string {
	name := cache.FileNameForKey(u)
	if ext == "" {
		return name
	}
	if parsed, err := url.Parse(u); err == nil {
		if old := path.Ext(parsed.Path); old != "" {
			name = strings.TrimSuffix(name, old)
		}
	}
	return name + ext
}
