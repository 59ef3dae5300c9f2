package commands

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/illmade-knight/go-graphicfetch/pkg/cache"
	"github.com/illmade-knight/go-graphicfetch/pkg/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("json output honours level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
		require.NoError(t, err)

		logger.Info().Msg("hidden")
		logger.Warn().Msg("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"message":"shown"`)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := newLogger(config.LoggingConfig{Level: "loud", Format: "json"}, &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestNewStoreFactory(t *testing.T) {
	ctx := context.Background()

	t.Run("none backend is memory only", func(t *testing.T) {
		cfg := config.GetDefaultConfig().Cache
		cfg.Backend = "none"
		assert.Nil(t, newStoreFactory(ctx, cfg, "raw", nil, zerolog.Nop()))
	})

	t.Run("file backend separates storage modes", func(t *testing.T) {
		// Arrange
		cfg := config.GetDefaultConfig().Cache
		cfg.ExternalDir = filepath.Join(t.TempDir(), "external")
		cfg.InternalDir = filepath.Join(t.TempDir(), "internal")
		factory := newStoreFactory(ctx, cfg, "raw", nil, zerolog.Nop())
		require.NotNil(t, factory)

		external, err := factory(cache.StorageExternal)
		require.NoError(t, err)
		defer external.Close()
		internal, err := factory(cache.StorageInternal)
		require.NoError(t, err)
		defer internal.Close()

		name := cache.FileNameForKey("http://example.com/a.png")

		// Act
		require.NoError(t, external.Write(ctx, name, []byte("payload")))

		// Assert
		data, err := external.Read(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), data)
		_, err = internal.Read(ctx, name)
		assert.ErrorIs(t, err, cache.ErrNotFound)

		entries, err := os.ReadDir(filepath.Join(cfg.ExternalDir, "raw"))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestOutputName(t *testing.T) {
	name := outputName("http://example.com/pics/cat.jpg", ".png")
	assert.True(t, strings.HasSuffix(name, "_cat.png"), name)

	raw := outputName("http://example.com/pics/cat.jpg", "")
	assert.Equal(t, cache.FileNameForKey("http://example.com/pics/cat.jpg"), raw)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "graphicfetch dev\n", out.String())
}

func TestFetchCommand(t *testing.T) {
	// Arrange
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var body bytes.Buffer
	require.NoError(t, png.Encode(&body, img))

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(body.Bytes())
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := "logging:\n  level: error\n  format: json\n" +
		"cache:\n  backend: file\n" +
		"  external_dir: " + filepath.Join(dir, "cache-ext") + "\n" +
		"  internal_dir: " + filepath.Join(dir, "cache-int") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))
	outDir := filepath.Join(dir, "out")

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		cfgFile = ""
		fetchOutDir = ""
	})

	target := srv.URL + "/img/dot.png"
	rootCmd.SetArgs([]string{"--config", cfgPath, "fetch", "--out", outDir, target, target})

	// Act
	err := rootCmd.Execute()

	// Assert
	require.NoError(t, err, errOut.String())
	assert.Equal(t, int32(1), hits.Load(), "duplicate URLs should share one download")

	written := filepath.Join(outDir, outputName(target, ".png"))
	data, err := os.ReadFile(written)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
	assert.Contains(t, out.String(), written)

	entries, err := os.ReadDir(filepath.Join(dir, "cache-ext", graphicCacheName))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "decoded graphic should be persisted")
}
