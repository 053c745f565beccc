package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnfeed/cve-db/pkg/config"
)

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		got, err := config.Load("")
		require.NoError(t, err)
		assert.Equal(t, config.Default(), got)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
feed_dir: /srv/feeds
sample_limit: 50
classifier:
  endpoint: http://localhost:8000/classify
  timeout_seconds: 5
`)
		got, err := config.Load(path)
		require.NoError(t, err)

		assert.Equal(t, "/srv/feeds", got.FeedDir)
		assert.Equal(t, 50, got.SampleLimit)
		assert.Equal(t, "http://localhost:8000/classify", got.Classifier.Endpoint)
		assert.Equal(t, 5*time.Second, got.Classifier.Timeout())

		// untouched fields keep their defaults
		assert.Equal(t, config.Default().MaxLimit, got.MaxLimit)
		assert.Equal(t, config.Default().FailureRateThreshold, got.FailureRateThreshold)
	})

	t.Run("unknown key is rejected", func(t *testing.T) {
		path := writeConfig(t, "feeds_dir: /srv/feeds\n")
		_, err := config.Load(path)
		assert.ErrorContains(t, err, "failed to parse config")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config")
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
