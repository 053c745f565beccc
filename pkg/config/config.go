package config

import (
	"os"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/vulnfeed/cve-db/pkg/utils"
)

// Config carries the tunables of an ingestion/query run. Zero config
// is valid: Default covers everything.
type Config struct {
	CacheDir string `yaml:"cache_dir"`
	FeedDir  string `yaml:"feed_dir"`

	// MaxLimit caps every query limit parameter.
	MaxLimit int `yaml:"max_limit"`

	// SampleLimit bounds the model-vs-CVSS comparison sample.
	SampleLimit int `yaml:"sample_limit"`

	// FailureRateThreshold is the fraction of per-record store
	// failures (0..1) above which an ingestion run is terminal.
	FailureRateThreshold float64 `yaml:"failure_rate_threshold"`

	Classifier Classifier `yaml:"classifier"`
}

type Classifier struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c Classifier) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func Default() Config {
	return Config{
		CacheDir:             utils.CacheDir(),
		FeedDir:              "data/raw",
		MaxLimit:             1000,
		SampleLimit:          200,
		FailureRateThreshold: 0.1,
		Classifier: Classifier{
			TimeoutSeconds: 30,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path
// returns the defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, xerrors.Errorf("failed to read config: %w", err)
	}
	if err = yaml.UnmarshalStrict(b, &cfg); err != nil {
		return Config{}, xerrors.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
