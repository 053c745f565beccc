package pkg

import (
	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/config"
	"github.com/vulnfeed/cve-db/pkg/db"
	"github.com/vulnfeed/cve-db/pkg/ingest"
	"github.com/vulnfeed/cve-db/pkg/log"
)

func build(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if err = db.Init(cfg.CacheDir); err != nil {
		return xerrors.Errorf("db initialize error: %w", err)
	}
	defer db.Close()

	opts := []ingest.Option{
		ingest.WithFailureThreshold(cfg.FailureRateThreshold),
	}
	if c.Bool("quiet") {
		opts = append(opts, ingest.WithQuiet())
	}

	ingestor := ingest.NewIngestor(cfg.CacheDir, opts...)
	stats, err := ingestor.Update(cfg.FeedDir)
	if err != nil {
		return xerrors.Errorf("build error: %w", err)
	}

	log.Info("Build finished",
		log.Int("files", stats.Files),
		log.Int("upserted", stats.Upserted),
		log.Int("rejected", stats.Rejected),
		log.Int("partial_loss", stats.PartialLoss),
		log.Int("store_failures", stats.StoreFailures))
	return nil
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if dir := c.String("cache-dir"); dir != "" {
		cfg.CacheDir = dir
	}
	if dir := c.String("feed-dir"); dir != "" {
		cfg.FeedDir = dir
	}
	if url := c.String("classifier-url"); url != "" {
		cfg.Classifier.Endpoint = url
	}
	return cfg, nil
}
