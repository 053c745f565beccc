package pkg

import (
	"context"
	"fmt"

	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/analytics"
	"github.com/vulnfeed/cve-db/pkg/db"
	"github.com/vulnfeed/cve-db/pkg/query"
	"github.com/vulnfeed/cve-db/pkg/severity"
	"github.com/vulnfeed/cve-db/pkg/types"
)

func compare(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Classifier.Endpoint == "" {
		return xerrors.New("a classifier endpoint is required (--classifier-url or config)")
	}

	limit := c.Int("limit")
	if limit == 0 {
		limit = cfg.SampleLimit
	}

	if err = db.Init(cfg.CacheDir); err != nil {
		return xerrors.Errorf("db initialize error: %w", err)
	}
	defer db.Close()

	dbc := db.Config{}
	adapter := severity.NewAdapter(severity.NewHTTPClassifier(cfg.Classifier.Endpoint), cfg.Classifier.Timeout())
	engine := analytics.NewEngine(dbc, adapter)
	svc := query.NewService(dbc, engine, query.WithMaxLimit(cfg.MaxLimit))

	comparison, err := svc.ModelSeveritySummary(context.Background(), limit)
	if err != nil {
		return xerrors.Errorf("compare error: %w", err)
	}

	fmt.Printf("%-18s %-10s %-10s\n", "cve_id", "cvss", "model")
	for _, row := range comparison.Rows {
		model := types.ColorizeBucket(row.ModelBucket)
		if row.Err != "" {
			model = "error"
		}
		fmt.Printf("%-18s %-18s %-18s\n", row.CveID, types.ColorizeBucket(row.CvssBucket), model)
	}

	fmt.Println("\nbucket          cvss  model")
	for _, name := range types.BucketNames {
		fmt.Printf("%-14s %5d %6d\n", name, comparison.CvssCounts[name], comparison.ModelCounts[name])
	}

	fmt.Println("\n=== Model severity by month ===")
	for _, row := range analytics.ModelTrend(comparison.Rows) {
		fmt.Printf("%s  %-18s %d\n", row.YearMonth, types.ColorizeBucket(row.Bucket), row.Count)
	}
	return nil
}
