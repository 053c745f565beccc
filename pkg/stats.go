package pkg

import (
	"fmt"

	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/analytics"
	"github.com/vulnfeed/cve-db/pkg/db"
	"github.com/vulnfeed/cve-db/pkg/query"
	"github.com/vulnfeed/cve-db/pkg/severity"
	"github.com/vulnfeed/cve-db/pkg/types"
)

func stats(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if err = db.Init(cfg.CacheDir); err != nil {
		return xerrors.Errorf("db initialize error: %w", err)
	}
	defer db.Close()

	dbc := db.Config{}
	engine := analytics.NewEngine(dbc, severity.Adapter{})
	svc := query.NewService(dbc, engine, query.WithMaxLimit(cfg.MaxLimit))

	top := c.Int("top")
	summary, err := svc.StatsSummary(top)
	if err != nil {
		return xerrors.Errorf("stats error: %w", err)
	}

	fmt.Println("=== CVE count per month ===")
	for _, row := range summary.MonthlyCounts {
		fmt.Printf("%s  %d\n", row.YearMonth, row.Count)
	}

	fmt.Println("\n=== Severity trend by month ===")
	for _, row := range summary.SeverityTrend {
		fmt.Printf("%s  %-18s %d\n", row.YearMonth, types.ColorizeBucket(row.Bucket), row.Count)
	}

	fmt.Println("\n=== Top critical vendors (CVSS >= 9.0) ===")
	for _, row := range summary.TopCriticalVendors {
		fmt.Printf("%-24s %d\n", row.Vendor, row.CriticalCves)
	}

	products, err := svc.TopProducts(top)
	if err != nil {
		return xerrors.Errorf("stats error: %w", err)
	}
	fmt.Println("\n=== Top products by hits ===")
	for _, row := range products {
		fmt.Printf("%-24s %-24s %d\n", row.Vendor, row.Product, row.Hits)
	}

	vectors, err := engine.AttackVectors()
	if err != nil {
		return xerrors.Errorf("stats error: %w", err)
	}
	fmt.Println("\n=== Attack vector distribution ===")
	for _, row := range vectors {
		fmt.Printf("%-12s %d\n", row.Vector, row.Count)
	}

	return nil
}
