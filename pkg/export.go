package pkg

import (
	"io"
	"os"

	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/db"
	"github.com/vulnfeed/cve-db/pkg/report"
)

func export(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if err = db.Init(cfg.CacheDir); err != nil {
		return xerrors.Errorf("db initialize error: %w", err)
	}
	defer db.Close()

	var w io.Writer = os.Stdout
	if output := c.String("output"); output != "" {
		f, err := os.Create(output)
		if err != nil {
			return xerrors.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	dbc := db.Config{}
	limit := c.Int("limit")

	switch kind := c.String("kind"); kind {
	case "impact":
		return report.WriteImpact(w, dbc, limit)
	case "attack-vector":
		return report.WriteAttackVectors(w, dbc, limit)
	default:
		return xerrors.Errorf("unknown report kind: %s", kind)
	}
}
