package pkg

import (
	"github.com/urfave/cli"

	"github.com/vulnfeed/cve-db/pkg/utils"
)

func NewApp(version string) *cli.App {
	app := cli.NewApp()
	app.Name = "cve-db"
	app.Version = version
	app.Usage = "CVE feed ingestion and analytics"

	cacheDirFlag := cli.StringFlag{
		Name:  "cache-dir",
		Usage: "cache directory path",
		Value: utils.CacheDir(),
	}
	configFlag := cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file path",
	}

	app.Commands = []cli.Command{
		{
			Name:   "build",
			Usage:  "ingest downloaded feed files into the database",
			Action: build,
			Flags: []cli.Flag{
				cacheDirFlag,
				configFlag,
				cli.StringFlag{
					Name:  "feed-dir",
					Usage: "directory holding raw feed JSON files",
				},
				cli.BoolFlag{
					Name:  "quiet",
					Usage: "suppress the progress bar",
				},
			},
		},
		{
			Name:   "stats",
			Usage:  "print aggregate statistics",
			Action: stats,
			Flags: []cli.Flag{
				cacheDirFlag,
				configFlag,
				cli.IntFlag{
					Name:  "top",
					Usage: "number of rows in top-N listings",
					Value: 10,
				},
			},
		},
		{
			Name:   "compare",
			Usage:  "compare model-predicted severity with CVSS buckets",
			Action: compare,
			Flags: []cli.Flag{
				cacheDirFlag,
				configFlag,
				cli.StringFlag{
					Name:  "classifier-url",
					Usage: "severity model endpoint",
				},
				cli.IntFlag{
					Name:  "limit",
					Usage: "sample size",
				},
			},
		},
		{
			Name:   "export",
			Usage:  "write a CSV report",
			Action: export,
			Flags: []cli.Flag{
				cacheDirFlag,
				configFlag,
				cli.StringFlag{
					Name:  "kind",
					Usage: "report kind: impact or attack-vector",
					Value: "impact",
				},
				cli.StringFlag{
					Name:  "output",
					Usage: "output file path (default: stdout)",
				},
				cli.IntFlag{
					Name:  "limit",
					Usage: "maximum number of rows",
					Value: 2000,
				},
			},
		},
	}

	return app
}
