package main

import (
	"os"

	"github.com/vulnfeed/cve-db/pkg"
	"github.com/vulnfeed/cve-db/pkg/log"
)

var (
	version = "dev"
)

func main() {
	app := pkg.NewApp(version)
	if err := app.Run(os.Args); err != nil {
		log.Error("Fatal error", log.Err(err))
		os.Exit(1)
	}
}
