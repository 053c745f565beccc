package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/xerrors"
	"gopkg.in/cheggaaa/pb.v1"
	"k8s.io/utils/clock"

	"github.com/vulnfeed/cve-db/pkg/db"
	"github.com/vulnfeed/cve-db/pkg/feed"
	"github.com/vulnfeed/cve-db/pkg/log"
	"github.com/vulnfeed/cve-db/pkg/metadata"
	"github.com/vulnfeed/cve-db/pkg/utils"
)

// RunStats counts what one ingestion run did to each record. Rejected
// and PartialLoss are informational; StoreFailures decide whether the
// run itself failed.
type RunStats struct {
	Files         int
	Records       int
	Upserted      int
	Rejected      int
	PartialLoss   int
	StoreFailures int
}

type Ingestor struct {
	dbc              db.Operation
	clock            clock.Clock
	cacheDir         string
	failureThreshold float64
	quiet            bool
}

type Option func(*Ingestor)

func WithClock(c clock.Clock) Option {
	return func(i *Ingestor) {
		i.clock = c
	}
}

// WithOperation overrides the store implementation.
func WithOperation(dbc db.Operation) Option {
	return func(i *Ingestor) {
		i.dbc = dbc
	}
}

// WithFailureThreshold sets the store-failure rate (0..1) above which
// the whole run is reported as failed.
func WithFailureThreshold(threshold float64) Option {
	return func(i *Ingestor) {
		i.failureThreshold = threshold
	}
}

// WithQuiet disables the progress bar.
func WithQuiet() Option {
	return func(i *Ingestor) {
		i.quiet = true
	}
}

func NewIngestor(cacheDir string, opts ...Option) Ingestor {
	i := Ingestor{
		dbc:              db.Config{},
		clock:            clock.RealClock{},
		cacheDir:         cacheDir,
		failureThreshold: 0.1,
	}
	for _, opt := range opts {
		opt(&i)
	}
	return i
}

// Update ingests every feed file under feedDir. One bad record never
// stops the run: rejected records and per-record store failures are
// counted and skipped, and only a failure rate above the configured
// threshold makes the run terminal.
func (i Ingestor) Update(feedDir string) (RunStats, error) {
	var stats RunStats
	var records []json.RawMessage

	err := utils.FileWalk(feedDir, func(r io.Reader, path string) error {
		var envelope feed.Envelope
		if err := json.NewDecoder(r).Decode(&envelope); err != nil {
			return xerrors.Errorf("failed to decode feed file: %w", err)
		}
		stats.Files++
		records = append(records, envelope.Vulnerabilities...)
		records = append(records, envelope.CVEItems...)
		return nil
	})
	if err != nil {
		return stats, xerrors.Errorf("error in feed walk: %w", err)
	}
	stats.Records = len(records)

	log.Info("Ingesting feed records", log.DirPath(feedDir),
		log.Int("files", stats.Files), log.Int("records", stats.Records))

	var bar *pb.ProgressBar
	if !i.quiet {
		bar = pb.StartNew(len(records))
	}
	for _, raw := range records {
		if bar != nil {
			bar.Increment()
		}
		i.ingestOne(raw, &stats)
	}
	if bar != nil {
		bar.Finish()
	}

	if stats.Records > 0 {
		rate := float64(stats.StoreFailures) / float64(stats.Records)
		if rate > i.failureThreshold {
			return stats, xerrors.Errorf("store failure rate %.2f exceeded threshold %.2f",
				rate, i.failureThreshold)
		}
	}

	if err = i.saveMetadata(stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func (i Ingestor) ingestOne(raw json.RawMessage, stats *RunStats) {
	normalized, err := feed.Normalize(raw)
	if err != nil {
		if errors.Is(err, feed.ErrMissingID) {
			log.Warn("Rejected record without a usable CVE ID")
		} else {
			log.Warn("Rejected undecodable record", log.Err(err))
		}
		stats.Rejected++
		return
	}
	if len(normalized.Lossy) > 0 {
		log.Debug("Stored record with partial field loss",
			log.CveID(normalized.Record.ID),
			log.Any("lost", normalized.Lossy))
		stats.PartialLoss++
	}

	err = i.dbc.BatchUpdate(func(tx *bolt.Tx) error {
		return i.dbc.UpsertCveRecord(tx, normalized.Record, normalized.Refs)
	})
	if err != nil {
		log.Error("Upsert failed", log.CveID(normalized.Record.ID), log.Err(err))
		stats.StoreFailures++
		return
	}
	stats.Upserted++
}

func (i Ingestor) saveMetadata(stats RunStats) error {
	now := i.clock.Now().UTC()
	if err := i.dbc.SetMetadata(db.Metadata{
		Version:   db.SchemaVersion,
		UpdatedAt: now,
	}); err != nil {
		return xerrors.Errorf("failed to save metadata: %w", err)
	}

	client := metadata.NewClient(filepath.Dir(db.Path(i.cacheDir)))
	if err := client.Update(metadata.Metadata{
		Version:   db.SchemaVersion,
		UpdatedAt: now,
		Upserted:  stats.Upserted,
		Rejected:  stats.Rejected,
	}); err != nil {
		return xerrors.Errorf("failed to store metadata file: %w", err)
	}
	return nil
}
