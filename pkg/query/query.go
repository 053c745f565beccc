package query

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/analytics"
	"github.com/vulnfeed/cve-db/pkg/db"
	"github.com/vulnfeed/cve-db/pkg/types"
)

const (
	// DefaultMaxLimit bounds result sizes when the caller does not
	// configure one; keeps a bad limit from turning into a full scan
	// of everything.
	DefaultMaxLimit = 1000

	summaryRunes = 200
)

var (
	ErrNotFound     = xerrors.New("not found")
	ErrInvalidID    = xerrors.New("malformed CVE ID")
	ErrInvalidLimit = xerrors.New("limit must be a positive integer within bounds")

	cveIDRegexp = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)
)

// Service is the read-only façade over the store and the analytics
// engine. It validates parameters and shapes results; all business
// logic lives below it.
type Service struct {
	dbc      db.Operation
	engine   analytics.Engine
	maxLimit int
}

type Option func(*Service)

func WithMaxLimit(max int) Option {
	return func(s *Service) {
		s.maxLimit = max
	}
}

func NewService(dbc db.Operation, engine analytics.Engine, opts ...Option) Service {
	s := Service{
		dbc:      dbc,
		engine:   engine,
		maxLimit: DefaultMaxLimit,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// GetByID returns the full canonical record, raw payload included.
func (s Service) GetByID(cveID string) (types.CveRecord, error) {
	if !cveIDRegexp.MatchString(cveID) {
		return types.CveRecord{}, xerrors.Errorf("%q: %w", cveID, ErrInvalidID)
	}
	record, err := s.dbc.GetCveRecord(cveID)
	if err != nil {
		if errors.Is(err, db.ErrRecordNotFound) {
			return types.CveRecord{}, xerrors.Errorf("%s: %w", cveID, ErrNotFound)
		}
		return types.CveRecord{}, xerrors.Errorf("lookup error: %w", err)
	}
	return record, nil
}

// Search lists records having at least one product ref matching the
// given filters, newest publication first. Filters are applied as
// case-insensitive substrings; empty filters mean unfiltered.
func (s Service) Search(vendor, product string, limit int) ([]types.CveSummary, error) {
	if err := s.checkLimit(limit); err != nil {
		return nil, err
	}
	if vendor == "" && product == "" {
		return s.Recent(limit)
	}

	vendor = strings.ToLower(strings.TrimSpace(vendor))
	product = strings.ToLower(strings.TrimSpace(product))

	matched := map[string]struct{}{}
	err := s.dbc.ForEachProductRef(func(ref types.ProductRef) error {
		if vendor != "" && !strings.Contains(ref.Vendor, vendor) {
			return nil
		}
		if product != "" && !strings.Contains(ref.Product, product) {
			return nil
		}
		matched[ref.CveID] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("search error: %w", err)
	}

	summaries := make([]types.CveSummary, 0, len(matched))
	for cveID := range matched {
		record, err := s.dbc.GetCveRecord(cveID)
		if err != nil {
			return nil, xerrors.Errorf("search lookup error: %w", err)
		}
		summaries = append(summaries, summarize(record))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return publishedAfter(summaries[i], summaries[j])
	})
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Recent lists records by publication date, newest first.
func (s Service) Recent(limit int) ([]types.CveSummary, error) {
	if err := s.checkLimit(limit); err != nil {
		return nil, err
	}
	ids, err := s.dbc.RecentCveIDs(limit)
	if err != nil {
		return nil, xerrors.Errorf("recent error: %w", err)
	}

	summaries := make([]types.CveSummary, 0, len(ids))
	for _, cveID := range ids {
		record, err := s.dbc.GetCveRecord(cveID)
		if err != nil {
			return nil, xerrors.Errorf("recent lookup error: %w", err)
		}
		summaries = append(summaries, summarize(record))
	}
	return summaries, nil
}

func (s Service) TopProducts(limit int) ([]types.ProductHits, error) {
	if err := s.checkLimit(limit); err != nil {
		return nil, err
	}
	return s.engine.TopProducts(limit)
}

// StatsSummary bundles the three trend aggregates the dashboard
// consumes in one call.
func (s Service) StatsSummary(topVendors int) (types.StatsSummary, error) {
	if err := s.checkLimit(topVendors); err != nil {
		return types.StatsSummary{}, err
	}

	monthly, err := s.engine.MonthlyCounts()
	if err != nil {
		return types.StatsSummary{}, err
	}
	trend, err := s.engine.SeverityTrend()
	if err != nil {
		return types.StatsSummary{}, err
	}
	vendors, err := s.engine.TopCriticalVendors(topVendors)
	if err != nil {
		return types.StatsSummary{}, err
	}

	return types.StatsSummary{
		MonthlyCounts:      monthly,
		SeverityTrend:      trend,
		TopCriticalVendors: vendors,
	}, nil
}

// ModelSeveritySummary runs the model-vs-CVSS comparison over a
// bounded sample and truncates row summaries for tabular display.
func (s Service) ModelSeveritySummary(ctx context.Context, limit int) (types.BucketComparison, error) {
	if err := s.checkLimit(limit); err != nil {
		return types.BucketComparison{}, err
	}
	comparison, err := s.engine.Compare(ctx, limit)
	if err != nil {
		return types.BucketComparison{}, err
	}
	for i, row := range comparison.Rows {
		comparison.Rows[i].Summary = truncateRunes(row.Summary, summaryRunes)
	}
	return comparison, nil
}

func (s Service) checkLimit(limit int) error {
	if limit <= 0 || limit > s.maxLimit {
		return xerrors.Errorf("limit %d: %w", limit, ErrInvalidLimit)
	}
	return nil
}

func summarize(record types.CveRecord) types.CveSummary {
	return types.CveSummary{
		ID:        record.ID,
		Summary:   record.Summary,
		Published: record.Published,
		CvssV3:    record.CvssV3Score,
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// publishedAfter orders newest first, records without a date last,
// with the CVE ID as a stable tie-breaker.
func publishedAfter(a, b types.CveSummary) bool {
	switch {
	case a.Published == nil && b.Published == nil:
		return a.ID < b.ID
	case a.Published == nil:
		return false
	case b.Published == nil:
		return true
	case !a.Published.Equal(*b.Published):
		return a.Published.After(*b.Published)
	default:
		return a.ID < b.ID
	}
}
