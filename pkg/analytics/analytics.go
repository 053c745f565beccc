package analytics

import (
	"sort"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/db"
	"github.com/vulnfeed/cve-db/pkg/set"
	"github.com/vulnfeed/cve-db/pkg/severity"
	"github.com/vulnfeed/cve-db/pkg/types"
)

const criticalThreshold = 9.0

// Engine computes aggregate views over the store. Every aggregate is a
// pure function of the current contents, recomputed per call; there is
// no cached state to go stale.
type Engine struct {
	dbc     db.Operation
	adapter severity.Adapter
}

func NewEngine(dbc db.Operation, adapter severity.Adapter) Engine {
	return Engine{
		dbc:     dbc,
		adapter: adapter,
	}
}

// MonthlyCounts groups records by the calendar month of their
// publication date, oldest month first. Records without a date are
// excluded.
func (e Engine) MonthlyCounts() ([]types.MonthlyCount, error) {
	counts := map[string]int{}
	err := e.dbc.ForEachCveRecord(func(record types.CveRecord) error {
		if record.Published == nil {
			return nil
		}
		counts[record.Published.Format("2006-01")]++
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("monthly counts: %w", err)
	}

	months := lo.Keys(counts)
	sort.Strings(months)

	rows := make([]types.MonthlyCount, 0, len(months))
	for _, ym := range months {
		rows = append(rows, types.MonthlyCount{
			YearMonth: ym,
			Count:     counts[ym],
		})
	}
	return rows, nil
}

// SeverityTrend groups records by (month, CVSS bucket). Unscored
// records and records without a publication date are excluded, and
// zero-count combinations are omitted rather than densified.
func (e Engine) SeverityTrend() ([]types.TrendPoint, error) {
	type key struct {
		ym     string
		bucket types.Bucket
	}
	counts := map[key]int{}
	err := e.dbc.ForEachCveRecord(func(record types.CveRecord) error {
		if record.Published == nil {
			return nil
		}
		bucket := severity.CvssBucket(record.Score())
		if bucket == types.BucketUnknown {
			return nil
		}
		counts[key{
			ym:     record.Published.Format("2006-01"),
			bucket: bucket,
		}]++
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("severity trend: %w", err)
	}

	keys := lo.Keys(counts)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ym != keys[j].ym {
			return keys[i].ym < keys[j].ym
		}
		return keys[i].bucket < keys[j].bucket
	})

	rows := make([]types.TrendPoint, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, types.TrendPoint{
			YearMonth: k.ym,
			Bucket:    k.bucket,
			Count:     counts[k],
		})
	}
	return rows, nil
}

// TopCriticalVendors ranks vendors by the number of distinct critical
// CVEs (score >= 9.0) touching them. A vendor with five products on
// one CVE counts once. Unparseable vendors are dropped.
func (e Engine) TopCriticalVendors(n int) ([]types.VendorCritical, error) {
	critical := set.New[string]()
	err := e.dbc.ForEachCveRecord(func(record types.CveRecord) error {
		if score := record.Score(); score != nil && *score >= criticalThreshold {
			critical.Append(record.ID)
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("top critical vendors: %w", err)
	}

	perVendor := map[string]set.Set[string]{}
	err = e.dbc.ForEachProductRef(func(ref types.ProductRef) error {
		if ref.Vendor == "" || !critical.Contains(ref.CveID) {
			return nil
		}
		cves, ok := perVendor[ref.Vendor]
		if !ok {
			cves = set.New[string]()
			perVendor[ref.Vendor] = cves
		}
		cves.Append(ref.CveID)
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("top critical vendors: %w", err)
	}

	rows := make([]types.VendorCritical, 0, len(perVendor))
	for vendor, cves := range perVendor {
		rows = append(rows, types.VendorCritical{
			Vendor:       vendor,
			CriticalCves: cves.Len(),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CriticalCves != rows[j].CriticalCves {
			return rows[i].CriticalCves > rows[j].CriticalCves
		}
		return rows[i].Vendor < rows[j].Vendor
	})
	return truncate(rows, n), nil
}

// TopProducts ranks (vendor, product) pairs by mapping-row count
// across all CVEs. Multiplicity is intentional here: a product mapped
// from ten CVEs scores ten hits. Unparseable products are dropped.
func (e Engine) TopProducts(n int) ([]types.ProductHits, error) {
	hits := map[string]int{}
	err := e.dbc.ForEachProductRef(func(ref types.ProductRef) error {
		if ref.Product == "" {
			return nil
		}
		hits[ref.Vendor+"\x00"+ref.Product]++
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("top products: %w", err)
	}

	rows := make([]types.ProductHits, 0, len(hits))
	for key, count := range hits {
		vendor, product, _ := strings.Cut(key, "\x00")
		rows = append(rows, types.ProductHits{
			Vendor:  vendor,
			Product: product,
			Hits:    count,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Hits != rows[j].Hits {
			return rows[i].Hits > rows[j].Hits
		}
		if rows[i].Vendor != rows[j].Vendor {
			return rows[i].Vendor < rows[j].Vendor
		}
		return rows[i].Product < rows[j].Product
	})
	return truncate(rows, n), nil
}

func truncate[T any](rows []T, n int) []T {
	if n > 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}
