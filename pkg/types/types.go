package types

import (
	"encoding/json"
	"time"
)

// CveRecord is the canonical form of one upstream vulnerability record.
// Pointer fields distinguish "absent upstream" from a genuine zero
// value; a CVSS score of 0.0 is valid and is not the same as unscored.
type CveRecord struct {
	ID           string          `json:"id"`
	Summary      string          `json:"summary,omitempty"`
	Published    *time.Time      `json:"published,omitempty"`
	LastModified *time.Time      `json:"last_modified,omitempty"`
	CvssV3Score  *float64        `json:"cvss_v3_score,omitempty"`
	CvssV3Vector string          `json:"cvss_v3_vector,omitempty"`
	CvssV2Score  *float64        `json:"cvss_v2_score,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"` // verbatim upstream payload, kept opaque
}

// Score returns the effective CVSS score: v3 when present, otherwise
// v2, otherwise nil. Nil keeps "unscored" distinguishable from 0.0.
func (r CveRecord) Score() *float64 {
	if r.CvssV3Score != nil {
		return r.CvssV3Score
	}
	return r.CvssV2Score
}

// ProductRef ties a CVE to one (vendor, product) pair taken from its
// CPE data. Vendor and product are lower-cased and trimmed; an empty
// string means the component could not be parsed.
type ProductRef struct {
	CveID   string `json:"cve_id"`
	Vendor  string `json:"vendor,omitempty"`
	Product string `json:"product,omitempty"`
}

// CveSummary is the reduced shape returned by listings and searches.
type CveSummary struct {
	ID        string     `json:"id"`
	Summary   string     `json:"summary,omitempty"`
	Published *time.Time `json:"published,omitempty"`
	CvssV3    *float64   `json:"cvss,omitempty"`
}

// Aggregate rows. All of them are computed on demand from the current
// store contents and never persisted.

type MonthlyCount struct {
	YearMonth string `json:"year_month"`
	Count     int    `json:"count"`
}

type TrendPoint struct {
	YearMonth string `json:"year_month"`
	Bucket    Bucket `json:"severity_bucket"`
	Count     int    `json:"count"`
}

type VendorCritical struct {
	Vendor       string `json:"vendor"`
	CriticalCves int    `json:"critical_cves"`
}

type ProductHits struct {
	Vendor  string `json:"vendor,omitempty"`
	Product string `json:"product"`
	Hits    int    `json:"hits"`
}

// ComparisonRow pairs the two independent bucket sources for one CVE.
// Err carries a per-record classification failure; such rows keep
// their CVSS bucket but are left out of the model frequency table.
type ComparisonRow struct {
	CveID       string     `json:"id"`
	Published   *time.Time `json:"published,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	CvssBucket  Bucket     `json:"cvss_bucket"`
	ModelBucket Bucket     `json:"model_bucket"`
	Err         string     `json:"error,omitempty"`
}

type BucketComparison struct {
	Rows        []ComparisonRow `json:"table"`
	CvssCounts  map[string]int  `json:"cvss_counts"`
	ModelCounts map[string]int  `json:"model_counts"`
}

type StatsSummary struct {
	MonthlyCounts      []MonthlyCount   `json:"monthly_counts"`
	SeverityTrend      []TrendPoint     `json:"severity_trend"`
	TopCriticalVendors []VendorCritical `json:"top_critical_vendors"`
}

// AttackVectorCount is the distribution of the CVSS v3 AV metric over
// records that carry a vector string.
type AttackVectorCount struct {
	Vector string `json:"attack_vector"`
	Count  int    `json:"count"`
}
