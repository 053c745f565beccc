package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/analytics"
	"github.com/vulnfeed/cve-db/pkg/db"
	"github.com/vulnfeed/cve-db/pkg/severity"
	"github.com/vulnfeed/cve-db/pkg/types"
)

type seedRecord struct {
	record types.CveRecord
	refs   []types.ProductRef
}

func seedEngine(t *testing.T, adapter severity.Adapter) analytics.Engine {
	t.Helper()
	require.NoError(t, db.Init(t.TempDir()))
	t.Cleanup(func() { db.Close() })

	dbc := db.Config{}
	seeds := []seedRecord{
		{
			record: types.CveRecord{
				ID:           "CVE-2024-0001",
				Summary:      "Buffer overflow in Acme Widget.",
				Published:    timePtr(t, "2024-01-15T10:00:00Z"),
				CvssV3Score:  floatPtr(9.8),
				CvssV3Vector: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
			},
			refs: []types.ProductRef{
				{Vendor: "acme", Product: "widget"},
				{Vendor: "globex", Product: "router_os"},
			},
		},
		{
			record: types.CveRecord{
				ID:          "CVE-2024-0002",
				Summary:     "Denial of service in Initech Portal.",
				Published:   timePtr(t, "2024-01-20T00:00:00Z"),
				CvssV2Score: floatPtr(5.0),
			},
		},
		{
			record: types.CveRecord{
				ID:           "CVE-2024-0003",
				Published:    timePtr(t, "2024-02-05T00:00:00Z"),
				CvssV3Score:  floatPtr(9.1),
				CvssV3Vector: "CVSS:3.1/AV:L/AC:L/PR:L/UI:N/S:U/C:H/I:H/A:H",
			},
			refs: []types.ProductRef{
				{Vendor: "acme", Product: "widget"},
				{Vendor: "acme", Product: "gadget"},
			},
		},
		{
			// no publication date, invisible to monthly aggregates
			record: types.CveRecord{
				ID:           "CVE-2024-0004",
				Summary:      "Low impact issue.",
				CvssV3Score:  floatPtr(3.1),
				CvssV3Vector: "CVSS:3.1/AV:N/AC:H/PR:N/UI:R/S:U/C:L/I:N/A:N",
			},
			refs: []types.ProductRef{
				{Vendor: "globex", Product: "router_os"},
			},
		},
		{
			record: types.CveRecord{
				ID:        "CVE-2024-0005",
				Summary:   "Unscored report against a portal.",
				Published: timePtr(t, "2024-02-10T00:00:00Z"),
			},
			refs: []types.ProductRef{
				{Vendor: "", Product: "portal"},
			},
		},
	}
	for _, s := range seeds {
		err := dbc.BatchUpdate(func(tx *bolt.Tx) error {
			return dbc.UpsertCveRecord(tx, s.record, s.refs)
		})
		require.NoError(t, err)
	}
	return analytics.NewEngine(dbc, adapter)
}

func TestEngine_MonthlyCounts(t *testing.T) {
	e := seedEngine(t, severity.Adapter{})

	got, err := e.MonthlyCounts()
	require.NoError(t, err)
	assert.Equal(t, []types.MonthlyCount{
		{YearMonth: "2024-01", Count: 2},
		{YearMonth: "2024-02", Count: 2},
	}, got)
}

func TestEngine_SeverityTrend(t *testing.T) {
	e := seedEngine(t, severity.Adapter{})

	got, err := e.SeverityTrend()
	require.NoError(t, err)
	assert.Equal(t, []types.TrendPoint{
		{YearMonth: "2024-01", Bucket: types.BucketMedium, Count: 1},
		{YearMonth: "2024-01", Bucket: types.BucketCritical, Count: 1},
		{YearMonth: "2024-02", Bucket: types.BucketCritical, Count: 1},
	}, got)
}

func TestEngine_TopCriticalVendors(t *testing.T) {
	e := seedEngine(t, severity.Adapter{})

	got, err := e.TopCriticalVendors(10)
	require.NoError(t, err)
	assert.Equal(t, []types.VendorCritical{
		{Vendor: "acme", CriticalCves: 2},
		{Vendor: "globex", CriticalCves: 1},
	}, got)

	got, err = e.TopCriticalVendors(1)
	require.NoError(t, err)
	assert.Equal(t, []types.VendorCritical{
		{Vendor: "acme", CriticalCves: 2},
	}, got)
}

func TestEngine_TopProducts(t *testing.T) {
	e := seedEngine(t, severity.Adapter{})

	got, err := e.TopProducts(10)
	require.NoError(t, err)
	assert.Equal(t, []types.ProductHits{
		{Vendor: "acme", Product: "widget", Hits: 2},
		{Vendor: "globex", Product: "router_os", Hits: 2},
		{Vendor: "", Product: "portal", Hits: 1},
		{Vendor: "acme", Product: "gadget", Hits: 1},
	}, got)

	got, err = e.TopProducts(2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestEngine_AttackVectors(t *testing.T) {
	e := seedEngine(t, severity.Adapter{})

	got, err := e.AttackVectors()
	require.NoError(t, err)
	assert.Equal(t, []types.AttackVectorCount{
		{Vector: "Network", Count: 2},
		{Vector: "Local", Count: 1},
	}, got)
}

func TestParseAttackVector(t *testing.T) {
	tests := []struct {
		vector string
		want   string
	}{
		{"CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H", "Network"},
		{"CVSS:3.0/AV:A/AC:L/PR:L/UI:N/S:U/C:H/I:N/A:N", "Adjacent"},
		{"CVSS:3.1/AV:P/AC:H/PR:N/UI:R/S:U/C:L/I:N/A:N", "Physical"},
		{"CVSS:3.1/AV:X/AC:L", "Unknown"},
		{"garbage", "Unknown"},
		{"", "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.vector, func(t *testing.T) {
			assert.Equal(t, tt.want, analytics.ParseAttackVector(tt.vector))
		})
	}
}

type mapClassifier struct {
	labels map[string]string
	errOn  string
}

func (m mapClassifier) Classify(_ context.Context, text string) (string, error) {
	if text == m.errOn {
		return "", xerrors.New("model unavailable")
	}
	return m.labels[text], nil
}

func TestEngine_Compare(t *testing.T) {
	classifier := mapClassifier{
		labels: map[string]string{
			"Buffer overflow in Acme Widget.":      "critical",
			"Denial of service in Initech Portal.": "high",
		},
		errOn: "Unscored report against a portal.",
	}
	e := seedEngine(t, severity.NewAdapter(classifier, 0))

	got, err := e.Compare(context.Background(), 10)
	require.NoError(t, err)

	// newest first; the record without a summary is skipped and the
	// record without a publication date is not in the sample at all
	require.Len(t, got.Rows, 3)

	assert.Equal(t, "CVE-2024-0005", got.Rows[0].CveID)
	assert.Equal(t, types.BucketUnknown, got.Rows[0].CvssBucket)
	assert.Contains(t, got.Rows[0].Err, "model unavailable")

	assert.Equal(t, "CVE-2024-0002", got.Rows[1].CveID)
	assert.Equal(t, types.BucketMedium, got.Rows[1].CvssBucket)
	assert.Equal(t, types.BucketHigh, got.Rows[1].ModelBucket)
	assert.Empty(t, got.Rows[1].Err)

	assert.Equal(t, "CVE-2024-0001", got.Rows[2].CveID)
	assert.Equal(t, types.BucketCritical, got.Rows[2].CvssBucket)
	assert.Equal(t, types.BucketCritical, got.Rows[2].ModelBucket)

	assert.Equal(t, map[string]int{
		"unknown":  1,
		"low":      0,
		"medium":   1,
		"high":     0,
		"critical": 1,
	}, got.CvssCounts)
	assert.Equal(t, map[string]int{
		"unknown":  0,
		"low":      0,
		"medium":   0,
		"high":     1,
		"critical": 1,
	}, got.ModelCounts)

	t.Run("skipped records do not consume sample slots", func(t *testing.T) {
		// the second-newest record has no summary; the scan walks
		// past it and still fills the sample from older records
		got, err := e.Compare(context.Background(), 3)
		require.NoError(t, err)
		require.Len(t, got.Rows, 3)
		assert.Equal(t, "CVE-2024-0005", got.Rows[0].CveID)
		assert.Equal(t, "CVE-2024-0002", got.Rows[1].CveID)
		assert.Equal(t, "CVE-2024-0001", got.Rows[2].CveID)
	})
}

func TestModelTrend(t *testing.T) {
	rows := []types.ComparisonRow{
		{
			CveID:       "CVE-2024-0001",
			Published:   timePtr(t, "2024-01-15T10:00:00Z"),
			ModelBucket: types.BucketCritical,
		},
		{
			CveID:       "CVE-2024-0002",
			Published:   timePtr(t, "2024-01-20T00:00:00Z"),
			ModelBucket: types.BucketCritical,
		},
		{
			CveID:       "CVE-2024-0003",
			Published:   timePtr(t, "2024-02-05T00:00:00Z"),
			ModelBucket: types.BucketLow,
		},
		{
			// classification failed, excluded
			CveID:     "CVE-2024-0004",
			Published: timePtr(t, "2024-02-10T00:00:00Z"),
			Err:       "model unavailable",
		},
		{
			// no publication date, excluded
			CveID:       "CVE-2024-0005",
			ModelBucket: types.BucketHigh,
		},
	}

	assert.Equal(t, []types.TrendPoint{
		{YearMonth: "2024-01", Bucket: types.BucketCritical, Count: 2},
		{YearMonth: "2024-02", Bucket: types.BucketLow, Count: 1},
	}, analytics.ModelTrend(rows))
}

func timePtr(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return &parsed
}

func floatPtr(f float64) *float64 {
	return &f
}
