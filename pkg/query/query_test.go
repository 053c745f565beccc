package query_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/vulnfeed/cve-db/pkg/analytics"
	"github.com/vulnfeed/cve-db/pkg/db"
	"github.com/vulnfeed/cve-db/pkg/query"
	"github.com/vulnfeed/cve-db/pkg/severity"
	"github.com/vulnfeed/cve-db/pkg/types"
)

type staticClassifier string

func (s staticClassifier) Classify(context.Context, string) (string, error) {
	return string(s), nil
}

func newService(t *testing.T, opts ...query.Option) query.Service {
	t.Helper()
	require.NoError(t, db.Init(t.TempDir()))
	t.Cleanup(func() { db.Close() })

	dbc := db.Config{}
	seeds := []struct {
		record types.CveRecord
		refs   []types.ProductRef
	}{
		{
			record: types.CveRecord{
				ID:          "CVE-2024-0001",
				Summary:     "Buffer overflow in Acme Widget.",
				Published:   timePtr(t, "2024-01-15T10:00:00Z"),
				CvssV3Score: floatPtr(9.8),
			},
			refs: []types.ProductRef{
				{Vendor: "acme", Product: "widget"},
			},
		},
		{
			// unscored record with no product refs
			record: types.CveRecord{
				ID:        "CVE-2024-0002",
				Summary:   strings.Repeat("a", 250),
				Published: timePtr(t, "2024-02-20T00:00:00Z"),
			},
		},
		{
			record: types.CveRecord{
				ID:          "CVE-2024-0003",
				Summary:     "Authentication bypass in Globex Router OS.",
				Published:   timePtr(t, "2024-03-01T00:00:00Z"),
				CvssV3Score: floatPtr(5.5),
			},
			refs: []types.ProductRef{
				{Vendor: "globex", Product: "router_os"},
			},
		},
	}
	for _, s := range seeds {
		err := dbc.BatchUpdate(func(tx *bolt.Tx) error {
			return dbc.UpsertCveRecord(tx, s.record, s.refs)
		})
		require.NoError(t, err)
	}

	engine := analytics.NewEngine(dbc, severity.NewAdapter(staticClassifier("high"), 0))
	return query.NewService(dbc, engine, opts...)
}

func TestService_GetByID(t *testing.T) {
	svc := newService(t)

	t.Run("happy path", func(t *testing.T) {
		got, err := svc.GetByID("CVE-2024-0001")
		require.NoError(t, err)
		assert.Equal(t, "Buffer overflow in Acme Widget.", got.Summary)
		require.NotNil(t, got.CvssV3Score)
		assert.Equal(t, 9.8, *got.CvssV3Score)
	})

	t.Run("unscored record keeps a nil score", func(t *testing.T) {
		got, err := svc.GetByID("CVE-2024-0002")
		require.NoError(t, err)
		assert.Nil(t, got.CvssV3Score)
		assert.Nil(t, got.CvssV2Score)
	})

	t.Run("malformed ID", func(t *testing.T) {
		_, err := svc.GetByID("cve-2024-0001")
		assert.ErrorIs(t, err, query.ErrInvalidID)

		_, err = svc.GetByID("CVE-24-1")
		assert.ErrorIs(t, err, query.ErrInvalidID)
	})

	t.Run("absent record", func(t *testing.T) {
		_, err := svc.GetByID("CVE-2024-9999")
		assert.ErrorIs(t, err, query.ErrNotFound)
	})
}

func TestService_Search(t *testing.T) {
	svc := newService(t)

	t.Run("vendor filter is case-insensitive", func(t *testing.T) {
		got, err := svc.Search(" ACME ", "", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "CVE-2024-0001", got[0].ID)
	})

	t.Run("product substring", func(t *testing.T) {
		got, err := svc.Search("", "router", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "CVE-2024-0003", got[0].ID)
	})

	t.Run("filters combine with AND", func(t *testing.T) {
		got, err := svc.Search("acme", "router", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("empty filters fall back to recency", func(t *testing.T) {
		got, err := svc.Search("", "", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "CVE-2024-0003", got[0].ID)
		assert.Equal(t, "CVE-2024-0002", got[1].ID)
	})

	t.Run("invalid limit", func(t *testing.T) {
		_, err := svc.Search("acme", "", 0)
		assert.ErrorIs(t, err, query.ErrInvalidLimit)

		_, err = svc.Search("acme", "", -3)
		assert.ErrorIs(t, err, query.ErrInvalidLimit)
	})
}

func TestService_Recent(t *testing.T) {
	svc := newService(t)

	got, err := svc.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "CVE-2024-0003", got[0].ID)
	assert.Equal(t, "CVE-2024-0002", got[1].ID)
	assert.Equal(t, "CVE-2024-0001", got[2].ID)
}

func TestService_MaxLimit(t *testing.T) {
	svc := newService(t, query.WithMaxLimit(2))

	_, err := svc.Recent(3)
	assert.ErrorIs(t, err, query.ErrInvalidLimit)

	got, err := svc.Recent(2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestService_StatsSummary(t *testing.T) {
	svc := newService(t)

	got, err := svc.StatsSummary(5)
	require.NoError(t, err)
	assert.Equal(t, []types.MonthlyCount{
		{YearMonth: "2024-01", Count: 1},
		{YearMonth: "2024-02", Count: 1},
		{YearMonth: "2024-03", Count: 1},
	}, got.MonthlyCounts)
	assert.Equal(t, []types.VendorCritical{
		{Vendor: "acme", CriticalCves: 1},
	}, got.TopCriticalVendors)
	assert.NotEmpty(t, got.SeverityTrend)
}

func TestService_ModelSeveritySummary(t *testing.T) {
	svc := newService(t)

	got, err := svc.ModelSeveritySummary(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got.Rows, 3)

	// the long summary comes back truncated for display
	assert.Len(t, []rune(got.Rows[1].Summary), 200)
	assert.Equal(t, types.BucketUnknown, got.Rows[1].CvssBucket)
	assert.Equal(t, types.BucketHigh, got.Rows[1].ModelBucket)

	assert.Equal(t, 3, got.ModelCounts["high"])
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
