package analytics

import (
	"context"
	"sort"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/log"
	"github.com/vulnfeed/cve-db/pkg/severity"
	"github.com/vulnfeed/cve-db/pkg/types"
)

// Compare pairs the CVSS-derived bucket with the model-derived bucket
// for a bounded sample of the most recent records with a non-empty
// summary. Records without a summary do not consume sample slots: the
// scan walks further back in time until limit rows are collected or
// the index runs out. A classification failure or timeout on one
// record is recorded on its row and leaves the model frequency table
// untouched; it never aborts the batch.
func (e Engine) Compare(ctx context.Context, limit int) (types.BucketComparison, error) {
	ids, err := e.dbc.RecentCveIDs(0)
	if err != nil {
		return types.BucketComparison{}, xerrors.Errorf("comparison sample: %w", err)
	}

	result := types.BucketComparison{
		CvssCounts:  emptyCounts(),
		ModelCounts: emptyCounts(),
	}
	for _, id := range ids {
		if len(result.Rows) >= limit {
			break
		}
		record, err := e.dbc.GetCveRecord(id)
		if err != nil {
			return types.BucketComparison{}, xerrors.Errorf("comparison lookup: %w", err)
		}
		if record.Summary == "" {
			continue
		}

		row := types.ComparisonRow{
			CveID:      record.ID,
			Published:  record.Published,
			Summary:    record.Summary,
			CvssBucket: severity.CvssBucket(record.Score()),
		}
		result.CvssCounts[row.CvssBucket.String()]++

		modelBucket, err := e.adapter.ModelBucket(ctx, record.Summary)
		if err != nil {
			log.Warn("Model classification failed", log.CveID(record.ID), log.Err(err))
			row.Err = err.Error()
		} else {
			row.ModelBucket = modelBucket
			result.ModelCounts[modelBucket.String()]++
		}

		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

// ModelTrend groups successfully classified comparison rows by
// (month, model bucket), oldest month first. Rows with a
// classification error or without a publication date are excluded.
func ModelTrend(rows []types.ComparisonRow) []types.TrendPoint {
	type key struct {
		ym     string
		bucket types.Bucket
	}
	counts := map[key]int{}
	for _, row := range rows {
		if row.Err != "" || row.Published == nil {
			continue
		}
		counts[key{
			ym:     row.Published.Format("2006-01"),
			bucket: row.ModelBucket,
		}]++
	}

	keys := lo.Keys(counts)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ym != keys[j].ym {
			return keys[i].ym < keys[j].ym
		}
		return keys[i].bucket < keys[j].bucket
	})

	trend := make([]types.TrendPoint, 0, len(keys))
	for _, k := range keys {
		trend = append(trend, types.TrendPoint{
			YearMonth: k.ym,
			Bucket:    k.bucket,
			Count:     counts[k],
		})
	}
	return trend
}

func emptyCounts() map[string]int {
	counts := make(map[string]int, len(types.BucketNames))
	for _, name := range types.BucketNames {
		counts[name] = 0
	}
	return counts
}
