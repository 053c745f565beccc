package report

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/analytics"
	"github.com/vulnfeed/cve-db/pkg/db"
	"github.com/vulnfeed/cve-db/pkg/types"
)

// WriteImpact exports one CSV row per (record, product ref) pair,
// highest score first, unscored records last. Records without any ref
// still produce one row with empty vendor/product columns.
func WriteImpact(w io.Writer, dbc db.Operation, limit int) error {
	type row struct {
		record types.CveRecord
		ref    types.ProductRef
	}
	var rows []row
	err := dbc.ForEachCveRecord(func(record types.CveRecord) error {
		refs, err := dbc.GetProductRefs(record.ID)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			rows = append(rows, row{record: record})
			return nil
		}
		for _, ref := range refs {
			rows = append(rows, row{record: record, ref: ref})
		}
		return nil
	})
	if err != nil {
		return xerrors.Errorf("impact export: %w", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].record.Score(), rows[j].record.Score()
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	cw := csv.NewWriter(w)
	if err = cw.Write([]string{"cve_id", "published", "cvss_score", "vendor", "product"}); err != nil {
		return xerrors.Errorf("csv write error: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.record.ID,
			formatTime(r.record.Published),
			formatScore(r.record.Score()),
			r.ref.Vendor,
			r.ref.Product,
		}
		if err = cw.Write(record); err != nil {
			return xerrors.Errorf("csv write error: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteAttackVectors exports records carrying a CVSS v3 vector string
// together with the decoded attack vector, newest first.
func WriteAttackVectors(w io.Writer, dbc db.Operation, limit int) error {
	var records []types.CveRecord
	err := dbc.ForEachCveRecord(func(record types.CveRecord) error {
		if record.CvssV3Vector != "" {
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return xerrors.Errorf("attack vector export: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Published, records[j].Published
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	cw := csv.NewWriter(w)
	if err = cw.Write([]string{"cve_id", "published", "cvss_v3_score", "attack_vector", "cvss_v3_vector"}); err != nil {
		return xerrors.Errorf("csv write error: %w", err)
	}
	for _, record := range records {
		row := []string{
			record.ID,
			formatTime(record.Published),
			formatScore(record.CvssV3Score),
			analytics.ParseAttackVector(record.CvssV3Vector),
			record.CvssV3Vector,
		}
		if err = cw.Write(row); err != nil {
			return xerrors.Errorf("csv write error: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatScore(score *float64) string {
	if score == nil {
		return ""
	}
	return strconv.FormatFloat(*score, 'f', 1, 64)
}
