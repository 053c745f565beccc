package feed

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/set"
	"github.com/vulnfeed/cve-db/pkg/types"
)

const (
	cpe23Prefix = "cpe:2.3:"
	cpe22Prefix = "cpe:/"
)

var (
	// ErrMissingID marks a record whose identifier is absent or not a
	// well-formed CVE ID. Such records are rejected outright.
	ErrMissingID = xerrors.New("missing or malformed CVE ID")

	cveIDRegexp = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

	// upstream date formats seen across NVD feed generations
	timeLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04Z",
		"2006-01-02",
	}
)

// Normalized is the output of one record normalization: the canonical
// record, its product refs, and a note per sub-field that had to be
// dropped along the way.
type Normalized struct {
	Record types.CveRecord
	Refs   []types.ProductRef
	Lossy  []string
}

// Normalize converts one raw upstream record into its canonical form.
// It never touches the store. The only fatal condition is a missing or
// malformed identifier; every other parse problem degrades the record
// and is reported in Lossy.
func Normalize(raw json.RawMessage) (*Normalized, error) {
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, xerrors.Errorf("failed to decode feed record: %w", err)
	}

	cveID := item.Cve.ID
	if cveID == "" {
		cveID = item.Cve.Meta.ID
	}
	if !cveIDRegexp.MatchString(cveID) {
		return nil, xerrors.Errorf("record %q: %w", cveID, ErrMissingID)
	}

	n := &Normalized{
		Record: types.CveRecord{
			ID:  cveID,
			Raw: append(json.RawMessage(nil), raw...),
		},
	}

	descriptions := item.Cve.Descriptions
	if len(descriptions) == 0 {
		descriptions = item.Cve.Description.Data
	}
	for _, d := range descriptions {
		if d.Lang == "en" {
			n.Record.Summary = d.Value
			break
		}
	}

	// dates can live on the item or inside the cve object
	n.Record.Published = n.parseTime("published", firstNonEmpty(item.Published, item.Cve.Published, item.PublishedDate))
	n.Record.LastModified = n.parseTime("lastModified", firstNonEmpty(item.LastModified, item.Cve.LastModified, item.LastModifiedDate))

	// metrics sit inside the cve object on 2.0 feeds and on the item
	// itself in older snapshots
	v3, v2 := extractScores(item.Cve.Metrics)
	if v3 == nil && v2 == nil {
		v3, v2 = extractScores(item.Metrics)
	}
	if v3 != nil {
		n.Record.CvssV3Score = v3.BaseScore
		n.Record.CvssV3Vector = v3.VectorString
	}
	if v2 != nil {
		n.Record.CvssV2Score = v2.BaseScore
	}

	n.Refs = n.productRefs(cveID, raw)
	return n, nil
}

func (n *Normalized) parseTime(field, value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	n.Lossy = append(n.Lossy, field+": "+value)
	return nil
}

// extractScores prefers a v3.1 metric, then v3.0, then the legacy
// nested form; v2 is kept separately as the fallback score source.
func extractScores(m Metrics) (v3, v2 *CvssData) {
	for _, metrics := range [][]CvssMetricV3{m.CvssMetricV31, m.CvssMetricV30} {
		for _, e := range metrics {
			if e.CvssData.BaseScore != nil {
				d := e.CvssData
				return &d, firstV2(m)
			}
		}
	}
	if m.BaseMetricV3 != nil {
		if d := m.BaseMetricV3.data(); d.BaseScore != nil {
			return &d, firstV2(m)
		}
	}
	return nil, firstV2(m)
}

func firstV2(m Metrics) *CvssData {
	for _, e := range m.CvssMetricV2 {
		if e.CvssData.BaseScore != nil {
			d := e.CvssData
			return &d
		}
	}
	if m.BaseMetricV2 != nil {
		if d := m.BaseMetricV2.data(); d.BaseScore != nil {
			return &d
		}
	}
	return nil
}

// productRefs walks the raw payload for every cpeMatch list rather
// than trusting the typed configurations layout; the upstream
// structure around cpeMatch has changed more than once.
func (n *Normalized) productRefs(cveID string, raw json.RawMessage) []types.ProductRef {
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil
	}

	seen := set.New[string]()
	var refs []types.ProductRef
	for _, uri := range findCPEs(tree) {
		vendor, product, ok := ParseCPE(uri)
		if !ok {
			n.Lossy = append(n.Lossy, "cpe: "+uri)
			continue
		}
		key := vendor + "\x00" + product
		if seen.Contains(key) {
			continue
		}
		seen.Append(key)
		refs = append(refs, types.ProductRef{
			CveID:   cveID,
			Vendor:  vendor,
			Product: product,
		})
	}
	return refs
}

func findCPEs(node any) []string {
	var cpes []string
	switch v := node.(type) {
	case map[string]any:
		for _, listKey := range []string{"cpeMatch", "cpe_match"} {
			matches, ok := v[listKey].([]any)
			if !ok {
				continue
			}
			for _, m := range matches {
				entry, ok := m.(map[string]any)
				if !ok {
					continue
				}
				for _, key := range []string{"criteria", "cpe23Uri", "cpe22Uri"} {
					if uri, ok := entry[key].(string); ok && uri != "" {
						cpes = append(cpes, uri)
						break
					}
				}
			}
		}
		for _, child := range v {
			cpes = append(cpes, findCPEs(child)...)
		}
	case []any:
		for _, child := range v {
			cpes = append(cpes, findCPEs(child)...)
		}
	}
	return cpes
}

// ParseCPE decomposes a CPE URI into its vendor and product
// components. Both come back lower-cased and trimmed, with "*" and "-"
// wildcards mapped to the empty string. ok is false when the URI does
// not split into enough components to name either one.
func ParseCPE(uri string) (vendor, product string, ok bool) {
	var parts []string
	switch {
	case strings.HasPrefix(uri, cpe23Prefix):
		parts = strings.Split(strings.TrimPrefix(uri, cpe23Prefix), ":")
	case strings.HasPrefix(uri, cpe22Prefix):
		parts = strings.Split(strings.TrimPrefix(uri, cpe22Prefix), ":")
	default:
		parts = strings.Split(uri, ":")
		if len(parts) < 4 {
			return "", "", false
		}
		parts = parts[1:]
	}
	if len(parts) < 3 {
		return "", "", false
	}
	return normalizeComponent(parts[1]), normalizeComponent(parts[2]), true
}

func normalizeComponent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "*" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
