package analytics

import (
	"sort"
	"strings"

	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/types"
)

var attackVectorNames = map[string]string{
	"N": "Network",
	"A": "Adjacent",
	"L": "Local",
	"P": "Physical",
}

// ParseAttackVector extracts the AV metric from a CVSS v3 vector
// string, e.g. "CVSS:3.1/AV:N/AC:L/..." -> "Network".
func ParseAttackVector(vector string) string {
	for _, part := range strings.Split(vector, "/") {
		if code, ok := strings.CutPrefix(part, "AV:"); ok {
			if name, known := attackVectorNames[code]; known {
				return name
			}
			break
		}
	}
	return "Unknown"
}

// AttackVectors returns the distribution of attack vectors over all
// records carrying a CVSS v3 vector string, largest group first.
func (e Engine) AttackVectors() ([]types.AttackVectorCount, error) {
	counts := map[string]int{}
	err := e.dbc.ForEachCveRecord(func(record types.CveRecord) error {
		if record.CvssV3Vector == "" {
			return nil
		}
		counts[ParseAttackVector(record.CvssV3Vector)]++
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("attack vectors: %w", err)
	}

	rows := make([]types.AttackVectorCount, 0, len(counts))
	for vector, count := range counts {
		rows = append(rows, types.AttackVectorCount{
			Vector: vector,
			Count:  count,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Vector < rows[j].Vector
	})
	return rows, nil
}
