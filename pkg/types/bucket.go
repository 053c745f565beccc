package types

import (
	"strings"

	"github.com/fatih/color"
	"golang.org/x/xerrors"
)

// Bucket is a coarse severity classification. BucketUnknown is the
// explicit "unscored" variant: a record without a CVSS score keeps it
// and is excluded from bucket aggregates, never folded into BucketLow.
type Bucket int

const (
	BucketUnknown Bucket = iota
	BucketLow
	BucketMedium
	BucketHigh
	BucketCritical
)

var (
	BucketNames = []string{
		"unknown",
		"low",
		"medium",
		"high",
		"critical",
	}
	bucketColor = []func(a ...interface{}) string{
		color.New(color.FgCyan).SprintFunc(),
		color.New(color.FgBlue).SprintFunc(),
		color.New(color.FgYellow).SprintFunc(),
		color.New(color.FgHiRed).SprintFunc(),
		color.New(color.FgRed).SprintFunc(),
	}
)

// NewBucket maps an external classifier label onto the canonical
// four-level scheme. Labels outside the known vocabulary are an error,
// not a guess.
func NewBucket(label string) (Bucket, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	for i, name := range BucketNames[BucketLow:] {
		if normalized == name {
			return BucketLow + Bucket(i), nil
		}
	}
	return BucketUnknown, xerrors.Errorf("unknown severity label: %s", label)
}

// BucketFromScore maps a CVSS base score onto a bucket with fixed,
// inclusive lower thresholds. A nil score yields BucketUnknown.
func BucketFromScore(score *float64) Bucket {
	if score == nil {
		return BucketUnknown
	}
	switch s := *score; {
	case s >= 9.0:
		return BucketCritical
	case s >= 7.0:
		return BucketHigh
	case s >= 4.0:
		return BucketMedium
	default:
		return BucketLow
	}
}

func (b Bucket) String() string {
	if b < 0 || int(b) >= len(BucketNames) {
		return BucketNames[BucketUnknown]
	}
	return BucketNames[b]
}

func ColorizeBucket(b Bucket) string {
	if b < 0 || int(b) >= len(bucketColor) {
		b = BucketUnknown
	}
	return bucketColor[b](b.String())
}
