package severity

import (
	"context"
	"time"

	"golang.org/x/xerrors"

	"github.com/vulnfeed/cve-db/pkg/types"
)

// ErrUnknownLabel is returned when the external model answers with a
// label outside the four-level vocabulary.
var ErrUnknownLabel = xerrors.New("classifier returned an unrecognized label")

// Classifier is the external severity model collaborator. Classify may
// block on network I/O and must honor the context.
type Classifier interface {
	Classify(ctx context.Context, text string) (label string, err error)
}

// CvssBucket derives a bucket from a CVSS base score. A nil score maps
// to BucketUnknown so unscored records stay out of bucket aggregates.
func CvssBucket(score *float64) types.Bucket {
	return types.BucketFromScore(score)
}

// Adapter bounds each model call with a timeout and normalizes the
// returned label onto the canonical bucket scheme.
type Adapter struct {
	classifier Classifier
	timeout    time.Duration
}

func NewAdapter(classifier Classifier, timeout time.Duration) Adapter {
	return Adapter{
		classifier: classifier,
		timeout:    timeout,
	}
}

func (a Adapter) ModelBucket(ctx context.Context, summary string) (types.Bucket, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	label, err := a.classifier.Classify(ctx, summary)
	if err != nil {
		return types.BucketUnknown, xerrors.Errorf("classify error: %w", err)
	}

	bucket, err := types.NewBucket(label)
	if err != nil {
		return types.BucketUnknown, xerrors.Errorf("label %q: %w", label, ErrUnknownLabel)
	}
	return bucket, nil
}
