package severity

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

// HTTPClassifier talks to a severity model served over JSON/HTTP:
// POST {"text": ...} -> {"label": ...}.
type HTTPClassifier struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPClassifier(endpoint string) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Label string `json:"label"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return "", xerrors.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", xerrors.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", xerrors.Errorf("classifier request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", xerrors.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var res classifyResponse
	if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", xerrors.Errorf("failed to decode response: %w", err)
	}
	return res.Label, nil
}
