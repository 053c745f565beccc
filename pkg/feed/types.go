package feed

import "encoding/json"

// Envelope is one feed file as downloaded from the NVD 2.0 API.
// CVEItems covers the legacy 1.1 feed layout so old snapshots are
// still ingestible.
type Envelope struct {
	ResultsPerPage  int               `json:"resultsPerPage,omitempty"`
	StartIndex      int               `json:"startIndex,omitempty"`
	TotalResults    int               `json:"totalResults,omitempty"`
	Vulnerabilities []json.RawMessage `json:"vulnerabilities,omitempty"`
	CVEItems        []json.RawMessage `json:"CVE_Items,omitempty"`
}

// Item is based on https://csrc.nist.gov/schema/nvd/api/2.0/cve_api_json_2.0.schema
// (see `cve_item`). Only the fields this pipeline extracts are typed;
// the raw payload is preserved verbatim alongside.
type Item struct {
	Cve          Cve     `json:"cve"`
	Published    string  `json:"published,omitempty"`
	LastModified string  `json:"lastModified,omitempty"`
	Metrics      Metrics `json:"metrics,omitempty"`

	// legacy 1.1 date keys
	PublishedDate    string `json:"publishedDate,omitempty"`
	LastModifiedDate string `json:"lastModifiedDate,omitempty"`
}

type Cve struct {
	ID           string       `json:"id,omitempty"`
	Published    string       `json:"published,omitempty"`
	LastModified string       `json:"lastModified,omitempty"`
	Descriptions []LangString `json:"descriptions,omitempty"`
	Metrics      Metrics      `json:"metrics,omitempty"`

	// legacy 1.1 feeds carry the ID and description here
	Meta        Meta        `json:"CVE_data_meta,omitempty"`
	Description Description `json:"description,omitempty"`
}

type Description struct {
	Data []LangString `json:"description_data,omitempty"`
}

type Meta struct {
	ID string `json:"ID,omitempty"`
}

type LangString struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type Metrics struct {
	CvssMetricV31 []CvssMetricV3 `json:"cvssMetricV31,omitempty"`
	CvssMetricV30 []CvssMetricV3 `json:"cvssMetricV30,omitempty"`
	CvssMetricV2  []CvssMetricV2 `json:"cvssMetricV2,omitempty"`

	// legacy nested form
	BaseMetricV3 *BaseMetricV3 `json:"baseMetricV3,omitempty"`
	BaseMetricV2 *BaseMetricV2 `json:"baseMetricV2,omitempty"`
}

type CvssMetricV3 struct {
	Source   string   `json:"source,omitempty"`
	Type     string   `json:"type,omitempty"`
	CvssData CvssData `json:"cvssData"`
}

type CvssMetricV2 struct {
	Source       string   `json:"source,omitempty"`
	Type         string   `json:"type,omitempty"`
	CvssData     CvssData `json:"cvssData"`
	BaseSeverity string   `json:"baseSeverity,omitempty"`
}

// BaseMetricV3 appeared with the cvss data under either key depending
// on feed generation.
type BaseMetricV3 struct {
	CvssV3   CvssData `json:"cvssV3,omitempty"`
	CvssData CvssData `json:"cvssData,omitempty"`
}

func (m BaseMetricV3) data() CvssData {
	if m.CvssV3.BaseScore != nil {
		return m.CvssV3
	}
	return m.CvssData
}

type BaseMetricV2 struct {
	CvssV2   CvssData `json:"cvssV2,omitempty"`
	CvssData CvssData `json:"cvssData,omitempty"`
}

func (m BaseMetricV2) data() CvssData {
	if m.CvssV2.BaseScore != nil {
		return m.CvssV2
	}
	return m.CvssData
}

type CvssData struct {
	Version      string   `json:"version,omitempty"`
	VectorString string   `json:"vectorString,omitempty"`
	BaseScore    *float64 `json:"baseScore,omitempty"`
	BaseSeverity string   `json:"baseSeverity,omitempty"`
}
