package fixture

// Tag is a check tag record.
type Tag struct {
	PK       int64  `json:"pk,omitempty"`
	URL      string `json:"url,omitempty"`
	Tag      string `json:"tag"`
	ColorHex string `json:"color_hex"`
}

// Check is the subset of a check record the harness reads back.
type Check struct {
	PK        int64    `json:"pk,omitempty"`
	URL       string   `json:"url"`
	Name      string   `json:"name"`
	CheckType string   `json:"check_type,omitempty"`
	Address   string   `json:"msp_address,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Filter narrows a check listing. Empty fields are not sent.
type Filter struct {
	Tag    string
	Search string
}

// IsZero reports whether the filter would match every check.
func (f Filter) IsZero() bool {
	return f.Tag == "" && f.Search == ""
}

type page[T any] struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []T    `json:"results"`
}
