package domain

// Feed is a monitored oracle price source.
type Feed struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Index  uint32 `json:"index" yaml:"index"`
}
