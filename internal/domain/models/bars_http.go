package models

// Requests for bar HTTP endpoints. Defined in domain for consistency and reuse.

type BarsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=10000"`
}

type StatsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type ReplayRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	Limit  int    `query:"limit" json:"limit" default:"200" validate:"gte=1,lte=5000"`
}

type ExportRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	From   string `json:"from"`
	To     string `json:"to"`
	Limit  int    `json:"limit" validate:"gte=0,lte=100000"`
}
