package api

import (
	"goexact/adapters/stats/exact"
	"goexact/domain/contingency"
)

// TableRequest identifies a table by its margins and observed cell.
type TableRequest struct {
	N  int `json:"n"`
	N1 int `json:"n1"`
	X  int `json:"x"`
	A  int `json:"a"`
}

func (t TableRequest) table() (contingency.Table, error) {
	return contingency.NewTable(t.N, t.N1, t.X, t.A)
}

// FisherRequest is the body of POST /v1/fisher.
type FisherRequest struct {
	TableRequest
	Variant string `json:"variant,omitempty"`
}

// BarnardRequest is the body of POST /v1/barnard and /v1/barnard/maximize.
// Pi only applies to the fixed-pi endpoint; Grid and Refine only to maximize.
type BarnardRequest struct {
	TableRequest
	Pi     float64   `json:"pi,omitempty"`
	Grid   []float64 `json:"grid,omitempty"`
	Refine bool      `json:"refine,omitempty"`
	RunID  string    `json:"run_id,omitempty"`
}

// ScanRequest is the body of POST /v1/scan.
type ScanRequest struct {
	N        int     `json:"n"`
	N1       int     `json:"n1"`
	X        int     `json:"x"`
	Fisher   string  `json:"fisher,omitempty"`
	Floor    float64 `json:"floor,omitempty"`
	Maximize bool    `json:"maximize,omitempty"`
}

// ScanResponse is returned by POST /v1/scan as JSON.
type ScanResponse struct {
	Margins contingency.TableMargins `json:"margins"`
	X       int                      `json:"x"`
	Rows    []exact.ScanRow          `json:"rows"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
