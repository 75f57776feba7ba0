package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PiPValue is one evaluated nuisance value of a stored grid.
type PiPValue struct {
	Pi     float64 `json:"pi"`
	PValue float64 `json:"p_value"`
}

// PointList is a JSONB column holding the evaluated grid.
type PointList []PiPValue

// Value implements driver.Valuer interface
func (p PointList) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface
func (p *PointList) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*p = PointList{}
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for grid points", value)
	}

	if len(bytes) == 0 {
		*p = PointList{}
		return nil
	}
	var result PointList
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}
	*p = result
	return nil
}

// BarnardResult is a persisted grid maximisation of Barnard's p-value for one
// table. PValue is a lower bound on the supremum over pi.
type BarnardResult struct {
	ID         uuid.UUID `json:"id" db:"id"`
	RunID      string    `json:"run_id" db:"run_id"`
	N          int       `json:"n" db:"n"`
	N1         int       `json:"n1" db:"n1"`
	X          int       `json:"x" db:"x"`
	A          int       `json:"a" db:"a"`
	PValue     float64   `json:"p_value" db:"p_value"`
	Pi         float64   `json:"pi" db:"pi"`
	MLEPValue  float64   `json:"mle_p_value" db:"mle_p_value"`
	Evaluated  int       `json:"evaluated" db:"evaluated"`
	Failed     int       `json:"failed" db:"failed"`
	GridPoints PointList `json:"grid_points" db:"grid_points"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
