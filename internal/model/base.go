package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Pagination represents common pagination parameters
type Pagination struct {
	Page  int `json:"page" form:"page"`
	Limit int `json:"limit" form:"limit"`
}

// Normalize applies defaults and caps the page size.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset returns the row offset for the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("unsupported type for JSONMap")
	}
	return json.Unmarshal(raw, m)
}

// Clone returns a deep copy made through a JSON round trip.
func (m JSONMap) Clone() JSONMap {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return JSONMap{}
	}
	out := JSONMap{}
	_ = json.Unmarshal(raw, &out)
	return out
}
