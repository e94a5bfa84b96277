package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Vector is an embedding stored as a JSON array in a TEXT column. SQLite has
// no native array type, so the value is serialized on write and parsed on
// read. JSON (rather than a packed binary blob) keeps rows inspectable with
// plain SQL during debugging.
type Vector []float32

// Value implements driver.Valuer.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal([]float32(v))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (v *Vector) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		*v = nil
		return nil
	case []byte:
		return json.Unmarshal(s, (*[]float32)(v))
	case string:
		return json.Unmarshal([]byte(s), (*[]float32)(v))
	default:
		return fmt.Errorf("vector: cannot scan %T", src)
	}
}
