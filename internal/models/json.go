package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// JSON is a raw JSON column value (jsonb in Postgres). It keeps the bytes
// exactly as stored so signatures computed over payloads stay stable.
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		buf := make([]byte, len(v))
		copy(buf, v)
		*j = buf
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("unsupported type %T for JSON column", value)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("models.JSON: UnmarshalJSON on nil pointer")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	*j = buf
	return nil
}

func (JSON) GormDataType() string {
	return "jsonb"
}
