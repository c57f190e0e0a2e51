package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSONValue is a raw JSON column. It maps to JSONB on PostgreSQL and TEXT on
// SQLite so scalar documents such as 1800 or true keep their text form.
type JSONValue datatypes.JSON

// Value implements driver.Valuer.
func (j JSONValue) Value() (driver.Value, error) {
	return datatypes.JSON(j).Value()
}

// Scan implements sql.Scanner. Numeric and boolean values written by older
// SQLite schemas are converted back into their JSON encoding.
func (j *JSONValue) Scan(value any) error {
	switch v := value.(type) {
	case int64, float64, bool:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("models: encode scalar json value: %w", err)
		}
		*j = JSONValue(raw)
		return nil
	case nil:
		*j = nil
		return nil
	}
	return (*datatypes.JSON)(j).Scan(value)
}

// MarshalJSON emits the stored document unchanged.
func (j JSONValue) MarshalJSON() ([]byte, error) {
	return datatypes.JSON(j).MarshalJSON()
}

// UnmarshalJSON stores the raw document.
func (j *JSONValue) UnmarshalJSON(b []byte) error {
	return (*datatypes.JSON)(j).UnmarshalJSON(b)
}

// GormDataType implements schema.GormDataTypeInterface.
func (JSONValue) GormDataType() string {
	return "json"
}

// GormDBDataType implements migrator.GormDataTypeInterface.
func (JSONValue) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "JSONB"
	}
	return "TEXT"
}
