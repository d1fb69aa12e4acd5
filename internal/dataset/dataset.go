// Package dataset holds the row-major tabular form shared by ingestion, the
// ephemeral registry, the persistent store and the transient query engines.
package dataset

import (
	"fmt"
	"math"
	"time"
)

// Dataset is an ordered set of named columns and rows. Every row has exactly
// len(Columns) values. Datasets handed out by the registry are shared and must
// be treated as read-only.
type Dataset struct {
	Columns []string
	Rows    [][]any
}

// Kind is the coarse value type of a column, used for engine DDL and for the
// schema context given to the completion service.
type Kind string

const (
	KindNull   Kind = "null"
	KindBool   Kind = "bool"
	KindInt    Kind = "int64"
	KindFloat  Kind = "float64"
	KindString Kind = "string"
)

func (d Dataset) Validate() error {
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(d.Columns))
		}
	}
	return nil
}

// Head returns a dataset with at most n leading rows.
func (d Dataset) Head(n int) Dataset {
	if n < 0 || n >= len(d.Rows) {
		return d
	}
	return Dataset{Columns: d.Columns, Rows: d.Rows[:n]}
}

// Records returns the rows as column-name keyed maps, preserving row order.
// When two columns share a name, the right-most value wins.
func (d Dataset) Records() []map[string]any {
	records := make([]map[string]any, 0, len(d.Rows))
	for _, row := range d.Rows {
		record := make(map[string]any, len(d.Columns))
		for i, column := range d.Columns {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

// WithColumns returns a dataset sharing d's rows under new column names.
func (d Dataset) WithColumns(columns []string) Dataset {
	return Dataset{Columns: columns, Rows: d.Rows}
}

// ColumnKinds infers a Kind per column from the non-nil values it holds.
func (d Dataset) ColumnKinds() []Kind {
	kinds := make([]Kind, len(d.Columns))
	for i := range d.Columns {
		kinds[i] = KindNull
		for _, row := range d.Rows {
			if i >= len(row) {
				continue
			}
			kinds[i] = widen(kinds[i], KindOf(row[i]))
			if kinds[i] == KindString {
				break
			}
		}
	}
	return kinds
}

// KindOf classifies a single value.
func KindOf(value any) Kind {
	switch value.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return KindInt
	case float32, float64:
		return KindFloat
	default:
		return KindString
	}
}

func widen(current, next Kind) Kind {
	switch {
	case next == KindNull || current == next:
		return current
	case current == KindNull:
		return next
	case (current == KindInt && next == KindFloat) || (current == KindFloat && next == KindInt):
		return KindFloat
	default:
		return KindString
	}
}

// Coerce converts value to the Go representation of kind. Values that do not
// fit are rendered as text, which only happens for KindString columns.
func Coerce(kind Kind, value any) any {
	if value == nil {
		return nil
	}
	switch kind {
	case KindBool:
		if b, ok := value.(bool); ok {
			return b
		}
	case KindInt:
		if i, ok := toInt64(value); ok {
			return i
		}
	case KindFloat:
		if f, ok := toFloat64(value); ok {
			return f
		}
	case KindNull:
		return nil
	}
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func toInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int8:
		return int64(typed), true
	case int16:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case int64:
		return typed, true
	case uint8:
		return int64(typed), true
	case uint16:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	default:
		return 0, false
	}
}

func toFloat64(value any) (float64, bool) {
	switch typed := value.(type) {
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	}
	if i, ok := toInt64(value); ok {
		return float64(i), true
	}
	return 0, false
}

// SanitizeValue prepares a value for loading into a transient engine and for
// JSON encoding: timestamps become ISO-8601 text, NaN and infinities become nil.
func SanitizeValue(value any) any {
	switch typed := value.(type) {
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	case *time.Time:
		if typed == nil {
			return nil
		}
		return typed.Format(time.RFC3339Nano)
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return nil
		}
		return typed
	case float32:
		if math.IsNaN(float64(typed)) || math.IsInf(float64(typed), 0) {
			return nil
		}
		return typed
	default:
		return value
	}
}

// Sanitize returns a copy of d with SanitizeValue applied to every value.
func (d Dataset) Sanitize() Dataset {
	rows := make([][]any, len(d.Rows))
	for i, row := range d.Rows {
		cleaned := make([]any, len(row))
		for j, value := range row {
			cleaned[j] = SanitizeValue(value)
		}
		rows[i] = cleaned
	}
	return Dataset{Columns: d.Columns, Rows: rows}
}
