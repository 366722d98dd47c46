package domain

import (
	"encoding/json"
	"errors"
)

// ErrMissingColumn reports a table or record that lacks a column the
// reconciliation rules depend on. It is always fatal for the run.
var ErrMissingColumn = errors.New("missing required column")

// Category is an impact category. Each is processed as a parallel dataset.
type Category string

const (
	Deaths   Category = "Deaths"
	Injuries Category = "Injuries"
	Damage   Category = "Damage"
)

// Categories lists the impact categories in table-classification order.
var Categories = []Category{Deaths, Injuries, Damage}

// Granularity is the aggregation level a table belongs to, taken from its name prefix.
type Granularity string

const (
	Totals       Granularity = "Total"
	SpecificArea Granularity = "Specific"
	PerInstance  Granularity = "Instance"
)

// OptInt is an integer cell that may be missing.
type OptInt struct {
	Value int
	Valid bool
}

// Int returns a present OptInt.
func Int(v int) OptInt { return OptInt{Value: v, Valid: true} }

// OptFloat is a numeric cell that may be missing.
type OptFloat struct {
	Value float64
	Valid bool
}

// Float returns a present OptFloat.
func Float(v float64) OptFloat { return OptFloat{Value: v, Valid: true} }

// Date is a calendar date whose parts are recorded independently.
type Date struct {
	Year  OptInt
	Month OptInt
	Day   OptInt
}

// Event is a row of a Total table.
type Event struct {
	ID          string
	MainEvent   string
	Start       Date
	End         Date
	SourceTable string
}

// Attribute is a pass-through column that the reconciliation rules do not
// interpret. Attributes keep their table order.
type Attribute struct {
	Name  string
	Value any
}

// ImpactRecord is a row of a Specific or Instance table.
type ImpactRecord struct {
	EventID string

	// Area is the raw administrative-area cell. After cleaning it holds the
	// resolved code as text and AreaCode is set.
	Area     AreaValue
	AreaCode string

	Start Date
	End   Date

	NumMin    OptFloat
	NumMax    OptFloat
	NumApprox OptFloat

	Attrs []Attribute
}

// Attr returns the named pass-through attribute.
func (r ImpactRecord) Attr(name string) (any, bool) {
	for _, a := range r.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// ImpactField selects one of the numeric impact columns.
type ImpactField int

const (
	NumMin ImpactField = iota
	NumMax
	NumApprox
)

// ImpactFields lists the numeric impact columns in table order.
var ImpactFields = []ImpactField{NumMin, NumMax, NumApprox}

// Column returns the database column name of the field.
func (f ImpactField) Column() string {
	switch f {
	case NumMin:
		return "Num_Min"
	case NumMax:
		return "Num_Max"
	case NumApprox:
		return "Num_Approx"
	default:
		return ""
	}
}

// Get returns the field's value on r.
func (f ImpactField) Get(r ImpactRecord) OptFloat {
	switch f {
	case NumMin:
		return r.NumMin
	case NumMax:
		return r.NumMax
	case NumApprox:
		return r.NumApprox
	default:
		return OptFloat{}
	}
}

func (f ImpactField) set(r *ImpactRecord, v OptFloat) {
	switch f {
	case NumMin:
		r.NumMin = v
	case NumMax:
		r.NumMax = v
	case NumApprox:
		r.NumApprox = v
	}
}

// MarshalJSON encodes a missing value as null.
func (v OptInt) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Value)
}

// MarshalJSON encodes a missing value as null.
func (v OptFloat) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Value)
}

// UnmarshalJSON decodes null as a missing value.
func (v *OptInt) UnmarshalJSON(data []byte) error {
	*v = OptInt{}
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &v.Value); err != nil {
		return err
	}
	v.Valid = true
	return nil
}

// UnmarshalJSON decodes null as a missing value.
func (v *OptFloat) UnmarshalJSON(data []byte) error {
	*v = OptFloat{}
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &v.Value); err != nil {
		return err
	}
	v.Valid = true
	return nil
}

// Dataset is everything loaded from the impact store for one run. Specific
// and Instance hold one entry per category that had at least one table.
type Dataset struct {
	Events   []Event
	Specific map[Category][]ImpactRecord
	Instance map[Category][]ImpactRecord
}
