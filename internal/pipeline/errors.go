package pipeline

import (
	"errors"
	"strings"

	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
)

// ErrRunInProgress is returned when a run is requested while another is still executing.
var ErrRunInProgress = errors.New("a reconciliation run is already in progress")

// Stages reported in a StageError.
const (
	StageLoad      = "load"
	StageReference = "reference"
	StageAggregate = "aggregate"
	StagePublish   = "publish"
)

// StageError names the stage, and where known the category and table, at which
// a run failed. The table is already part of the wrapped error's message.
type StageError struct {
	Stage    string
	Category domain.Category
	Table    string
	Err      error
}

func (e *StageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Stage)
	b.WriteString(" stage")
	if e.Category != "" {
		b.WriteString(" (")
		b.WriteString(string(e.Category))
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *StageError) Unwrap() error { return e.Err }

// stageError wraps err, lifting the table name from any error in its chain
// that carries one.
func stageError(stage string, cat domain.Category, err error) *StageError {
	se := &StageError{Stage: stage, Category: cat, Err: err}
	var tn interface{ TableName() string }
	if errors.As(err, &tn) {
		se.Table = tn.TableName()
	}
	return se
}
