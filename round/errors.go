package round

import (
	"errors"
	"fmt"
)

var (
	// ErrDataFormat is matched by every DataFormatError through errors.Is.
	ErrDataFormat = errors.New("malformed record")
	// ErrVotePlanMismatch is returned when a proposal is joined with a vote plan
	// it does not belong to.
	ErrVotePlanMismatch = errors.New("proposal does not belong to vote plan")
)

// DataFormatError reports an external record that could not be decoded into, or
// encoded from, its typed representation.
type DataFormatError struct {
	Record string
	Field  string
	Err    error
}

func formatError(record, field string, err error) *DataFormatError {
	return &DataFormatError{Record: record, Field: field, Err: err}
}

func (e *DataFormatError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed %s: %v", e.Record, e.Err)
	}
	return fmt.Sprintf("malformed %s.%s: %v", e.Record, e.Field, e.Err)
}

func (e *DataFormatError) Unwrap() error {
	return e.Err
}

func (e *DataFormatError) Is(target error) bool {
	return target == ErrDataFormat
}
