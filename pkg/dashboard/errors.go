package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUpstream marks failures of the query executor. Every *QueryError matches it.
	ErrUpstream = errors.New("upstream query failed")

	// ErrMissingSelection is returned when a scoped dimension has no selected value.
	ErrMissingSelection = errors.New("missing selection")

	// ErrUnknownOption is returned when a selected value is not among the catalog options.
	ErrUnknownOption = errors.New("unknown option")

	// ErrInvalidSelection is returned when a selected value cannot be typed for its column.
	ErrInvalidSelection = errors.New("invalid selection")

	// ErrInvalidMonth is returned for month identifiers outside "01".."12".
	ErrInvalidMonth = errors.New("invalid month")
)

// QueryError wraps an executor failure with the pipeline step that issued it.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is makes every QueryError match ErrUpstream.
func (e *QueryError) Is(target error) bool { return target == ErrUpstream }

// StatusFor maps a render error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrMissingSelection),
		errors.Is(err, ErrUnknownOption),
		errors.Is(err, ErrInvalidSelection),
		errors.Is(err, ErrInvalidMonth):
		return http.StatusBadRequest
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
