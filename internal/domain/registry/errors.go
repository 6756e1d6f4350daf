package registry

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrPatientNotFound    = errors.New("patient not found")
	ErrDiseaseNotFound    = errors.New("disease not found")
	ErrDiseaseNotOwned    = errors.New("disease does not belong to patient")
	ErrUnknownDiagnosis   = errors.New("diagnosis code not found")
	ErrDuplicateInsurance = errors.New("insurance number already registered")

	// ErrDictionaryUnavailable wraps failures of the diagnosis dictionary
	// other than an unknown code.
	ErrDictionaryUnavailable = errors.New("diagnosis dictionary unavailable")
)

// ValidationError maps JSON field names to a human readable complaint.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, f := range names {
		parts[i] = f + ": " + e.Fields[f]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}
