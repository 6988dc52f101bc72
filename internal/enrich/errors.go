package enrich

import (
	"fmt"
)

// Stage names a step of the enrichment pipeline.
type Stage string

const (
	StageInputs   Stage = "inputs"
	StageRegion   Stage = "region"
	StageFilter   Stage = "filter"
	StageBuffer   Stage = "buffer"
	StageJoin     Stage = "join"
	StageExport   Stage = "export"
	StageRegister Stage = "register"
)

// StageError tags a failure with the stage and dataset that produced it.
type StageError struct {
	Stage   Stage
	Dataset string
	Err     error
}

func (e *StageError) Error() string {
	if e.Dataset == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Dataset, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// InvalidPredicateError reports a region predicate that references unknown
// fields or is not a valid expression.
type InvalidPredicateError struct {
	Predicate string
	Err       error
}

func (e *InvalidPredicateError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid predicate %q", e.Predicate)
	}
	return fmt.Sprintf("invalid predicate %q: %v", e.Predicate, e.Err)
}

func (e *InvalidPredicateError) Unwrap() error { return e.Err }

// InvalidDistanceError reports a buffer distance that is not a positive,
// finite number of kilometers, or one that names the same tier as an
// earlier distance.
type InvalidDistanceError struct {
	Index    int
	Distance float64
	Reason   string
}

func (e *InvalidDistanceError) Error() string {
	return fmt.Sprintf("invalid buffer distance %v km at position %d: %s", e.Distance, e.Index, e.Reason)
}

// ExportError reports a dataset that could not be written to its export file.
type ExportError struct {
	Dataset string
	Path    string
	Err     error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s to %s: %v", e.Dataset, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// RegistrationError reports a layer the presenter rejected. It is reported
// as a run warning, never as a run failure.
type RegistrationError struct {
	Dataset string
	Err     error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register layer %s: %v", e.Dataset, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }
