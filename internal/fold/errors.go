package fold

import (
	"errors"
	"fmt"
)

// ErrNotMaterializable is returned by Materialize when the static shape does
// not determine the requested value.
var ErrNotMaterializable = errors.New("shape not materializable")

// InvariantError reports a contradiction between the analyzer and the
// materializer. It aborts the whole pass.
type InvariantError struct {
	Node string
	Err  error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("internal invariant violated at node %q: %v", e.Node, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// Reasons recorded for candidates left unfolded.
const (
	ReasonEvaluation    = "evaluation_failed"
	ReasonResultCount   = "result_count_mismatch"
	ReasonInvalidResult = "invalid_result"
	ReasonTooLarge      = "exceeds_max_constant_bytes"
	ReasonNameCollision = "name_collision"
	ReasonPreserved     = "fetched"
)
