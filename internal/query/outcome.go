package query

import "errors"

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota + 1
	OutcomeEmpty
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the result of one sandbox execution. Exactly one of the three
// kinds applies: rows, no rows, or an error message.
type Outcome struct {
	Kind    OutcomeKind
	Table   Table
	Message string
	// Timeout and Rejected refine OutcomeError.
	Timeout  bool
	Rejected bool
}

func OutcomeOf(table Table, err error) Outcome {
	if err != nil {
		return Outcome{
			Kind:     OutcomeError,
			Message:  err.Error(),
			Timeout:  errors.Is(err, ErrTimeout),
			Rejected: errors.Is(err, ErrRejected),
		}
	}
	if table.Empty() {
		return Outcome{Kind: OutcomeEmpty, Table: table}
	}
	return Outcome{Kind: OutcomeSuccess, Table: table}
}

// Label is the metric label for the outcome.
func (o Outcome) Label() string {
	switch {
	case o.Kind == OutcomeError && o.Timeout:
		return "timeout"
	case o.Kind == OutcomeError && o.Rejected:
		return "rejected"
	default:
		return o.Kind.String()
	}
}
