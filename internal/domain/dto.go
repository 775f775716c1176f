package domain

import (
	"context"
	"time"
)

// Asset is a receipt file handed out by an asset cursor.
type Asset struct {
	// Name is the file name inside its directory.
	Name string

	// Path is the absolute path the submission driver uploads.
	Path string
}

// Attempt carries everything a submission driver needs for one form entry.
type Attempt struct {
	// ID correlates log lines, history rows and screenshots of one attempt.
	ID string

	// Mode tells the driver whether this is a throwaway probe or a real entry.
	Mode Mode

	// Identity is the record whose fields fill the form.
	Identity Record

	// Asset is the receipt to upload.
	Asset Asset
}

// Outcome is what a submission driver reports for one attempt.
type Outcome struct {
	// Result is the tri-state verdict.
	Result Result

	// Reason holds the cause when Result is Errored.
	Reason error

	// Detail is free-form driver context (e.g., the result button text).
	Detail string
}

// Failed builds an Errored outcome from err.
func Failed(err error) Outcome {
	return Outcome{Result: Errored, Reason: err}
}

// Submitter drives the external entry form.
//
// Implementations must not consume a real identity or a real receipt in Probe mode.
// In Real mode, Won and Lost both mean the entry was accepted by the form.
type Submitter interface {
	Submit(ctx context.Context, attempt Attempt) Outcome
}

// SelectFn inspects the rows of a table under exclusive access.
// It returns the selected row and the complete row set to persist.
type SelectFn func(rows []Record) (selected *Record, updated []Record, err error)

// AttemptDTO is a finished attempt as stored by Monitoring.
type AttemptDTO struct {
	// ID is the attempt identifier.
	ID string

	// RunID identifies the process run the attempt belongs to.
	RunID string

	// Mode of the attempt.
	Mode Mode

	// Identity is the key of the record that backed the attempt.
	Identity string

	// Asset is the receipt file name.
	Asset string

	// Result is the outcome verdict.
	Result Result

	// Error is the failure reason, empty unless Result is Errored.
	Error string

	// Detail is driver context copied from the outcome.
	Detail string

	// StartAt marks when the attempt was handed to the driver.
	StartAt time.Time

	// ExecutionTime is how long the driver took.
	ExecutionTime time.Duration

	// State is the flow state the attempt was made in.
	State State
}
