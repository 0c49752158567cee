// Package ledger mirrors booking leads to an external spreadsheet-like log
// kept by the shop managers. The mirror is denormalized and best-effort:
// writes are independent at-least-once side effects, never rolled back.
package ledger

import (
	"context"
	"errors"
)

// Lead statuses as shown in the mirror log.
const (
	StatusNew      = "Новый"
	StatusApproved = "Одобрено"
	StatusRejected = "Отклонено"
)

// ErrRowNotFound is returned when no row matches a status update.
var ErrRowNotFound = errors.New("ledger: no matching row")

// Ledger is the mirror-log collaborator contract.
type Ledger interface {
	// AppendLead appends a row: vehicle model, contact phone, requester
	// handle, status.
	AppendLead(ctx context.Context, vehicle, contact, handle, status string) error

	// UpdateStatusByMatch finds the row whose vehicle text matches exactly
	// and whose contact column confirms the match, then rewrites its
	// status. Returns ErrRowNotFound when no row qualifies.
	UpdateStatusByMatch(ctx context.Context, vehicle, contact, status string) error
}
