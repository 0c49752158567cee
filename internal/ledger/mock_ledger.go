package ledger

import (
	"context"
	"sync"
)

// Row is a captured mirror-log row as seen by MockLedger.
type Row struct {
	Vehicle string
	Contact string
	Handle  string
	Status  string
}

// MockLedger is an in-memory Ledger for tests.
type MockLedger struct {
	mu        sync.Mutex
	rows      []Row
	appendErr error
	updateErr error
}

// NewMockLedger creates an empty mock ledger.
func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

// FailAppends makes subsequent AppendLead calls return err.
func (m *MockLedger) FailAppends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
}

// FailUpdates makes subsequent UpdateStatusByMatch calls return err.
func (m *MockLedger) FailUpdates(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErr = err
}

// AppendLead records the row.
func (m *MockLedger) AppendLead(ctx context.Context, vehicle, contact, handle, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.rows = append(m.rows, Row{Vehicle: vehicle, Contact: contact, Handle: handle, Status: status})
	return nil
}

// UpdateStatusByMatch rewrites the status of the first row matching
// vehicle and contact.
func (m *MockLedger) UpdateStatusByMatch(ctx context.Context, vehicle, contact, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for i := range m.rows {
		if m.rows[i].Vehicle == vehicle && m.rows[i].Contact == contact {
			m.rows[i].Status = status
			return nil
		}
	}
	return ErrRowNotFound
}

// Rows returns a copy of the captured rows.
func (m *MockLedger) Rows() []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, len(m.rows))
	copy(out, m.rows)
	return out
}

// LastRow returns the most recently appended row, or a zero Row.
func (m *MockLedger) LastRow() Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows) == 0 {
		return Row{}
	}
	return m.rows[len(m.rows)-1]
}
