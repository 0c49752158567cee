// Package store persists booking requests. Rows are append-only except for
// the date/time pair, which the approval workflow rewrites on reschedule.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/avdonin/pitstop/internal/models"
)

// ErrNotFound is returned when no request row matches the given id.
var ErrNotFound = errors.New("store: booking request not found")

// Store wraps the GORM handle for the requests table.
type Store struct {
	db *gorm.DB
}

// New creates a Store.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &Store{db: db}, nil
}

// Insert persists a new request and returns its assigned id.
func (s *Store) Insert(r *models.BookingRequest) (uint, error) {
	if err := s.db.Create(r).Error; err != nil {
		return 0, fmt.Errorf("store: insert request: %w", err)
	}
	return r.ID, nil
}

// GetByID loads a request by id, or ErrNotFound.
func (s *Store) GetByID(id uint) (*models.BookingRequest, error) {
	var r models.BookingRequest
	if err := s.db.First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get request %d: %w", id, err)
	}
	return &r, nil
}

// UpdateDateTime rewrites the booked date (YYYY-MM-DD) and time (HH:MM) of
// an existing request. Returns ErrNotFound for an unknown id.
func (s *Store) UpdateDateTime(id uint, date, tm string) error {
	result := s.db.Model(&models.BookingRequest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"date": date, "time": tm})
	if result.Error != nil {
		return fmt.Errorf("store: update request %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns up to limit requests, newest first. A non-positive limit
// returns all rows.
func (s *Store) List(limit int) ([]models.BookingRequest, error) {
	q := s.db.Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.BookingRequest
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list requests: %w", err)
	}
	return rows, nil
}

// CountSince returns the number of requests created at or after t.
func (s *Store) CountSince(t time.Time) (int64, error) {
	var count int64
	if err := s.db.Model(&models.BookingRequest{}).
		Where("created_at >= ?", t).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("store: count since: %w", err)
	}
	return count, nil
}
