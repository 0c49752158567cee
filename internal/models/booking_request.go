// Package models defines the GORM persistence models for Pitstop.
package models

import "time"

// BookingRequest is a service booking collected from a requester via chat.
// Rows are append-only history: the approval workflow never deletes them,
// and only the date/time pair is mutated (on reschedule). Lifecycle status
// lives in the workflow and the mirror log, not in this table.
type BookingRequest struct {
	ID            uint    `gorm:"primaryKey;autoIncrement"`
	RequesterID   string  `gorm:"size:64;not null;index"`
	Handle        string  `gorm:"size:64"`
	DurationHours float64 `gorm:"not null"`
	Vehicle       string  `gorm:"size:128;not null"`
	Contact       string  `gorm:"size:32;not null"`
	ServiceType   string  `gorm:"size:64;not null"`
	Date          string  `gorm:"size:10;not null"` // YYYY-MM-DD
	Time          string  `gorm:"size:5;not null"`  // HH:MM
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName keeps the historical table name from the first deployment.
func (BookingRequest) TableName() string { return "requests" }
