package models

import "time"

// Outcome values recorded in sync_run_log.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// SyncRunRecord is an append-only audit row: one per (tenant, entity, run).
type SyncRunRecord struct {
	ID             uint64    `gorm:"primaryKey"`
	TenantID       uint      `gorm:"not null;index"`
	CompanyName    string    `gorm:"type:text"`
	EntityType     string    `gorm:"type:text;not null"`
	Outcome        string    `gorm:"type:text;not null"`
	Message        string    `gorm:"type:text"`
	ElapsedSeconds float64   `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"type:timestamptz;not null;index"`
}

func (SyncRunRecord) TableName() string {
	return "sync_run_log"
}
