package models

import (
	"time"

	"gorm.io/datatypes"
)

// JobState tracks scheduled job firings so a restart can coalesce a missed
// trigger into one catch-up run.
type JobState struct {
	JobID         string         `gorm:"primaryKey;type:text"`
	LastFireAt    *time.Time     `gorm:"type:timestamptz"`
	LastSuccessAt *time.Time     `gorm:"type:timestamptz"`
	LastError     *string        `gorm:"type:text"`
	StatsJSON     datatypes.JSON `gorm:"type:jsonb"`
}

func (JobState) TableName() string {
	return "job_state"
}
