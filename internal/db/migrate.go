package db

import (
	"qbsync/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.TenantCredential{},
		&models.SyncRunRecord{},
		&models.JobState{},
	)
}
