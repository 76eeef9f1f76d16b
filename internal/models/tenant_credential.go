package models

import "time"

// TenantCredential is one connected QuickBooks company. Token columns hold
// ciphertext; only the token lifecycle manager and the connect flow write them.
type TenantCredential struct {
	ID              uint       `gorm:"primaryKey"`
	CompanyName     string     `gorm:"type:text;not null"`
	RealmID         string     `gorm:"type:text;uniqueIndex;not null"`
	AccessTokenEnc  string     `gorm:"type:text;not null"`
	RefreshTokenEnc string     `gorm:"type:text;not null"`
	TokenExpiry     *time.Time `gorm:"type:timestamptz"`
	Active          bool       `gorm:"not null;default:true;index"`
	LastRefreshAt   *time.Time `gorm:"type:timestamptz"`
	LastSyncAt      *time.Time `gorm:"type:timestamptz"`
	CreatedAt       time.Time  `gorm:"type:timestamptz;not null"`
}

func (TenantCredential) TableName() string {
	return "client_auth"
}
