package model

import (
	"time"

	"github.com/google/uuid"
)

// Site is a physical location that consumes materials.
type Site struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code      string    `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Location  string    `gorm:"type:varchar(255)" json:"location"`
	Phone     string    `gorm:"type:varchar(20)" json:"phone"`
	Stores    []Store   `gorm:"foreignKey:SiteID" json:"stores,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps stock. Every stock balance is per store and material.
type Store struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SiteID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"site_id"`
	Site      *Site      `gorm:"foreignKey:SiteID;constraint:OnDelete:RESTRICT;" json:"site,omitempty"`
	Code      string     `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	Name      string     `gorm:"type:varchar(255);not null" json:"name"`
	KeeperID  *uuid.UUID `gorm:"type:uuid;index" json:"keeper_id"`
	Keeper    *User      `gorm:"foreignKey:KeeperID;constraint:OnDelete:SET NULL;" json:"keeper,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
