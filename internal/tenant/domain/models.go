package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Tenant struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	FirstName string       `gorm:"size:100;not null" json:"first_name"`
	LastName  string       `gorm:"size:100;not null;default:''" json:"last_name"`
	Email     string       `gorm:"size:255" json:"email,omitempty"`
	Phone     string       `gorm:"size:32" json:"phone,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// FullName is the display name denormalized onto billing records.
func (t Tenant) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(t.FirstName) + " " + strings.TrimSpace(t.LastName))
}
