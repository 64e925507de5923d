package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusVacant      Status = "vacant"
	StatusOccupied    Status = "occupied"
	StatusMaintenance Status = "maintenance"
)

// Room is read by billing but never mutated by it.
type Room struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	Number    string          `gorm:"size:32;not null;uniqueIndex" json:"number"`
	Floor     int             `gorm:"not null;default:0" json:"floor"`
	Capacity  int             `gorm:"not null;default:1" json:"capacity"`
	Price     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price"`
	Status    Status          `gorm:"size:16;not null;default:'vacant'" json:"status"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (Room) TableName() string { return "rooms" }
