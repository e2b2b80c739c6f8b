// Package models defines the persisted entities for the invoice import
// pipeline. Relations are plain foreign-key id fields; callers that need a
// related record ask the store for it explicitly.
package models

import (
	"gorm.io/gorm"
)

// User is the owner of cards, import jobs and merchant rules. Registration
// and authentication live elsewhere; it is modeled here so ownership checks
// and foreign keys work.
type User struct {
	gorm.Model
	Email string `gorm:"uniqueIndex"`
	Name  string
}

// Card is a credit card that statements are imported against. Card CRUD
// lives elsewhere.
type Card struct {
	gorm.Model
	UserID     uint `gorm:"index"`
	LastFour   string
	Label      string
	IssuerName string
}

// BelongsTo reports whether the card is owned by the given user.
func (c *Card) BelongsTo(userID uint) bool {
	return c.UserID == userID
}
