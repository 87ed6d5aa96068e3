package model

import "time"

// Conversation is a two-party thread, optionally scoped to a product.
// UserA < UserB always holds so a pair has one canonical row per product.
type Conversation struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserA     string    `gorm:"column:user_a;size:128;not null;uniqueIndex:uniq_conv_pair_product;index" json:"-"`
	UserB     string    `gorm:"column:user_b;size:128;not null;uniqueIndex:uniq_conv_pair_product;index" json:"-"`
	ProductID uint64    `gorm:"column:product_id;not null;default:0;uniqueIndex:uniq_conv_pair_product" json:"productId,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// CanonicalPair orders two user ids the way they are stored.
func CanonicalPair(u1, u2 string) (string, string) {
	if u2 < u1 {
		return u2, u1
	}
	return u1, u2
}

func (c *Conversation) Participants() []string {
	return []string{c.UserA, c.UserB}
}

func (c *Conversation) HasParticipant(uid string) bool {
	return uid != "" && (uid == c.UserA || uid == c.UserB)
}

// Other returns the participant that is not uid.
func (c *Conversation) Other(uid string) string {
	if uid == c.UserA {
		return c.UserB
	}
	return c.UserA
}
