package model

import "time"

type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeSystem MessageType = "SYSTEM"
)

const (
	SystemSender      = "system"
	BroadcastReceiver = "all"
)

type Message struct {
	ID             uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID uint64      `gorm:"column:conversation_id;index;not null" json:"conversationId"`
	SenderUID      string      `gorm:"column:sender_uid;size:128;index;not null" json:"senderId"`
	ReceiverUID    string      `gorm:"column:receiver_uid;size:128;index;not null" json:"receiverId"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	Type           MessageType `gorm:"column:type;size:16;not null;default:TEXT" json:"type"`
	IsRead         bool        `gorm:"column:is_read;not null;default:false" json:"isRead"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) IsSystem() bool {
	return m.Type == MessageTypeSystem
}
