package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation links two users. The pair is semantically unordered:
// SenderID/ReceiverID record who opened it, and lookups match either
// orientation. PairKey normalizes the pair so a unique index can keep
// concurrent create-or-get calls from racing a second row into existence.
type Conversation struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SenderID   uuid.UUID `gorm:"type:uuid;not null;index" json:"sender_id"`
	ReceiverID uuid.UUID `gorm:"type:uuid;not null;index" json:"receiver_id"`
	PairKey    string    `gorm:"type:varchar(80);uniqueIndex;not null" json:"-"`

	LastMessage   string    `gorm:"type:text;default:''" json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sender   *User     `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Receiver *User     `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`
	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// ConversationPairKey returns the normalized key for an unordered user pair.
func ConversationPairKey(a, b uuid.UUID) string {
	if a.String() < b.String() {
		return a.String() + ":" + b.String()
	}
	return b.String() + ":" + a.String()
}

// HasParticipant reports whether the user is one of the two members.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.SenderID == userID || c.ReceiverID == userID
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.PairKey == "" {
		c.PairKey = ConversationPairKey(c.SenderID, c.ReceiverID)
	}
	return nil
}

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

type Message struct {
	ID             uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ConversationID uuid.UUID     `gorm:"type:uuid;not null;index" json:"conversation_id"`
	SenderID       uuid.UUID     `gorm:"type:uuid;not null;index" json:"sender_id"`
	ReceiverID     uuid.UUID     `gorm:"type:uuid;not null;index" json:"receiver_id"`
	Message        string        `gorm:"type:text;not null" json:"message"`
	Status         MessageStatus `gorm:"type:varchar(20);default:'sent'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}
