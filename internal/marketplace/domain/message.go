package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind tags what a conversation message carries.
type MessageKind string

const (
	MessageText          MessageKind = "text"
	MessageOffer         MessageKind = "offer"
	MessageOfferAccepted MessageKind = "offer_accepted"
	MessageOfferRejected MessageKind = "offer_rejected"
)

// Message is an entry in the conversation about a listing.
type Message struct {
	ID          string      `json:"id"`
	ListingID   string      `json:"listing_id"`
	SenderID    string      `json:"sender_id"`
	RecipientID string      `json:"recipient_id"`
	Content     string      `json:"content"`
	Kind        MessageKind `json:"kind"`
	OfferID     string      `json:"offer_id,omitempty"`
	OrderID     string      `json:"order_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

func NewMessage(listingID, senderID, recipientID, content string, kind MessageKind, now time.Time) *Message {
	return &Message{
		ID:          uuid.NewString(),
		ListingID:   listingID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		Kind:        kind,
		CreatedAt:   now,
	}
}
