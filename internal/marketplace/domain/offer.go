package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veloswap/market/internal/money"
)

// OfferStatus captures the lifecycle of a price offer.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
	OfferExpired  OfferStatus = "expired"
)

// Offer is a proposed price carried by a conversation message.
type Offer struct {
	ID             string      `json:"id"`
	ListingID      string      `json:"listing_id"`
	MessageID      string      `json:"message_id"`
	ProposerID     string      `json:"proposer_id"`
	CounterpartyID string      `json:"counterparty_id"`
	Amount         int64       `json:"amount"`
	Status         OfferStatus `json:"status"`
	Note           string      `json:"note"`
	ExpiresAt      time.Time   `json:"expires_at"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewOffer builds a pending offer. The note is replaced by a canonical
// "Offer: ¥N" line when it does not already mention the amount.
func NewOffer(listingID, messageID, proposerID, counterpartyID string, amount int64, note string, now time.Time, ttl time.Duration) (*Offer, error) {
	if err := ValidateOfferAmount(amount); err != nil {
		return nil, err
	}
	return &Offer{
		ID:             uuid.NewString(),
		ListingID:      listingID,
		MessageID:      messageID,
		ProposerID:     proposerID,
		CounterpartyID: counterpartyID,
		Amount:         amount,
		Status:         OfferPending,
		Note:           CanonicalNote(amount, note),
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ValidateOfferAmount checks the amount is a positive number of yen.
func ValidateOfferAmount(amount int64) error {
	if amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

// CanonicalNote keeps note when it already states amount, otherwise returns
// the canonical "Offer: <formatted amount>" text.
func CanonicalNote(amount int64, note string) string {
	trimmed := strings.TrimSpace(note)
	if trimmed != "" && NoteEncodesAmount(trimmed, amount) {
		return trimmed
	}
	return "Offer: " + money.Format(amount)
}

// NoteEncodesAmount reports whether note mentions amount, either formatted or as plain digits.
func NoteEncodesAmount(note string, amount int64) bool {
	if strings.Contains(note, money.Format(amount)) {
		return true
	}
	digits := strings.NewReplacer(",", "", "¥", " ", "円", " ").Replace(note)
	for _, field := range strings.FieldsFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) {
		if field == strconv.FormatInt(amount, 10) {
			return true
		}
	}
	return false
}

// IsPending reports whether the offer still awaits a response.
func (o Offer) IsPending() bool {
	return o.Status == OfferPending
}

// IsOverdue reports whether a pending offer has passed its expiry.
func (o Offer) IsOverdue(now time.Time) bool {
	return o.IsPending() && !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

func (o *Offer) Accept(now time.Time) error { return o.finish(OfferAccepted, now) }

func (o *Offer) Reject(now time.Time) error { return o.finish(OfferRejected, now) }

func (o *Offer) Expire(now time.Time) error { return o.finish(OfferExpired, now) }

// Every non-pending status is terminal.
func (o *Offer) finish(next OfferStatus, now time.Time) error {
	if o.Status != OfferPending {
		return fmt.Errorf("%w: offer %s from %s to %s", ErrInvalidTransition, o.ID, o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}
