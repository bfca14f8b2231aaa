package models

import "time"

// LedgerEventType doubles as the broker routing key.
type LedgerEventType string

const (
	EventOfferCreated          LedgerEventType = "offer.created"
	EventOfferClaimed          LedgerEventType = "offer.claimed"
	EventOfferInspected        LedgerEventType = "offer.inspected"
	EventOfferRejected         LedgerEventType = "offer.rejected"
	EventReservationHandedOver LedgerEventType = "reservation.handed_over"
	EventReservationReleased   LedgerEventType = "reservation.force_released"
	EventReservationExpired    LedgerEventType = "reservation.expired"
)

// LedgerEvent is published after a ledger mutation commits.
type LedgerEvent struct {
	ID         string          `json:"id"`
	Type       LedgerEventType `json:"type"`
	OfferID    string          `json:"offerId"`
	ParentID   string          `json:"parentId,omitempty"`
	ReportID   string          `json:"reportId,omitempty"`
	ItemName   string          `json:"itemName"`
	Quantity   int             `json:"quantity"`
	Status     OfferStatus     `json:"status"`
	ActorID    string          `json:"actorId,omitempty"`
	ClaimantID string          `json:"claimantId,omitempty"`
	DonorID    string          `json:"donorId,omitempty"`
	Note       string          `json:"note,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewLedgerEvent snapshots o for an event of type t.
func NewLedgerEvent(t LedgerEventType, o *Offer, actorID string, at time.Time) LedgerEvent {
	ev := LedgerEvent{
		Type:       t,
		OfferID:    o.ID,
		ItemName:   o.ItemName,
		Quantity:   o.Quantity,
		Status:     o.Status,
		ActorID:    actorID,
		DonorID:    o.DonorID,
		OccurredAt: at,
	}
	if o.ParentID != nil {
		ev.ParentID = *o.ParentID
	}
	if o.ReportID != nil {
		ev.ReportID = *o.ReportID
	}
	if o.ClaimantID != nil {
		ev.ClaimantID = *o.ClaimantID
	}
	return ev
}
