package models

import (
	"strings"
	"time"
)

// OfferStatus is the closed lifecycle of an offer.
type OfferStatus string

const (
	OfferStatusStaged      OfferStatus = "staged"
	OfferStatusAvailable   OfferStatus = "available"
	OfferStatusReserved    OfferStatus = "reserved"
	OfferStatusDistributed OfferStatus = "distributed"
	OfferStatusRejected    OfferStatus = "rejected"
)

// QualityCheck records the inspection outcome.
type QualityCheck string

const (
	QualityCheckPassed QualityCheck = "passed"
	QualityCheckFailed QualityCheck = "failed"
)

// DeliveryMethod is how the donor hands goods to the command post.
type DeliveryMethod string

const (
	DeliveryDropOff DeliveryMethod = "drop_off"
	DeliveryPickup  DeliveryMethod = "pickup"
)

var transitions = map[OfferStatus][]OfferStatus{
	OfferStatusStaged:    {OfferStatusAvailable, OfferStatusRejected},
	OfferStatusAvailable: {OfferStatusRejected},
	OfferStatusReserved:  {OfferStatusDistributed, OfferStatusAvailable},
}

// ParseOfferStatus validates raw against the enum.
func ParseOfferStatus(raw string) (OfferStatus, bool) {
	s := OfferStatus(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// Valid reports whether s is a member of the enum.
func (s OfferStatus) Valid() bool {
	switch s {
	case OfferStatusStaged, OfferStatusAvailable, OfferStatusReserved, OfferStatusDistributed, OfferStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s OfferStatus) Terminal() bool {
	return s == OfferStatusDistributed || s == OfferStatusRejected
}

// Counted reports whether offers in s contribute to need progress.
func (s OfferStatus) Counted() bool {
	return s == OfferStatusStaged || s == OfferStatusAvailable
}

// CountedStatuses lists the statuses that count toward need progress.
func CountedStatuses() []OfferStatus {
	return []OfferStatus{OfferStatusStaged, OfferStatusAvailable}
}

// TransitionAllowed is the single authority on legal status changes.
// Reservations are born reserved by a claim; no transition produces them.
func TransitionAllowed(from, to OfferStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Offer is one donor contribution, or a reservation split from one.
type Offer struct {
	ID              string         `db:"id" json:"id"`
	ParentID        *string        `db:"parent_id" json:"parentId,omitempty"`
	DonorID         string         `db:"donor_id" json:"donorId"`
	DonorName       string         `db:"donor_name" json:"donorName"`
	ReportID        *string        `db:"report_id" json:"reportId,omitempty"`
	ItemName        string         `db:"item_name" json:"itemName"`
	Quantity        int            `db:"quantity" json:"quantity"`
	Unit            string         `db:"unit" json:"unit"`
	Category        string         `db:"category" json:"category"`
	Description     string         `db:"description" json:"description,omitempty"`
	ImageURL        *string        `db:"image_url" json:"imageUrl,omitempty"`
	LocationName    *string        `db:"location_name" json:"locationName,omitempty"`
	Latitude        *float64       `db:"latitude" json:"latitude,omitempty"`
	Longitude       *float64       `db:"longitude" json:"longitude,omitempty"`
	DeliveryMethod  DeliveryMethod `db:"delivery_method" json:"deliveryMethod"`
	Status          OfferStatus    `db:"status" json:"status"`
	ClaimantID      *string        `db:"claimant_id" json:"claimantId,omitempty"`
	ClaimantName    *string        `db:"claimant_name" json:"claimantName,omitempty"`
	ClaimantContact *string        `db:"claimant_contact" json:"claimantContact,omitempty"`
	ReservedAt      *time.Time     `db:"reserved_at" json:"reservedAt,omitempty"`
	DeadlineAt      *time.Time     `db:"deadline_at" json:"deadlineAt,omitempty"`
	ReceivedAt      *time.Time     `db:"received_at" json:"receivedAt,omitempty"`
	ReceivedBy      *string        `db:"received_by" json:"receivedBy,omitempty"`
	QualityCheck    *QualityCheck  `db:"quality_check" json:"qualityCheck,omitempty"`
	RejectReason    *string        `db:"reject_reason" json:"rejectReason,omitempty"`
	DistributedAt   *time.Time     `db:"distributed_at" json:"distributedAt,omitempty"`
	DistributedBy   *string        `db:"distributed_by" json:"distributedBy,omitempty"`
	PickupMissed    bool           `db:"pickup_missed" json:"pickupMissed"`
	AuditNote       *string        `db:"audit_note" json:"auditNote,omitempty"`
	ReleasedAt      *time.Time     `db:"released_at" json:"releasedAt,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
}

// IsReservation reports whether o was split from another offer by a claim.
func (o *Offer) IsReservation() bool {
	return o.ParentID != nil && *o.ParentID != ""
}

// Expired reports whether a reservation's hold lapsed before now.
func (o *Offer) Expired(now time.Time) bool {
	return o.Status == OfferStatusReserved && o.DeadlineAt != nil && o.DeadlineAt.Before(now)
}

// Claimant is the opaque identity passed through from the identity provider.
type Claimant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// Split carves qty units out of o into a new reservation and returns it. The
// caller persists both records in one transaction. o.Quantity is reduced by
// exactly qty; qty must already be validated against o.Quantity.
func (o *Offer) Split(id string, qty int, claimant Claimant, now time.Time, hold time.Duration) *Offer {
	o.Quantity -= qty
	o.UpdatedAt = now

	parentID := o.ID
	deadline := now.Add(hold)
	reservedAt := now
	child := &Offer{
		ID:              id,
		ParentID:        &parentID,
		DonorID:         o.DonorID,
		DonorName:       o.DonorName,
		ReportID:        o.ReportID,
		ItemName:        o.ItemName,
		Quantity:        qty,
		Unit:            o.Unit,
		Category:        o.Category,
		Description:     o.Description,
		ImageURL:        o.ImageURL,
		LocationName:    o.LocationName,
		Latitude:        o.Latitude,
		Longitude:       o.Longitude,
		DeliveryMethod:  o.DeliveryMethod,
		Status:          OfferStatusReserved,
		ClaimantID:      stringPtr(claimant.ID),
		ClaimantName:    stringPtr(claimant.Name),
		ClaimantContact: stringPtr(claimant.Contact),
		ReservedAt:      &reservedAt,
		DeadlineAt:      &deadline,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return child
}

// OfferFilter constrains listing queries.
type OfferFilter struct {
	Statuses   []OfferStatus
	ReportID   string
	ItemName   string
	Category   string
	DonorID    string
	ClaimantID string
	ParentID   string
	// ReservationsOnly restricts results to records split by a claim.
	ReservationsOnly bool
	// ClaimableOnly drops records with no quantity left.
	ClaimableOnly bool
	// Unpaged returns every match and ignores Limit and Offset.
	Unpaged bool
	Limit   int
	Offset  int
}

// ClaimReceipt is returned by a successful claim.
type ClaimReceipt struct {
	ReservationID string    `json:"reservationId"`
	ParentID      string    `json:"parentId"`
	Quantity      int       `json:"quantity"`
	Remaining     int       `json:"remaining"`
	Deadline      time.Time `json:"deadline"`
}

// NormalizeItemName folds an item name for need matching.
func NormalizeItemName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
