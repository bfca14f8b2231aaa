package dto

import "github.com/noah-isme/relief-ledger-api/internal/models"

// CreateOfferRequest is a donor pledge or a marketplace listing.
type CreateOfferRequest struct {
	ReportID       *string  `json:"reportId" validate:"omitempty,max=64"`
	ItemName       string   `json:"itemName" validate:"required,max=120"`
	Quantity       int      `json:"quantity"`
	Unit           string   `json:"unit" validate:"omitempty,max=32"`
	Category       string   `json:"category" validate:"omitempty,max=64"`
	Description    string   `json:"description" validate:"omitempty,max=1000"`
	ImageURL       *string  `json:"imageUrl" validate:"omitempty,url"`
	LocationName   *string  `json:"locationName" validate:"omitempty,max=200"`
	Latitude       *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude      *float64 `json:"longitude" validate:"omitempty,longitude"`
	DeliveryMethod string   `json:"deliveryMethod" validate:"omitempty,oneof=drop_off pickup"`
	// Listing skips staging for stock already banked at a post.
	Listing bool `json:"listing"`
}

// OfferQuery is the query string accepted by GET /offers.
type OfferQuery struct {
	Status   string `form:"status"`
	ReportID string `form:"reportId"`
	Item     string `form:"item"`
	Category string `form:"category"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// ClaimRequest reserves part of an available offer. Claimant identity comes
// from the access token; name and contact may be overridden for the pickup.
type ClaimRequest struct {
	Quantity        int    `json:"quantity"`
	ClaimantName    string `json:"claimantName" validate:"omitempty,max=120"`
	ClaimantContact string `json:"claimantContact" validate:"omitempty,max=120"`
}

// ReservationQuery filters GET /reservations.
type ReservationQuery struct {
	Status   string `form:"status"`
	ParentID string `form:"parentId"`
	ReportID string `form:"reportId"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// InspectRequest records the quality check of a delivered offer.
type InspectRequest struct {
	Passed *bool  `json:"passed" validate:"required"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// InspectResult is the outcome of an inspection.
type InspectResult struct {
	Offer    *models.Offer `json:"offer"`
	Credited bool          `json:"credited"`
	// RewardPending is set when the credit was queued for retry.
	RewardPending bool `json:"rewardPending"`
}

// RejectStockRequest removes spoiled stock from circulation.
type RejectStockRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ForceReleaseRequest finalizes a stuck reservation.
type ForceReleaseRequest struct {
	Note string `json:"note" validate:"required,max=500"`
}

// SweepResult reports one expiry pass.
type SweepResult struct {
	Released       int      `json:"released"`
	ReservationIDs []string `json:"reservationIds"`
}
