package models

import "time"

// RewardCredit is the at-most-once credit issued for an accepted offer.
type RewardCredit struct {
	OfferID    string    `db:"offer_id" json:"offerId"`
	DonorID    string    `db:"donor_id" json:"donorId"`
	Amount     int       `db:"amount" json:"amount"`
	CreditedAt time.Time `db:"credited_at" json:"creditedAt"`
}

// DonorRewards is a donor's running balance.
type DonorRewards struct {
	DonorID        string    `db:"donor_id" json:"donorId"`
	Points         int       `db:"points" json:"points"`
	DonationsCount int       `db:"donations_count" json:"donationsCount"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}
