package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// Severity is the disaster report's urgency tier.
type Severity string

const (
	SeverityCritical Severity = "kritis"
	SeverityAlert    Severity = "waspada"
	SeverityModerate Severity = "sedang"
)

// Default per-item targets by severity tier.
const (
	TargetCritical = 100
	TargetAlert    = 50
	TargetModerate = 30
)

// DefaultTarget maps a severity tier to its standard per-item target.
func DefaultTarget(s Severity) int {
	switch Severity(strings.ToLower(strings.TrimSpace(string(s)))) {
	case SeverityCritical:
		return TargetCritical
	case SeverityAlert:
		return TargetAlert
	default:
		return TargetModerate
	}
}

// Report is the read-only disaster report that declares item needs.
type Report struct {
	ID           string         `db:"id" json:"id"`
	Title        string         `db:"title" json:"title"`
	LocationName string         `db:"location_name" json:"locationName"`
	Severity     Severity       `db:"severity" json:"severity"`
	Needs        pq.StringArray `db:"needs" json:"needs"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

// NeedTarget is a moderator override of one item's target.
type NeedTarget struct {
	ReportID string    `db:"report_id" json:"reportId"`
	ItemName string    `db:"item_name" json:"itemName"`
	Target   int       `db:"target" json:"target"`
	SetBy    string    `db:"set_by" json:"setBy"`
	SetAt    time.Time `db:"set_at" json:"setAt"`
}

// TargetSource tells whether a need target came from severity or a moderator.
type TargetSource string

const (
	TargetSourceDefault  TargetSource = "default"
	TargetSourceOverride TargetSource = "override"
)

// NeedProgress is the derived view of one (report, item) need.
type NeedProgress struct {
	ReportID     string       `json:"reportId"`
	ItemName     string       `json:"item"`
	Collected    int          `json:"collected"`
	Target       int          `json:"target"`
	TargetSource TargetSource `json:"targetSource"`
	Fulfilled    bool         `json:"fulfilled"`
}

// AggregateNeeds derives progress for every item of report from offers. It is
// a pure function of its inputs: offers of other reports and offers outside
// the counted statuses are ignored, and input order does not matter beyond
// the report's own item order.
func AggregateNeeds(report Report, overrides []NeedTarget, offers []Offer) []NeedProgress {
	targets := make(map[string]int, len(overrides))
	for _, o := range overrides {
		if o.ReportID == report.ID && o.Target > 0 {
			targets[NormalizeItemName(o.ItemName)] = o.Target
		}
	}

	collected := make(map[string]int)
	for _, offer := range offers {
		if offer.ReportID == nil || *offer.ReportID != report.ID || !offer.Status.Counted() {
			continue
		}
		collected[NormalizeItemName(offer.ItemName)] += offer.Quantity
	}

	seen := make(map[string]struct{}, len(report.Needs))
	result := make([]NeedProgress, 0, len(report.Needs))
	for _, item := range report.Needs {
		key := NormalizeItemName(item)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		progress := NeedProgress{
			ReportID:     report.ID,
			ItemName:     strings.TrimSpace(item),
			Collected:    collected[key],
			Target:       DefaultTarget(report.Severity),
			TargetSource: TargetSourceDefault,
		}
		if t, ok := targets[key]; ok {
			progress.Target = t
			progress.TargetSource = TargetSourceOverride
		}
		progress.Fulfilled = progress.Collected >= progress.Target
		result = append(result, progress)
	}
	return result
}

// HasNeed reports whether item is declared by the report.
func (r Report) HasNeed(item string) bool {
	key := NormalizeItemName(item)
	for _, n := range r.Needs {
		if NormalizeItemName(n) == key {
			return true
		}
	}
	return false
}
