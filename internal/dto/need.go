package dto

// SetTargetRequest overrides the default target of one report item.
type SetTargetRequest struct {
	Target int `json:"target" validate:"required,gt=0,lte=1000000"`
}

// ManifestQuery selects reservations for a pickup manifest export.
type ManifestQuery struct {
	Format   string `form:"format"`
	Status   string `form:"status"`
	ReportID string `form:"reportId"`
}
