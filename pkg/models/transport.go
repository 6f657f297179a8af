package models

// AnalyzeRequest asks the API to fetch a remote image and analyze it
type AnalyzeRequest struct {
	URL      string                  `json:"url" binding:"required,url"`
	Channels int                     `json:"channels" binding:"required"`
	Options  *AnalysisOptionsPayload `json:"options,omitempty"`
}

// AnalysisOptionsPayload carries per-request pipeline overrides.
// Nil fields keep the server defaults.
type AnalysisOptionsPayload struct {
	SoilFactor       *float64 `json:"soil_factor,omitempty"`
	GridResolution   *int     `json:"grid_resolution,omitempty"`
	HealthyThreshold *float64 `json:"healthy_threshold,omitempty"`
}

// GPSPoint is the capture location attached to an upload
type GPSPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UploadResponse acknowledges a stored field image
type UploadResponse struct {
	ImageID    string `json:"image_id"`
	Filename   string `json:"filename"`
	StorageKey string `json:"storage_key"`
	Status     string `json:"status"`
}

// AnalysisSnapshot is the stored view of a field image and its analysis.
// Analysis and StressZones are empty while the image is still queued or
// processing.
type AnalysisSnapshot struct {
	Image       *FieldImage        `json:"image"`
	Analysis    *AnalysisRecord    `json:"analysis,omitempty"`
	StressZones []StressZoneRecord `json:"stress_zones,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
