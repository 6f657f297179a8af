package models

import "time"

// Field image processing statuses as stored in field_images.status
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// FieldImage is one uploaded capture moving through the processing flow
// uploaded -> processing -> completed/failed
type FieldImage struct {
	ID           string     `db:"id" json:"id"`
	Filename     string     `db:"filename" json:"filename"`
	StorageKey   string     `db:"storage_key" json:"storage_key"`
	SourceURL    *string    `db:"source_url" json:"source_url,omitempty"`
	Channels     int        `db:"channels" json:"channels"`
	Status       string     `db:"status" json:"status"`
	GPSLatitude  *float64   `db:"gps_latitude" json:"gps_latitude,omitempty"`
	GPSLongitude *float64   `db:"gps_longitude" json:"gps_longitude,omitempty"`
	RetryCount   int        `db:"retry_count" json:"retry_count"`
	LastError    *string    `db:"last_error" json:"last_error,omitempty"`
	UploadedAt   time.Time  `db:"uploaded_at" json:"uploaded_at"`
	ProcessedAt  *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

// AnalysisRecord is the flattened crop_analyses row for one image.
// Index columns are nullable because 3-channel captures carry no NIR indices.
type AnalysisRecord struct {
	ID      string `db:"id" json:"id"`
	ImageID string `db:"image_id" json:"image_id"`

	NDVIMean  *float64 `db:"ndvi_mean" json:"ndvi_mean"`
	NDVIStd   *float64 `db:"ndvi_std" json:"ndvi_std"`
	NDVIMin   *float64 `db:"ndvi_min" json:"ndvi_min"`
	NDVIMax   *float64 `db:"ndvi_max" json:"ndvi_max"`
	SAVIMean  *float64 `db:"savi_mean" json:"savi_mean"`
	SAVIStd   *float64 `db:"savi_std" json:"savi_std"`
	SAVIMin   *float64 `db:"savi_min" json:"savi_min"`
	SAVIMax   *float64 `db:"savi_max" json:"savi_max"`
	GNDVIMean *float64 `db:"gndvi_mean" json:"gndvi_mean"`
	GNDVIStd  *float64 `db:"gndvi_std" json:"gndvi_std"`
	GNDVIMin  *float64 `db:"gndvi_min" json:"gndvi_min"`
	GNDVIMax  *float64 `db:"gndvi_max" json:"gndvi_max"`

	HealthScore  float64   `db:"health_score" json:"health_score"`
	HealthStatus string    `db:"health_status" json:"health_status"`
	Summary      string    `db:"summary" json:"summary"`
	AnalysisType string    `db:"analysis_type" json:"analysis_type"`
	ModelVersion *string   `db:"model_version" json:"model_version,omitempty"`
	Confidence   float64   `db:"confidence" json:"confidence"`
	OverlayKey   *string   `db:"overlay_key" json:"overlay_key,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// StressZoneRecord is one stress_zones row
type StressZoneRecord struct {
	AnalysisID string  `db:"analysis_id" json:"analysis_id"`
	GridX      int     `db:"grid_x" json:"grid_x"`
	GridY      int     `db:"grid_y" json:"grid_y"`
	Severity   float64 `db:"severity" json:"severity"`
	IndexValue float64 `db:"index_value" json:"index_value"`
}

// NewAnalysisRecord flattens an analysis result into its crop_analyses row
func NewAnalysisRecord(imageID string, res *AnalysisResult) AnalysisRecord {
	rec := AnalysisRecord{
		ID:           res.ID,
		ImageID:      imageID,
		HealthScore:  res.HealthScore,
		HealthStatus: string(res.Classification.Category),
		Summary:      res.Summary,
		AnalysisType: res.Classification.AnalysisType,
		Confidence:   res.Classification.Confidence,
		CreatedAt:    res.Timestamp,
	}
	if res.Classification.ModelVersion != "" {
		v := res.Classification.ModelVersion
		rec.ModelVersion = &v
	}
	if res.OverlayKey != "" {
		k := res.OverlayKey
		rec.OverlayKey = &k
	}
	if res.NDVI != nil {
		rec.NDVIMean, rec.NDVIStd = &res.NDVI.Mean, &res.NDVI.StdDev
		rec.NDVIMin, rec.NDVIMax = &res.NDVI.Min, &res.NDVI.Max
	}
	if res.SAVI != nil {
		rec.SAVIMean, rec.SAVIStd = &res.SAVI.Mean, &res.SAVI.StdDev
		rec.SAVIMin, rec.SAVIMax = &res.SAVI.Min, &res.SAVI.Max
	}
	if res.GNDVI != nil {
		rec.GNDVIMean, rec.GNDVIStd = &res.GNDVI.Mean, &res.GNDVI.StdDev
		rec.GNDVIMin, rec.GNDVIMax = &res.GNDVI.Min, &res.GNDVI.Max
	}
	return rec
}

// ZoneRecords converts the result's stress grid into stress_zones rows
func ZoneRecords(analysisID string, zones []StressZone) []StressZoneRecord {
	records := make([]StressZoneRecord, 0, len(zones))
	for _, z := range zones {
		records = append(records, StressZoneRecord{
			AnalysisID: analysisID,
			GridX:      z.GridX,
			GridY:      z.GridY,
			Severity:   z.Severity,
			IndexValue: z.IndexValue,
		})
	}
	return records
}
