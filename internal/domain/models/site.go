package models

// Site groups blocks under common management. Its metrics are always derived.
type Site struct {
	ID      string   `bson:"_id" json:"id"`
	Code    string   `bson:"code" json:"code"`
	Name    string   `bson:"name,omitempty" json:"name,omitempty"`
	UnitIDs []string `bson:"unit_ids" json:"unit_ids"`
}

// CropProfile is the crop reference data used to seed predictions.
type CropProfile struct {
	ID                    string        `json:"id"`
	Name                  string        `json:"name"`
	PredictedYieldPerItem float64       `json:"predicted_yield_per_item"`
	CycleDurationDays     int           `json:"cycle_duration_days"`
	StageOffsets          map[State]int `json:"stage_offsets,omitempty"`
}
