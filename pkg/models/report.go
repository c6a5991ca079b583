package models

import (
	"encoding/json"
	"time"
)

// Report is the publishable outcome of a detection run.
type Report struct {
	RunID         string         `json:"run_id"`
	CreatedAt     time.Time      `json:"created_at"`
	Source        string         `json:"source"`
	ModelLocation string         `json:"model_location,omitempty"`
	SeqLength     int            `json:"seq_length"`
	Features      int            `json:"features"`
	TrainWindows  int            `json:"train_windows"`
	TestWindows   int            `json:"test_windows"`
	TopK          int            `json:"top_k"`
	FinalLoss     float64        `json:"final_loss"`
	Summary       ScoreSummary   `json:"summary"`
	Normal        []ScoredWindow `json:"normal"`
	Anomalous     []ScoredWindow `json:"anomalous"`
}

// MarshalJSON encodes a non-finite final loss as null.
func (r Report) MarshalJSON() ([]byte, error) {
	type alias Report
	return json.Marshal(struct {
		alias
		FinalLoss *float64 `json:"final_loss"`
	}{alias: alias(r), FinalLoss: finiteOrNil(r.FinalLoss)})
}
