package types

import "github.com/google/uuid"

// InitialRanking is the round-one projection for one output.
type InitialRanking struct {
	OutputID uuid.UUID `json:"output_id"`
	AvgScore float64   `json:"initial_avg_score"`
	Rank     int       `json:"initial_rank"`
	Count    int       `json:"evaluation_count"`
}

// FinalRanking is the round-two projection for one finalist.
type FinalRanking struct {
	OutputID   uuid.UUID `json:"output_id"`
	TotalScore int       `json:"final_total_score"`
	Rank       int       `json:"final_rank"`
	// Responses counts completed final-stage evaluations, ranked or not.
	Responses int `json:"responses"`
}
