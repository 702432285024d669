package dto

import "time"

type SessionStateResponse struct {
	Backend         string    `json:"backend"`
	Status          string    `json:"status"`
	Label           string    `json:"label"`
	Detail          string    `json:"detail,omitempty"`
	Model           string    `json:"model,omitempty"`
	Temperature     float64   `json:"temperature"`
	TopK            int       `json:"top_k"`
	MaxOutputTokens int       `json:"max_output_tokens"`
	UpdatedAt       time.Time `json:"updated_at"`
}
