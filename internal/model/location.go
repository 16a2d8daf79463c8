package model

import "time"

// Location is a venue where members check in.
type Location struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Address         string    `json:"address,omitempty"`
	LocalGovernment string    `json:"local_government"`
	State           string    `json:"state"`
	Capacity        *int      `json:"capacity,omitempty"`
	Active          bool      `json:"active"`
	Description     string    `json:"description,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
