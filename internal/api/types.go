package api

import "time"

// Profile is the authenticated user as the backend reports it.
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role,omitempty"`
}

// MetricsOverview is the dashboard payload: current balance, KPI ranking and
// category distribution for the active period.
type MetricsOverview struct {
	Period       string    `json:"period"`
	Balance      Balance   `json:"balance"`
	Ranking      []KPI     `json:"ranking"`
	Distribution []Segment `json:"distribution"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

// Balance summarizes money in and out for the period.
type Balance struct {
	Currency string  `json:"currency"`
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Net      float64 `json:"net"`
}

// KPI is one ranked performance indicator.
type KPI struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
	Delta float64 `json:"delta"` // change vs previous period, same unit
}

// Segment is one slice of the category distribution.
type Segment struct {
	Label string  `json:"label"`
	Share float64 `json:"share"` // 0..1
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

type loginResponse struct {
	Token   string  `json:"token"`
	Profile Profile `json:"profile"`
}
