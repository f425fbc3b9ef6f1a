package models

import "time"

// RecentSubmission is a read-only row from the report history collaborator.
type RecentSubmission struct {
	ID                 uint      `json:"id"`
	CaseID             string    `json:"case_id"`
	Location           string    `json:"location"`
	Date               time.Time `json:"date"`
	Status             string    `json:"status"`
	SimilarReportCount int       `json:"similar_reports"`
}

// DashboardStats mirrors the dashboard collaborator's stats payload.
type DashboardStats struct {
	TotalCases  int `json:"totalCases"`
	UnderReview int `json:"underReview"`
	Approved    int `json:"approved"`
	InProgress  int `json:"inProgress"`
	Completed   int `json:"completed"`
	Rejected    int `json:"rejected"`
}

// LoginRequest is the credential payload for the auth collaborator.
type LoginRequest struct {
	Email    string `json:"email" conform:"trim,lower" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the bearer token issued by the auth collaborator.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}
