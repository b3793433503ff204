package dto

import "time"

type IssueTicketRequest struct {
	SubjectID string `json:"subject_id" binding:"required"`
}

type IssueTicketResponse struct {
	Token     string    `json:"token"`
	SubjectID string    `json:"subject_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RedeemTicketRequest struct {
	Token string `json:"token" binding:"required"`
}

type RedeemTicketResponse struct {
	AccessToken string `json:"access_token"`
}
