package dto

type NotificationRequest struct {
	Target string `json:"target" binding:"required"`
}

type SubscribersResponse struct {
	SessionID string   `json:"session_id"`
	Targets   []string `json:"targets"`
}
