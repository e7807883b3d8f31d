package dto

type WebhookAckResponse struct {
	Status string `json:"status"`
}

type WebhookErrorResponse struct {
	Error string `json:"error"`
}
