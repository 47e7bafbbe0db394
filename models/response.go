package models

// ErrorResponse is a generic error response structure for API
type ErrorResponse struct {
	Message string `json:"message" example:"Error message describing the issue"`
}

// MessageResponse is a generic success acknowledgement for operations
// that do not return a resource body.
type MessageResponse struct {
	Message string `json:"message" example:"ok"`
}
