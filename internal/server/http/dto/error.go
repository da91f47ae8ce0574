package dto

// ErrorResponse carries a stable error code. Amounts are set for balance errors only.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Required  *int64 `json:"required,omitempty"`
	Available *int64 `json:"available,omitempty"`
	Shortfall *int64 `json:"shortfall,omitempty"`
}
