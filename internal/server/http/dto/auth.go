package dto

// AuthRequest carries registration or login credentials.
type AuthRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AuthResponse is returned after a session is issued. The token travels in
// the Authorization header and the auth cookie.
type AuthResponse struct {
	UserID int64 `json:"user_id"`
	Points int64 `json:"points"`
}
