package models

import "time"

// Device carries the client-reported and request-derived metadata stored with
// a session. All fields are cosmetic.
type Device struct {
	DeviceID   string `db:"device_id" json:"device_id"`
	DeviceName string `db:"device_name" json:"device_name"`
	DeviceType string `db:"device_type" json:"device_type"`
	Browser    string `db:"browser" json:"browser"`
	OS         string `db:"os" json:"os"`
	IPAddress  string `db:"ip_address" json:"ip_address"`
	Location   string `db:"location" json:"location"`
	UserAgent  string `db:"user_agent" json:"user_agent"`
}

// Session is one authenticated device. Its ID is the jti of every access
// token issued for it.
type Session struct {
	ID     string `db:"id"`
	UserID string `db:"user_id"`
	Device
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	ExpiresAt    time.Time `db:"expires_at"`
	RefreshToken *string   `db:"refresh_token"`
}

// Usable reports whether the session may authenticate requests at now.
func (s *Session) Usable(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}
