package models

import "time"

// Profile is the server-side identity row for one device. Exactly one
// profile exists per device_id; registration upserts it.
type Profile struct {
	ID          string     `json:"id"`
	DeviceID    string     `json:"device_id"`
	DisplayName string     `json:"display_name"`
	Avatar      *string    `json:"avatar,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// PublicProfile is the shape exposed to other clients. device_id stays
// private to the owning device.
type PublicProfile struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Avatar      *string `json:"avatar,omitempty"`
}

func (p *Profile) Public() PublicProfile {
	return PublicProfile{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
	}
}
