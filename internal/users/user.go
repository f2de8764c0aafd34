package users

import "time"

// Profile is the public view of an account. It never carries the email or
// the password hash.
type Profile struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	CreatedAt     time.Time `json:"createdAt"`
	GhostBuster   bool      `json:"ghostBuster"`
	GhostsBusted  int       `json:"ghostsBusted"`
	Alias         string    `json:"alias,omitempty"`
	SightingCount int64     `json:"sightingCount"`
}

// BusterStatus describes a user's ghost-buster role.
type BusterStatus struct {
	UserID       int64  `json:"userID"`
	GhostBuster  bool   `json:"ghostBuster"`
	GhostsBusted int    `json:"ghostsBusted"`
	Alias        string `json:"alias,omitempty"`
}

// FightState reports whether a user is currently fighting a ghost.
type FightState struct {
	UserID   int64 `json:"userID"`
	GhostID  int64 `json:"ghostId"`
	Fighting bool  `json:"fighting"`
}

// Fight is one fight in progress.
type Fight struct {
	GhostID   int64  `json:"ghostId" gorm:"column:ghost_id"`
	GhostName string `json:"ghostName" gorm:"column:ghost_name"`
}

type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

type profileRow struct {
	ID            int64     `gorm:"column:id"`
	Username      string    `gorm:"column:username"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	BusterID      *int64    `gorm:"column:buster_id"`
	GhostsBusted  *int      `gorm:"column:ghosts_busted"`
	Alias         *string   `gorm:"column:alias"`
	SightingCount int64     `gorm:"column:sighting_count"`
}

func (r profileRow) profile() Profile {
	profile := Profile{
		ID:            r.ID,
		Username:      r.Username,
		CreatedAt:     r.CreatedAt.UTC(),
		GhostBuster:   r.BusterID != nil,
		SightingCount: r.SightingCount,
	}
	if r.GhostsBusted != nil {
		profile.GhostsBusted = *r.GhostsBusted
	}
	if r.Alias != nil {
		profile.Alias = *r.Alias
	}
	return profile
}

type credentialRow struct {
	ID           int64  `gorm:"column:id"`
	PasswordHash string `gorm:"column:password_hash"`
}

type busterRow struct {
	UserID       int64   `gorm:"column:user_id"`
	GhostsBusted int     `gorm:"column:ghosts_busted"`
	Alias        *string `gorm:"column:alias"`
}
