package tours

import (
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Tour is a guided walk past the locations of the ghosts it includes.
// SignedUp is only set when the list is requested for a viewer.
type Tour struct {
	ID          int64     `json:"id"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Guide       string    `json:"guide"`
	Path        string    `json:"path"`
	GhostCount  int64     `json:"ghostCount"`
	SignupCount int64     `json:"signupCount"`
	SignedUp    *bool     `json:"signedUp,omitempty"`
}

type Participant struct {
	UserID   int64  `json:"userID" gorm:"column:user_id"`
	Username string `json:"username" gorm:"column:username"`
}

// Membership is the outcome of joining or leaving a tour.
type Membership struct {
	TourID      int64 `json:"tourId"`
	UserID      int64 `json:"userID"`
	SignedUp    bool  `json:"signedUp"`
	SignupCount int64 `json:"signupCount"`
}

type CreateRequest struct {
	Guide     string
	Path      string
	StartTime time.Time
	EndTime   time.Time
	GhostIDs  []int64
}

type tourRow struct {
	ID            int64     `gorm:"column:id"`
	StartTime     time.Time `gorm:"column:start_time"`
	EndTime       time.Time `gorm:"column:end_time"`
	Guide         string    `gorm:"column:guide"`
	Path          string    `gorm:"column:path"`
	GhostCount    int64     `gorm:"column:ghost_count"`
	SignupCount   int64     `gorm:"column:signup_count"`
	ViewerSignups *int64    `gorm:"column:viewer_signups"`
}

func (r tourRow) tour() Tour {
	tour := Tour{
		ID:          r.ID,
		StartTime:   r.StartTime.UTC(),
		EndTime:     r.EndTime.UTC(),
		Guide:       r.Guide,
		Path:        r.Path,
		GhostCount:  r.GhostCount,
		SignupCount: r.SignupCount,
	}
	if r.ViewerSignups != nil {
		signedUp := *r.ViewerSignups > 0
		tour.SignedUp = &signedUp
	}
	return tour
}

type signupCounts struct {
	Total  int64 `gorm:"column:total"`
	Viewer int64 `gorm:"column:viewer"`
}

var ErrInvalidTime = errors.New("tours: unrecognized time format")

// Layouts tried first for tour times: RFC 3339 and the browser
// datetime-local form, which carries no zone and is read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTime reads a tour start or end time. Other common date formats are
// accepted too, interpreted as UTC when they carry no zone.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidTime
	}
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.UTC(), nil
		}
	}
	parsed, err := dateparse.ParseIn(value, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidTime
	}
	return parsed.UTC(), nil
}

// uniqueIDs drops repeated ids, keeping first occurrences in order.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
