package sightings

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/ghosts"
)

// Sighting is the normalized view of one report: coordinates and the ghost id
// are null when absent and the ghost name falls back to "Unknown".
type Sighting struct {
	ID              int64     `json:"id" gorm:"column:id"`
	Visibility      int       `json:"visibility" gorm:"column:visibility"`
	VisibilityLabel string    `json:"visibilityLabel" gorm:"-"`
	Time            time.Time `json:"time" gorm:"column:sighted_at"`
	UserReportID    int64     `json:"userReportID" gorm:"column:user_report_id"`
	ReporterName    string    `json:"reporterName" gorm:"-"`
	Latitude        *float64  `json:"latitude" gorm:"column:latitude"`
	Longitude       *float64  `json:"longitude" gorm:"column:longitude"`
	Description     string    `json:"description" gorm:"column:description"`
	GhostID         *int64    `json:"ghostId" gorm:"column:ghost_id"`
	GhostName       string    `json:"ghostName" gorm:"-"`

	Reporter *string `json:"-" gorm:"column:reporter_name"`
	LinkedAs *string `json:"-" gorm:"column:ghost_name"`
}

func (s *Sighting) normalize() {
	s.Time = s.Time.UTC()
	s.VisibilityLabel = ghosts.VisibilityLabel(s.Visibility)
	if s.Reporter != nil && *s.Reporter != "" {
		s.ReporterName = *s.Reporter
	} else {
		s.ReporterName = fmt.Sprintf("User %d", s.UserReportID)
	}
	if s.LinkedAs != nil && *s.LinkedAs != "" {
		s.GhostName = *s.LinkedAs
	} else {
		s.GhostName = ghosts.UnknownName
	}
}

// annotate prepends the free-text time of sighting to the description.
func annotate(timeOfSighting, description string) string {
	if timeOfSighting == "" {
		return description
	}
	return "Time of sighting: " + timeOfSighting + "\n" + description
}
