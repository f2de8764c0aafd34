package ghosts

import "github.com/MarcoPoloResearchLab/ghostwatch/internal/apierr"

const (
	// UnknownName is the sentinel ghost sightings are linked to when the
	// reporter does not know what they saw.
	UnknownName = "Unknown"

	DefaultVisibility = 5
	MinVisibility     = 0
	MaxVisibility     = 10
)

// Ghost is a canonical paranormal entity with its derived sighting count.
type Ghost struct {
	ID              int64  `json:"id" gorm:"column:id"`
	GhostType       string `json:"type" gorm:"column:ghost_type"`
	Name            string `json:"name" gorm:"column:name"`
	Description     string `json:"description" gorm:"column:description"`
	Visibility      int    `json:"visibility" gorm:"column:visibility"`
	VisibilityLabel string `json:"visibilityLabel" gorm:"-"`
	SightingCount   int64  `json:"sightingCount" gorm:"column:sighting_count"`
}

// VisibilityLabel buckets a 0..10 visibility score.
func VisibilityLabel(visibility int) string {
	switch {
	case visibility < 5:
		return "Faint"
	case visibility < 8:
		return "Clear"
	default:
		return "Very Clear"
	}
}

// ResolveVisibility applies the default for a missing value and rejects
// values outside the 0..10 scale.
func ResolveVisibility(value *int) (int, error) {
	if value == nil {
		return DefaultVisibility, nil
	}
	if *value < MinVisibility || *value > MaxVisibility {
		return 0, apierr.Validation("invalid_visibility")
	}
	return *value, nil
}
