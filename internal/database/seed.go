package database

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/auth"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"go.uber.org/zap"
)

// SeedPassword is the password of every demonstration account.
const SeedPassword = "boo-who"

type seedStatement struct {
	label string
	query string
	args  []any
}

// seedTables carry explicit ids and need their autoincrement counters moved.
var seedTables = []string{"users", "ghosts", "sightings", "tours"}

// Seed inserts the demonstration data when the users table is empty. A failing
// statement is logged and skipped. It returns the number of statements that
// succeeded; zero when the database already holds users.
func Seed(ctx context.Context, st store.Store, logger *zap.Logger, now time.Time) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var userCount int64
	if err := st.Query(ctx, &userCount, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, err
	}
	if userCount > 0 {
		logger.Debug("seed skipped, users present", zap.Int64("users", userCount))
		return 0, nil
	}

	passwordHash, err := auth.HashPassword(SeedPassword)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, statement := range seedStatements(now.UTC(), passwordHash) {
		if _, err := st.Run(ctx, statement.query, statement.args...); err != nil {
			logger.Warn("seed statement failed",
				zap.String("statement", statement.label),
				zap.Error(err),
			)
			continue
		}
		applied++
	}

	for _, table := range seedTables {
		if err := st.ResyncSequence(ctx, table); err != nil {
			logger.Warn("sequence resync failed", zap.String("table", table), zap.Error(err))
		}
	}
	return applied, nil
}

func seedStatements(now time.Time, passwordHash string) []seedStatement {
	day := 24 * time.Hour
	const (
		insertUser        = "INSERT INTO users (id, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)"
		insertGhost       = "INSERT INTO ghosts (id, ghost_type, name, description, visibility) VALUES (?, ?, ?, ?, ?)"
		insertBuster      = "INSERT INTO ghost_busters (user_id, ghosts_busted, alias) VALUES (?, ?, ?)"
		insertSighting    = "INSERT INTO sightings (id, visibility, sighted_at, user_report_id, latitude, longitude, description) VALUES (?, ?, ?, ?, ?, ?, ?)"
		insertLink        = "INSERT INTO sighting_reports_ghost (sighting_id, ghost_id) VALUES (?, ?)"
		insertSightingCmt = "INSERT INTO sighting_comments (user_id, sighting_id, report_time, description) VALUES (?, ?, ?, ?)"
		insertGhostCmt    = "INSERT INTO ghost_comments (user_id, ghost_id, report_time, description) VALUES (?, ?, ?, ?)"
		insertTour        = "INSERT INTO tours (id, start_time, end_time, guide, path) VALUES (?, ?, ?, ?, ?)"
		insertInclude     = "INSERT INTO tour_includes (tour_id, ghost_id) VALUES (?, ?)"
		insertSignUp      = "INSERT INTO tour_sign_ups (user_id, tour_id) VALUES (?, ?)"
	)

	return []seedStatement{
		{label: "user casper", query: insertUser, args: []any{1, "casper", "casper@campus.edu", passwordHash, now.Add(-30 * day)}},
		{label: "user elvira", query: insertUser, args: []any{2, "elvira", "elvira@campus.edu", passwordHash, now.Add(-21 * day)}},
		{label: "user venkman", query: insertUser, args: []any{3, "venkman", "venkman@campus.edu", passwordHash, now.Add(-14 * day)}},

		{label: "ghost unknown", query: insertGhost, args: []any{1, "Unknown", "Unknown", "Unidentified presence awaiting a name.", 5}},
		{label: "ghost grey lady", query: insertGhost, args: []any{2, "Apparition", "Grey Lady", "Drifts along the library's third floor stacks.", 7}},
		{label: "ghost poltergeist", query: insertGhost, args: []any{3, "Poltergeist", "Chem Lab Rattler", "Knocks beakers off the benches after midnight.", 4}},
		{label: "ghost bell tower", query: insertGhost, args: []any{4, "Shade", "Bell Tower Shade", "A tall silhouette seen against the bell tower clock.", 9}},

		{label: "buster venkman", query: insertBuster, args: []any{3, 2, "Dr. V"}},

		{label: "sighting 1", query: insertSighting, args: []any{1, 8, now.Add(-3 * day), 1, 40.8075, -73.9626, "Cold draft and a grey figure between the shelves."}},
		{label: "sighting 2", query: insertSighting, args: []any{2, 3, now.Add(-2 * day), 2, 40.8090, -73.9610, "Beakers rattled on their own in room 214."}},
		{label: "sighting 3", query: insertSighting, args: []any{3, 9, now.Add(-1 * day), 3, nil, nil, "Silhouette crossed the clock face at 3am."}},
		{label: "sighting 4", query: insertSighting, args: []any{4, 5, now.Add(-6 * time.Hour), 1, nil, nil, "Footsteps in the empty quad."}},

		{label: "link 1", query: insertLink, args: []any{1, 2}},
		{label: "link 2", query: insertLink, args: []any{2, 3}},
		{label: "link 3", query: insertLink, args: []any{3, 4}},
		{label: "link 4", query: insertLink, args: []any{4, 1}},

		{label: "sighting comment 1", query: insertSightingCmt, args: []any{2, 1, now.Add(-3*day + time.Hour), "I felt the draft too."}},
		{label: "sighting comment 2", query: insertSightingCmt, args: []any{3, 1, now.Add(-3*day + 2*time.Hour), "Bringing the proton pack tonight."}},
		{label: "sighting comment 3", query: insertSightingCmt, args: []any{1, 3, now.Add(-1*day + time.Hour), "Was it wearing a hat?"}},
		{label: "ghost comment 1", query: insertGhostCmt, args: []any{1, 2, now.Add(-2 * day), "She seems friendly."}},
		{label: "ghost comment 2", query: insertGhostCmt, args: []any{3, 3, now.Add(-1 * day), "Definitely class 3."}},

		{label: "tour 1", query: insertTour, args: []any{1, now.Add(2 * day), now.Add(2*day + 2*time.Hour), "Elvira", "Library -> Chem Building -> Bell Tower"}},
		{label: "tour 2", query: insertTour, args: []any{2, now.Add(5 * day), now.Add(5*day + 90*time.Minute), "Dr. V", "Quad -> Bell Tower"}},
		{label: "tour 1 includes grey lady", query: insertInclude, args: []any{1, 2}},
		{label: "tour 1 includes rattler", query: insertInclude, args: []any{1, 3}},
		{label: "tour 1 includes shade", query: insertInclude, args: []any{1, 4}},
		{label: "tour 2 includes shade", query: insertInclude, args: []any{2, 4}},
		{label: "signup casper tour 1", query: insertSignUp, args: []any{1, 1}},
		{label: "signup venkman tour 1", query: insertSignUp, args: []any{3, 1}},
		{label: "signup casper tour 2", query: insertSignUp, args: []any{1, 2}},
	}
}
