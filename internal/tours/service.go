package tours

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/apierr"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/ghosts"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"go.uber.org/zap"
)

const (
	opList         = "tours.list"
	opGet          = "tours.get"
	opCreate       = "tours.create"
	opGhosts       = "tours.ghosts"
	opParticipants = "tours.participants"
	opJoin         = "tours.join"
	opLeave        = "tours.leave"
)

var errMissingStore = errors.New("tours: store is required")

const tourCounts = `SELECT t.id, t.start_time, t.end_time, t.guide, t.path,
	(SELECT COUNT(*) FROM tour_includes i WHERE i.tour_id = t.id) AS ghost_count,
	(SELECT COUNT(*) FROM tour_sign_ups su WHERE su.tour_id = t.id) AS signup_count`

const viewerSignups = `,
	(SELECT COUNT(*) FROM tour_sign_ups v WHERE v.tour_id = t.id AND v.user_id = ?) AS viewer_signups`

type ServiceConfig struct {
	Store  store.Store
	Logger *zap.Logger
}

type Service struct {
	store  store.Store
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, logger: logger}, nil
}

// List returns every tour, latest start first. With a viewer each tour also
// reports whether that user is signed up.
func (s *Service) List(ctx context.Context, viewerID *int64) ([]Tour, error) {
	query := tourCounts
	var args []any
	if viewerID != nil {
		query += viewerSignups
		args = append(args, *viewerID)
	}
	query += " FROM tours t ORDER BY t.start_time DESC, t.id DESC"

	var rows []tourRow
	if err := s.store.Query(ctx, &rows, query, args...); err != nil {
		return nil, s.internal(opList, "query_failed", err)
	}
	tours := make([]Tour, 0, len(rows))
	for _, row := range rows {
		tours = append(tours, row.tour())
	}
	return tours, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Tour, error) {
	tour, found, err := getTour(ctx, s.store, id)
	if err != nil {
		return Tour{}, s.internal(opGet, "query_failed", err)
	}
	if !found {
		return Tour{}, apierr.NotFound("tour_not_found")
	}
	return tour, nil
}

// Create stores a tour and its ghost inclusions in one transaction.
func (s *Service) Create(ctx context.Context, request CreateRequest) (Tour, error) {
	guide := strings.TrimSpace(request.Guide)
	path := strings.TrimSpace(request.Path)
	ghostIDs := uniqueIDs(request.GhostIDs)
	if guide == "" || path == "" || request.StartTime.IsZero() || request.EndTime.IsZero() || len(ghostIDs) == 0 {
		return Tour{}, apierr.Validation("missing_fields")
	}
	if !request.StartTime.Before(request.EndTime) {
		return Tour{}, apierr.Validation("invalid_time_range")
	}

	var tourID int64
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		for _, ghostID := range ghostIDs {
			exists, err := ghosts.Exists(ctx, tx, ghostID)
			if err != nil {
				return s.internal(opCreate, "ghost_lookup_failed", err)
			}
			if !exists {
				return apierr.NotFound("ghost_not_found")
			}
		}

		result, err := tx.Run(ctx,
			"INSERT INTO tours (start_time, end_time, guide, path) VALUES (?, ?, ?, ?)",
			request.StartTime.UTC(), request.EndTime.UTC(), guide, path,
		)
		if err != nil {
			return s.internal(opCreate, "insert_failed", err)
		}
		tourID = result.GeneratedID

		for _, ghostID := range ghostIDs {
			if _, err := tx.Run(ctx, "INSERT INTO tour_includes (tour_id, ghost_id) VALUES (?, ?)", tourID, ghostID); err != nil {
				return s.internal(opCreate, "include_failed", err, zap.Int64("ghost_id", ghostID))
			}
		}
		return nil
	})
	if err != nil {
		return Tour{}, err
	}
	return s.Get(ctx, tourID)
}

// Ghosts returns the ghosts a tour includes, by name.
func (s *Service) Ghosts(ctx context.Context, tourID int64) ([]ghosts.Ghost, error) {
	if err := s.requireTour(ctx, opGhosts, tourID); err != nil {
		return nil, err
	}
	var rows []ghosts.Ghost
	if err := s.store.Query(ctx, &rows,
		`SELECT g.id, g.ghost_type, g.name, g.description, g.visibility,
			(SELECT COUNT(*) FROM sighting_reports_ghost l WHERE l.ghost_id = g.id) AS sighting_count
		FROM tour_includes i JOIN ghosts g ON g.id = i.ghost_id
		WHERE i.tour_id = ? ORDER BY g.name ASC, g.id ASC`,
		tourID,
	); err != nil {
		return nil, s.internal(opGhosts, "query_failed", err)
	}
	for index := range rows {
		rows[index].VisibilityLabel = ghosts.VisibilityLabel(rows[index].Visibility)
	}
	if rows == nil {
		rows = []ghosts.Ghost{}
	}
	return rows, nil
}

// Participants returns the users signed up for a tour, by username.
func (s *Service) Participants(ctx context.Context, tourID int64) ([]Participant, error) {
	if err := s.requireTour(ctx, opParticipants, tourID); err != nil {
		return nil, err
	}
	var rows []Participant
	if err := s.store.Query(ctx, &rows,
		`SELECT u.id AS user_id, u.username FROM tour_sign_ups su
		JOIN users u ON u.id = su.user_id
		WHERE su.tour_id = ? ORDER BY u.username ASC, u.id ASC`,
		tourID,
	); err != nil {
		return nil, s.internal(opParticipants, "query_failed", err)
	}
	if rows == nil {
		rows = []Participant{}
	}
	return rows, nil
}

// Join signs a user up. Joining twice is a no-op.
func (s *Service) Join(ctx context.Context, tourID, userID int64) (Membership, error) {
	if userID <= 0 {
		return Membership{}, apierr.Validation("missing_fields")
	}
	if err := s.requireTour(ctx, opJoin, tourID); err != nil {
		return Membership{}, err
	}
	var users int64
	if err := s.store.Query(ctx, &users, "SELECT COUNT(*) FROM users WHERE id = ?", userID); err != nil {
		return Membership{}, s.internal(opJoin, "user_lookup_failed", err)
	}
	if users == 0 {
		return Membership{}, apierr.NotFound("user_not_found")
	}
	if _, err := s.store.InsertIgnore(ctx, "tour_sign_ups", []string{"user_id", "tour_id"}, userID, tourID); err != nil {
		return Membership{}, s.internal(opJoin, "insert_failed", err)
	}
	return s.membership(ctx, opJoin, tourID, userID)
}

// Leave removes a user's signup. Leaving a tour one is not on succeeds.
func (s *Service) Leave(ctx context.Context, tourID, userID int64) (Membership, error) {
	if userID <= 0 {
		return Membership{}, apierr.Validation("missing_fields")
	}
	if _, err := s.store.Run(ctx, "DELETE FROM tour_sign_ups WHERE user_id = ? AND tour_id = ?", userID, tourID); err != nil {
		return Membership{}, s.internal(opLeave, "delete_failed", err)
	}
	return s.membership(ctx, opLeave, tourID, userID)
}

func (s *Service) membership(ctx context.Context, operation string, tourID, userID int64) (Membership, error) {
	var counts []signupCounts
	if err := s.store.Query(ctx, &counts,
		`SELECT COUNT(*) AS total, COALESCE(SUM(CASE WHEN user_id = ? THEN 1 ELSE 0 END), 0) AS viewer
		FROM tour_sign_ups WHERE tour_id = ?`,
		userID, tourID,
	); err != nil {
		return Membership{}, s.internal(operation, "count_failed", err)
	}
	membership := Membership{TourID: tourID, UserID: userID}
	if len(counts) > 0 {
		membership.SignupCount = counts[0].Total
		membership.SignedUp = counts[0].Viewer > 0
	}
	return membership, nil
}

func (s *Service) requireTour(ctx context.Context, operation string, tourID int64) error {
	var count int64
	if err := s.store.Query(ctx, &count, "SELECT COUNT(*) FROM tours WHERE id = ?", tourID); err != nil {
		return s.internal(operation, "tour_lookup_failed", err)
	}
	if count == 0 {
		return apierr.NotFound("tour_not_found")
	}
	return nil
}

func getTour(ctx context.Context, st store.Store, id int64) (Tour, bool, error) {
	var rows []tourRow
	if err := st.Query(ctx, &rows, tourCounts+" FROM tours t WHERE t.id = ?", id); err != nil {
		return Tour{}, false, err
	}
	if len(rows) == 0 {
		return Tour{}, false, nil
	}
	return rows[0].tour(), true, nil
}

func (s *Service) internal(operation, reason string, err error, fields ...zap.Field) error {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("tours service error", attrs...)
	return apierr.Internal(operation, reason, err)
}
