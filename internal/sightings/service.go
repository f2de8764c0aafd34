package sightings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/apierr"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/ghosts"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"go.uber.org/zap"
)

const (
	opList        = "sightings.list"
	opListByGhost = "sightings.list_by_ghost"
	opGet         = "sightings.get"
	opCreate      = "sightings.create"
	opRename      = "sightings.rename_ghost"
)

var errMissingStore = errors.New("sightings: store is required")

const selectColumns = `SELECT s.id, s.visibility, s.sighted_at, s.user_report_id, s.latitude, s.longitude,
	s.description, u.username AS reporter_name, gl.ghost_id AS ghost_id, g.name AS ghost_name
	FROM sightings s
	LEFT JOIN users u ON u.id = s.user_report_id`

// A sighting may link several ghosts; the lowest linked ghost id is reported.
const joinFirstGhost = `
	LEFT JOIN (SELECT sighting_id, MIN(ghost_id) AS ghost_id FROM sighting_reports_ghost GROUP BY sighting_id) gl
		ON gl.sighting_id = s.id
	LEFT JOIN ghosts g ON g.id = gl.ghost_id`

const joinGivenGhost = `
	JOIN sighting_reports_ghost gl ON gl.sighting_id = s.id AND gl.ghost_id = ?
	LEFT JOIN ghosts g ON g.id = gl.ghost_id`

const orderNewestFirst = " ORDER BY s.sighted_at DESC, s.id DESC"

type ServiceConfig struct {
	Store  store.Store
	Clock  func() time.Time
	Logger *zap.Logger
}

type Service struct {
	store  store.Store
	now    func() time.Time
	logger *zap.Logger
}

// CreateRequest carries a new report. Optional values are nil when absent.
type CreateRequest struct {
	UserReportID   int64
	Description    string
	Latitude       *float64
	Longitude      *float64
	GhostID        *int64
	TimeOfSighting string
	Visibility     *int
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, now: clock, logger: logger}, nil
}

// List returns every sighting, newest first.
func (s *Service) List(ctx context.Context) ([]Sighting, error) {
	rows, err := s.query(ctx, s.store, selectColumns+joinFirstGhost+orderNewestFirst)
	if err != nil {
		return nil, s.internal(opList, "query_failed", err)
	}
	return rows, nil
}

// ListByGhost returns the sightings linked to a ghost, newest first.
func (s *Service) ListByGhost(ctx context.Context, ghostID int64) ([]Sighting, error) {
	exists, err := ghosts.Exists(ctx, s.store, ghostID)
	if err != nil {
		return nil, s.internal(opListByGhost, "ghost_lookup_failed", err, zap.Int64("ghost_id", ghostID))
	}
	if !exists {
		return nil, apierr.NotFound("ghost_not_found")
	}
	rows, err := s.query(ctx, s.store, selectColumns+joinGivenGhost+orderNewestFirst, ghostID)
	if err != nil {
		return nil, s.internal(opListByGhost, "query_failed", err, zap.Int64("ghost_id", ghostID))
	}
	return rows, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Sighting, error) {
	sighting, found, err := s.get(ctx, s.store, id)
	if err != nil {
		return Sighting{}, s.internal(opGet, "query_failed", err, zap.Int64("sighting_id", id))
	}
	if !found {
		return Sighting{}, apierr.NotFound("sighting_not_found")
	}
	return sighting, nil
}

// Create stores a sighting and its ghost link in one transaction and returns
// the stored row. Without a ghost id the sighting is linked to "Unknown".
func (s *Service) Create(ctx context.Context, request CreateRequest) (Sighting, error) {
	description := strings.TrimSpace(request.Description)
	if request.UserReportID <= 0 || description == "" {
		return Sighting{}, apierr.Validation("missing_fields")
	}
	visibility, err := ghosts.ResolveVisibility(request.Visibility)
	if err != nil {
		return Sighting{}, err
	}
	if !validCoordinates(request.Latitude, request.Longitude) {
		return Sighting{}, apierr.Validation("invalid_coordinates")
	}
	description = annotate(strings.TrimSpace(request.TimeOfSighting), description)

	var sightingID int64
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		var reporters int64
		if err := tx.Query(ctx, &reporters, "SELECT COUNT(*) FROM users WHERE id = ?", request.UserReportID); err != nil {
			return s.internal(opCreate, "user_lookup_failed", err)
		}
		if reporters == 0 {
			return apierr.NotFound("user_not_found")
		}

		ghostID, err := s.resolveGhost(ctx, tx, request.GhostID)
		if err != nil {
			return err
		}

		result, err := tx.Run(ctx,
			"INSERT INTO sightings (visibility, sighted_at, user_report_id, latitude, longitude, description) VALUES (?, ?, ?, ?, ?, ?)",
			visibility, s.now().UTC(), request.UserReportID, request.Latitude, request.Longitude, description,
		)
		if err != nil {
			return s.internal(opCreate, "insert_failed", err)
		}
		sightingID = result.GeneratedID

		if _, err := tx.Run(ctx,
			"INSERT INTO sighting_reports_ghost (sighting_id, ghost_id) VALUES (?, ?)",
			sightingID, ghostID,
		); err != nil {
			return s.internal(opCreate, "link_failed", err, zap.Int64("sighting_id", sightingID))
		}
		return nil
	})
	if err != nil {
		return Sighting{}, err
	}
	return s.Get(ctx, sightingID)
}

// RenameGhost renames the ghost a sighting is linked to. A sighting linked to
// the shared "Unknown" ghost, or to none, gets a new ghost with that name
// instead so the sentinel keeps its name.
func (s *Service) RenameGhost(ctx context.Context, sightingID int64, name string) (Sighting, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Sighting{}, apierr.Validation("missing_fields")
	}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		current, found, err := s.get(ctx, tx, sightingID)
		if err != nil {
			return s.internal(opRename, "query_failed", err, zap.Int64("sighting_id", sightingID))
		}
		if !found {
			return apierr.NotFound("sighting_not_found")
		}

		if current.GhostID != nil && current.GhostName != ghosts.UnknownName {
			if _, err := tx.Run(ctx, "UPDATE ghosts SET name = ? WHERE id = ?", name, *current.GhostID); err != nil {
				return s.internal(opRename, "update_failed", err, zap.Int64("ghost_id", *current.GhostID))
			}
			return nil
		}

		created, err := tx.Run(ctx,
			"INSERT INTO ghosts (ghost_type, name, description, visibility) VALUES (?, ?, ?, ?)",
			ghosts.UnknownName, name, "", current.Visibility,
		)
		if err != nil {
			return s.internal(opRename, "ghost_insert_failed", err)
		}
		if current.GhostID != nil {
			if _, err := tx.Run(ctx,
				"DELETE FROM sighting_reports_ghost WHERE sighting_id = ? AND ghost_id = ?",
				sightingID, *current.GhostID,
			); err != nil {
				return s.internal(opRename, "unlink_failed", err)
			}
		}
		if _, err := tx.Run(ctx,
			"INSERT INTO sighting_reports_ghost (sighting_id, ghost_id) VALUES (?, ?)",
			sightingID, created.GeneratedID,
		); err != nil {
			return s.internal(opRename, "link_failed", err)
		}
		return nil
	})
	if err != nil {
		return Sighting{}, err
	}
	return s.Get(ctx, sightingID)
}

func (s *Service) resolveGhost(ctx context.Context, tx store.Store, requested *int64) (int64, error) {
	if requested == nil {
		ghostID, err := ghosts.FindOrCreateUnknown(ctx, tx)
		if err != nil {
			return 0, s.internal(opCreate, "unknown_ghost_failed", err)
		}
		return ghostID, nil
	}
	exists, err := ghosts.Exists(ctx, tx, *requested)
	if err != nil {
		return 0, s.internal(opCreate, "ghost_lookup_failed", err)
	}
	if !exists {
		return 0, apierr.NotFound("ghost_not_found")
	}
	return *requested, nil
}

func (s *Service) get(ctx context.Context, st store.Store, id int64) (Sighting, bool, error) {
	rows, err := s.query(ctx, st, selectColumns+joinFirstGhost+" WHERE s.id = ?", id)
	if err != nil || len(rows) == 0 {
		return Sighting{}, false, err
	}
	return rows[0], true, nil
}

func (s *Service) query(ctx context.Context, st store.Store, query string, args ...any) ([]Sighting, error) {
	var rows []Sighting
	if err := st.Query(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	for index := range rows {
		rows[index].normalize()
	}
	if rows == nil {
		rows = []Sighting{}
	}
	return rows, nil
}

func validCoordinates(latitude, longitude *float64) bool {
	if latitude != nil && (*latitude < -90 || *latitude > 90) {
		return false
	}
	if longitude != nil && (*longitude < -180 || *longitude > 180) {
		return false
	}
	return true
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
	s.logger.Error("sightings service error", attrs...)
	return apierr.Internal(operation, reason, err)
}
