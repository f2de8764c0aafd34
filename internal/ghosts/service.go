package ghosts

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/apierr"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"go.uber.org/zap"
)

const (
	opList   = "ghosts.list"
	opGet    = "ghosts.get"
	opCreate = "ghosts.create"
	opDelete = "ghosts.delete"
)

var errMissingStore = errors.New("ghosts: store is required")

const selectGhosts = `SELECT g.id, g.ghost_type, g.name, g.description, g.visibility,
	(SELECT COUNT(*) FROM sighting_reports_ghost l WHERE l.ghost_id = g.id) AS sighting_count
	FROM ghosts g`

// deleteCascade removes a ghost's dependants before the ghost row.
var deleteCascade = []string{
	"DELETE FROM ghost_comments WHERE ghost_id = ?",
	"DELETE FROM sighting_reports_ghost WHERE ghost_id = ?",
	"DELETE FROM tour_includes WHERE ghost_id = ?",
	"DELETE FROM ghost_buster_fights_ghost WHERE ghost_id = ?",
	"DELETE FROM ghosts WHERE id = ?",
}

type ServiceConfig struct {
	Store  store.Store
	Logger *zap.Logger
}

type Service struct {
	store  store.Store
	logger *zap.Logger
}

// CreateRequest describes a new ghost. Visibility is nil when not supplied.
type CreateRequest struct {
	Name        string
	GhostType   string
	Description string
	Visibility  *int
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

// List returns every ghost ordered by name.
func (s *Service) List(ctx context.Context) ([]Ghost, error) {
	var rows []Ghost
	if err := s.store.Query(ctx, &rows, selectGhosts+" ORDER BY g.name ASC, g.id ASC"); err != nil {
		return nil, s.internal(opList, "query_failed", err)
	}
	for index := range rows {
		rows[index].VisibilityLabel = VisibilityLabel(rows[index].Visibility)
	}
	if rows == nil {
		rows = []Ghost{}
	}
	return rows, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Ghost, error) {
	var rows []Ghost
	if err := s.store.Query(ctx, &rows, selectGhosts+" WHERE g.id = ?", id); err != nil {
		return Ghost{}, s.internal(opGet, "query_failed", err, zap.Int64("ghost_id", id))
	}
	if len(rows) == 0 {
		return Ghost{}, apierr.NotFound("ghost_not_found")
	}
	ghost := rows[0]
	ghost.VisibilityLabel = VisibilityLabel(ghost.Visibility)
	return ghost, nil
}

func (s *Service) Create(ctx context.Context, request CreateRequest) (Ghost, error) {
	name := strings.TrimSpace(request.Name)
	if name == "" {
		return Ghost{}, apierr.Validation("missing_fields")
	}
	visibility, err := ResolveVisibility(request.Visibility)
	if err != nil {
		return Ghost{}, err
	}
	ghostType := strings.TrimSpace(request.GhostType)
	if ghostType == "" {
		ghostType = UnknownName
	}

	result, err := s.store.Run(ctx,
		"INSERT INTO ghosts (ghost_type, name, description, visibility) VALUES (?, ?, ?, ?)",
		ghostType, name, strings.TrimSpace(request.Description), visibility,
	)
	if err != nil {
		return Ghost{}, s.internal(opCreate, "insert_failed", err)
	}
	return s.Get(ctx, result.GeneratedID)
}

// Delete removes a ghost together with its comments, sighting links, tour
// inclusions and fights.
func (s *Service) Delete(ctx context.Context, id int64) error {
	exists, err := Exists(ctx, s.store, id)
	if err != nil {
		return s.internal(opDelete, "lookup_failed", err, zap.Int64("ghost_id", id))
	}
	if !exists {
		return apierr.NotFound("ghost_not_found")
	}

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		for _, statement := range deleteCascade {
			if _, err := tx.Run(ctx, statement, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.internal(opDelete, "cascade_failed", err, zap.Int64("ghost_id", id))
	}
	return nil
}

// Exists reports whether a ghost row with the id is present. It accepts any
// store so callers can use it inside their transactions.
func Exists(ctx context.Context, st store.Store, id int64) (bool, error) {
	var count int64
	if err := st.Query(ctx, &count, "SELECT COUNT(*) FROM ghosts WHERE id = ?", id); err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindOrCreateUnknown returns the id of the "Unknown" sentinel ghost, creating
// it on first use. When several rows carry the name the lowest id wins.
func FindOrCreateUnknown(ctx context.Context, st store.Store) (int64, error) {
	var ids []int64
	if err := st.Query(ctx, &ids, "SELECT id FROM ghosts WHERE name = ? ORDER BY id ASC", UnknownName); err != nil {
		return 0, err
	}
	if len(ids) > 0 {
		return ids[0], nil
	}
	result, err := st.Run(ctx,
		"INSERT INTO ghosts (ghost_type, name, description, visibility) VALUES (?, ?, ?, ?)",
		UnknownName, UnknownName, "", DefaultVisibility,
	)
	if err != nil {
		return 0, err
	}
	return result.GeneratedID, nil
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
	s.logger.Error("ghosts service error", attrs...)
	return apierr.Internal(operation, reason, err)
}
