package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/apierr"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"go.uber.org/zap"
)

var errMissingStore = errors.New("comments: store is required")

// Target names the table layout of one kind of comment. Sighting and ghost
// comments share every rule and differ only here.
type Target struct {
	Name         string
	Table        string
	Column       string
	ParentTable  string
	NotFoundCode string
}

var (
	SightingTarget = Target{
		Name:         "sighting",
		Table:        "sighting_comments",
		Column:       "sighting_id",
		ParentTable:  "sightings",
		NotFoundCode: "sighting_not_found",
	}
	GhostTarget = Target{
		Name:         "ghost",
		Table:        "ghost_comments",
		Column:       "ghost_id",
		ParentTable:  "ghosts",
		NotFoundCode: "ghost_not_found",
	}
)

// Comment is one user's comment on a target. Username falls back to
// "User {id}" when the account is gone.
type Comment struct {
	UserID      int64     `json:"userID" gorm:"column:user_id"`
	TargetID    int64     `json:"targetID" gorm:"column:target_id"`
	Username    string    `json:"username" gorm:"-"`
	ReportTime  time.Time `json:"reportTime" gorm:"column:report_time"`
	Description string    `json:"description" gorm:"column:description"`

	Account *string `json:"-" gorm:"column:username"`
}

type UpsertRequest struct {
	UserID      int64
	TargetID    int64
	Description string
}

type ServiceConfig struct {
	Store  store.Store
	Target Target
	Clock  func() time.Time
	Logger *zap.Logger
}

type Service struct {
	store  store.Store
	target Target
	now    func() time.Time
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Target.Table == "" || cfg.Target.Column == "" || cfg.Target.ParentTable == "" {
		return nil, fmt.Errorf("comments: incomplete target %q", cfg.Target.Name)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, target: cfg.Target, now: clock, logger: logger}, nil
}

func (s *Service) Target() Target {
	return s.target
}

// List returns the target's comments, oldest first.
func (s *Service) List(ctx context.Context, targetID int64) ([]Comment, error) {
	operation := s.operation("list")
	found, err := s.parentExists(ctx, s.store, targetID)
	if err != nil {
		return nil, s.internal(operation, "parent_lookup_failed", err)
	}
	if !found {
		return nil, apierr.NotFound(s.target.NotFoundCode)
	}
	rows, err := s.query(ctx, s.store, s.selectComments()+" WHERE c."+s.target.Column+" = ? ORDER BY c.report_time ASC, c.user_id ASC", targetID)
	if err != nil {
		return nil, s.internal(operation, "query_failed", err, zap.Int64("target_id", targetID))
	}
	return rows, nil
}

// Upsert stores the user's comment on the target. Posting again replaces the
// text and timestamp of the existing row; created reports which case applied.
func (s *Service) Upsert(ctx context.Context, request UpsertRequest) (comment Comment, created bool, err error) {
	operation := s.operation("upsert")
	description := strings.TrimSpace(request.Description)
	if request.UserID <= 0 || description == "" {
		return Comment{}, false, apierr.Validation("missing_fields")
	}
	reportTime := s.now().UTC()

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		found, err := s.parentExists(ctx, tx, request.TargetID)
		if err != nil {
			return s.internal(operation, "parent_lookup_failed", err)
		}
		if !found {
			return apierr.NotFound(s.target.NotFoundCode)
		}
		var users int64
		if err := tx.Query(ctx, &users, "SELECT COUNT(*) FROM users WHERE id = ?", request.UserID); err != nil {
			return s.internal(operation, "user_lookup_failed", err)
		}
		if users == 0 {
			return apierr.NotFound("user_not_found")
		}

		// Insert-or-skip first so a concurrent first post resolves to an update
		// instead of a key violation.
		inserted, err := tx.InsertIgnore(ctx, s.target.Table,
			[]string{"user_id", s.target.Column, "report_time", "description"},
			request.UserID, request.TargetID, reportTime, description,
		)
		if err != nil {
			return s.internal(operation, "insert_failed", err)
		}
		if inserted.Affected > 0 {
			created = true
			return nil
		}

		if _, err := tx.Run(ctx,
			"UPDATE "+s.target.Table+" SET description = ?, report_time = ? WHERE user_id = ? AND "+s.target.Column+" = ?",
			description, reportTime, request.UserID, request.TargetID,
		); err != nil {
			return s.internal(operation, "update_failed", err)
		}
		return nil
	})
	if err != nil {
		return Comment{}, false, err
	}

	rows, err := s.query(ctx, s.store, s.selectComments()+" WHERE c.user_id = ? AND c."+s.target.Column+" = ?", request.UserID, request.TargetID)
	if err != nil {
		return Comment{}, false, s.internal(operation, "reload_failed", err)
	}
	if len(rows) == 0 {
		return Comment{}, false, s.internal(operation, "reload_missing", nil)
	}
	return rows[0], created, nil
}

func (s *Service) selectComments() string {
	return "SELECT c.user_id, c." + s.target.Column + " AS target_id, c.report_time, c.description, u.username AS username" +
		" FROM " + s.target.Table + " c LEFT JOIN users u ON u.id = c.user_id"
}

func (s *Service) parentExists(ctx context.Context, st store.Store, targetID int64) (bool, error) {
	var count int64
	if err := st.Query(ctx, &count, "SELECT COUNT(*) FROM "+s.target.ParentTable+" WHERE id = ?", targetID); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) query(ctx context.Context, st store.Store, query string, args ...any) ([]Comment, error) {
	var rows []Comment
	if err := st.Query(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	for index := range rows {
		rows[index].ReportTime = rows[index].ReportTime.UTC()
		if rows[index].Account != nil && *rows[index].Account != "" {
			rows[index].Username = *rows[index].Account
		} else {
			rows[index].Username = fmt.Sprintf("User %d", rows[index].UserID)
		}
	}
	if rows == nil {
		rows = []Comment{}
	}
	return rows, nil
}

func (s *Service) operation(action string) string {
	return s.target.Name + "_comments." + action
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
	s.logger.Error("comments service error", attrs...)
	return apierr.Internal(operation, reason, err)
}
