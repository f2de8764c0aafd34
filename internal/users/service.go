package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/apierr"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/auth"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/ghosts"
	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"go.uber.org/zap"
)

const (
	opRegister     = "users.register"
	opAuthenticate = "users.authenticate"
	opProfile      = "users.profile"
	opDelete       = "users.delete"
	opBuster       = "users.buster"
	opFight        = "users.fight"
	opBust         = "users.bust"
)

var errMissingStore = errors.New("users: store is required")

const selectProfile = `SELECT u.id, u.username, u.created_at, b.user_id AS buster_id, b.ghosts_busted, b.alias,
	(SELECT COUNT(*) FROM sightings s WHERE s.user_report_id = u.id) AS sighting_count
	FROM users u LEFT JOIN ghost_busters b ON b.user_id = u.id
	WHERE u.id = ?`

// deleteCascade removes everything that references a user, children first.
var deleteCascade = []string{
	"DELETE FROM sighting_comments WHERE sighting_id IN (SELECT id FROM sightings WHERE user_report_id = ?)",
	"DELETE FROM sighting_reports_ghost WHERE sighting_id IN (SELECT id FROM sightings WHERE user_report_id = ?)",
	"DELETE FROM sighting_comments WHERE user_id = ?",
	"DELETE FROM ghost_comments WHERE user_id = ?",
	"DELETE FROM tour_sign_ups WHERE user_id = ?",
	"DELETE FROM ghost_buster_fights_ghost WHERE user_id = ?",
	"DELETE FROM ghost_busters WHERE user_id = ?",
	"DELETE FROM sightings WHERE user_report_id = ?",
	"DELETE FROM users WHERE id = ?",
}

// ServiceConfig describes the dependencies of the account service.
type ServiceConfig struct {
	Store  store.Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// Service manages accounts, the ghost-buster role and fight state.
type Service struct {
	store  store.Store
	now    func() time.Time
	logger *zap.Logger
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

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, request RegisterRequest) (Profile, error) {
	username := strings.TrimSpace(request.Username)
	email := normalizeEmail(request.Email)
	if username == "" || email == "" || request.Password == "" {
		return Profile{}, apierr.Validation("missing_fields")
	}

	taken, err := s.credentialsTaken(ctx, username, email)
	if err != nil {
		return Profile{}, s.internal(opRegister, "lookup_failed", err)
	}
	if taken {
		return Profile{}, apierr.Conflict("username_or_email_taken")
	}

	passwordHash, err := auth.HashPassword(request.Password)
	if err != nil {
		return Profile{}, s.internal(opRegister, "hash_failed", err)
	}

	result, err := s.store.Run(ctx,
		"INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		username, email, passwordHash, s.now().UTC(),
	)
	if err != nil {
		// A concurrent registration may have claimed the name between the check and the insert.
		if taken, lookupErr := s.credentialsTaken(ctx, username, email); lookupErr == nil && taken {
			return Profile{}, apierr.Conflict("username_or_email_taken")
		}
		return Profile{}, s.internal(opRegister, "insert_failed", err)
	}
	return s.Profile(ctx, result.GeneratedID)
}

// Authenticate checks a username or email and password pair.
func (s *Service) Authenticate(ctx context.Context, login, password string) (Profile, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return Profile{}, apierr.Validation("missing_fields")
	}

	var rows []credentialRow
	if err := s.store.Query(ctx, &rows,
		"SELECT id, password_hash FROM users WHERE username = ? OR email = ? ORDER BY id ASC",
		login, normalizeEmail(login),
	); err != nil {
		return Profile{}, s.internal(opAuthenticate, "lookup_failed", err)
	}
	for _, row := range rows {
		err := auth.ComparePassword(row.PasswordHash, password)
		if err == nil {
			return s.Profile(ctx, row.ID)
		}
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("stored password hash unreadable", zap.Int64("user_id", row.ID), zap.Error(err))
		}
	}
	return Profile{}, apierr.Unauthorized("invalid_credentials")
}

func (s *Service) Profile(ctx context.Context, id int64) (Profile, error) {
	var rows []profileRow
	if err := s.store.Query(ctx, &rows, selectProfile, id); err != nil {
		return Profile{}, s.internal(opProfile, "query_failed", err, zap.Int64("user_id", id))
	}
	if len(rows) == 0 {
		return Profile{}, apierr.NotFound("user_not_found")
	}
	return rows[0].profile(), nil
}

// Delete removes a user and everything that references them in one transaction.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		exists, err := userExists(ctx, tx, id)
		if err != nil {
			return s.internal(opDelete, "lookup_failed", err, zap.Int64("user_id", id))
		}
		if !exists {
			return apierr.NotFound("user_not_found")
		}
		for _, statement := range deleteCascade {
			if _, err := tx.Run(ctx, statement, id); err != nil {
				return s.internal(opDelete, "cascade_failed", err, zap.Int64("user_id", id), zap.String("statement", statement))
			}
		}
		return nil
	})
	return err
}

func (s *Service) BusterStatus(ctx context.Context, userID int64) (BusterStatus, error) {
	exists, err := userExists(ctx, s.store, userID)
	if err != nil {
		return BusterStatus{}, s.internal(opBuster, "lookup_failed", err, zap.Int64("user_id", userID))
	}
	if !exists {
		return BusterStatus{}, apierr.NotFound("user_not_found")
	}
	status, err := busterStatus(ctx, s.store, userID)
	if err != nil {
		return BusterStatus{}, s.internal(opBuster, "query_failed", err, zap.Int64("user_id", userID))
	}
	return status, nil
}

// SetBuster grants or revokes the ghost-buster role. Granting twice keeps the
// existing counter; a non-empty alias replaces the stored one. Revoking also
// ends the user's fights.
func (s *Service) SetBuster(ctx context.Context, userID int64, enabled bool, alias string) (BusterStatus, error) {
	alias = strings.TrimSpace(alias)
	var status BusterStatus
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		exists, err := userExists(ctx, tx, userID)
		if err != nil {
			return s.internal(opBuster, "lookup_failed", err, zap.Int64("user_id", userID))
		}
		if !exists {
			return apierr.NotFound("user_not_found")
		}

		if enabled {
			if _, err := tx.InsertIgnore(ctx, "ghost_busters", []string{"user_id", "ghosts_busted", "alias"}, userID, 0, alias); err != nil {
				return s.internal(opBuster, "insert_failed", err, zap.Int64("user_id", userID))
			}
			if alias != "" {
				if _, err := tx.Run(ctx, "UPDATE ghost_busters SET alias = ? WHERE user_id = ?", alias, userID); err != nil {
					return s.internal(opBuster, "alias_update_failed", err, zap.Int64("user_id", userID))
				}
			}
		} else {
			if _, err := tx.Run(ctx, "DELETE FROM ghost_buster_fights_ghost WHERE user_id = ?", userID); err != nil {
				return s.internal(opBuster, "fights_delete_failed", err, zap.Int64("user_id", userID))
			}
			if _, err := tx.Run(ctx, "DELETE FROM ghost_busters WHERE user_id = ?", userID); err != nil {
				return s.internal(opBuster, "delete_failed", err, zap.Int64("user_id", userID))
			}
		}

		status, err = busterStatus(ctx, tx, userID)
		if err != nil {
			return s.internal(opBuster, "query_failed", err, zap.Int64("user_id", userID))
		}
		return nil
	})
	return status, err
}

func (s *Service) Fighting(ctx context.Context, userID, ghostID int64) (FightState, error) {
	if err := s.requireUserAndGhost(ctx, s.store, opFight, userID, ghostID); err != nil {
		return FightState{}, err
	}
	fighting, err := isFighting(ctx, s.store, userID, ghostID)
	if err != nil {
		return FightState{}, s.internal(opFight, "query_failed", err)
	}
	return FightState{UserID: userID, GhostID: ghostID, Fighting: fighting}, nil
}

// SetFighting starts or ends a fight. Only ghost busters may fight; both
// directions are idempotent.
func (s *Service) SetFighting(ctx context.Context, userID, ghostID int64, fighting bool) (FightState, error) {
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if err := s.requireBuster(ctx, tx, opFight, userID, ghostID); err != nil {
			return err
		}
		if fighting {
			if _, err := tx.InsertIgnore(ctx, "ghost_buster_fights_ghost", []string{"user_id", "ghost_id"}, userID, ghostID); err != nil {
				return s.internal(opFight, "insert_failed", err)
			}
			return nil
		}
		if _, err := tx.Run(ctx, "DELETE FROM ghost_buster_fights_ghost WHERE user_id = ? AND ghost_id = ?", userID, ghostID); err != nil {
			return s.internal(opFight, "delete_failed", err)
		}
		return nil
	})
	if err != nil {
		return FightState{}, err
	}
	return FightState{UserID: userID, GhostID: ghostID, Fighting: fighting}, nil
}

// Bust ends a fight in progress and counts the ghost as busted. Both effects
// commit together.
func (s *Service) Bust(ctx context.Context, userID, ghostID int64) (BusterStatus, error) {
	var status BusterStatus
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if err := s.requireBuster(ctx, tx, opBust, userID, ghostID); err != nil {
			return err
		}
		removed, err := tx.Run(ctx, "DELETE FROM ghost_buster_fights_ghost WHERE user_id = ? AND ghost_id = ?", userID, ghostID)
		if err != nil {
			return s.internal(opBust, "delete_failed", err)
		}
		if removed.Affected == 0 {
			return apierr.Conflict("not_fighting")
		}
		if _, err := tx.Run(ctx, "UPDATE ghost_busters SET ghosts_busted = ghosts_busted + 1 WHERE user_id = ?", userID); err != nil {
			return s.internal(opBust, "increment_failed", err)
		}
		status, err = busterStatus(ctx, tx, userID)
		if err != nil {
			return s.internal(opBust, "query_failed", err)
		}
		return nil
	})
	return status, err
}

// ListFights returns the ghosts a user is currently fighting.
func (s *Service) ListFights(ctx context.Context, userID int64) ([]Fight, error) {
	exists, err := userExists(ctx, s.store, userID)
	if err != nil {
		return nil, s.internal(opFight, "lookup_failed", err)
	}
	if !exists {
		return nil, apierr.NotFound("user_not_found")
	}
	var fights []Fight
	if err := s.store.Query(ctx, &fights,
		`SELECT f.ghost_id, g.name AS ghost_name FROM ghost_buster_fights_ghost f
		JOIN ghosts g ON g.id = f.ghost_id WHERE f.user_id = ? ORDER BY f.ghost_id ASC`,
		userID,
	); err != nil {
		return nil, s.internal(opFight, "list_failed", err)
	}
	if fights == nil {
		fights = []Fight{}
	}
	return fights, nil
}

func (s *Service) requireUserAndGhost(ctx context.Context, st store.Store, operation string, userID, ghostID int64) error {
	exists, err := userExists(ctx, st, userID)
	if err != nil {
		return s.internal(operation, "user_lookup_failed", err)
	}
	if !exists {
		return apierr.NotFound("user_not_found")
	}
	exists, err = ghosts.Exists(ctx, st, ghostID)
	if err != nil {
		return s.internal(operation, "ghost_lookup_failed", err)
	}
	if !exists {
		return apierr.NotFound("ghost_not_found")
	}
	return nil
}

func (s *Service) requireBuster(ctx context.Context, st store.Store, operation string, userID, ghostID int64) error {
	if err := s.requireUserAndGhost(ctx, st, operation, userID, ghostID); err != nil {
		return err
	}
	status, err := busterStatus(ctx, st, userID)
	if err != nil {
		return s.internal(operation, "buster_lookup_failed", err)
	}
	if !status.GhostBuster {
		return apierr.Forbidden("not_a_ghost_buster")
	}
	return nil
}

func (s *Service) credentialsTaken(ctx context.Context, username, email string) (bool, error) {
	var count int64
	if err := s.store.Query(ctx, &count, "SELECT COUNT(*) FROM users WHERE username = ? OR email = ?", username, email); err != nil {
		return false, err
	}
	return count > 0, nil
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
	s.logger.Error("users service error", attrs...)
	return apierr.Internal(operation, reason, err)
}

func userExists(ctx context.Context, st store.Store, id int64) (bool, error) {
	var count int64
	if err := st.Query(ctx, &count, "SELECT COUNT(*) FROM users WHERE id = ?", id); err != nil {
		return false, err
	}
	return count > 0, nil
}

func busterStatus(ctx context.Context, st store.Store, userID int64) (BusterStatus, error) {
	var rows []busterRow
	if err := st.Query(ctx, &rows, "SELECT user_id, ghosts_busted, alias FROM ghost_busters WHERE user_id = ?", userID); err != nil {
		return BusterStatus{}, err
	}
	status := BusterStatus{UserID: userID}
	if len(rows) == 0 {
		return status, nil
	}
	status.GhostBuster = true
	status.GhostsBusted = rows[0].GhostsBusted
	if rows[0].Alias != nil {
		status.Alias = *rows[0].Alias
	}
	return status, nil
}

func isFighting(ctx context.Context, st store.Store, userID, ghostID int64) (bool, error) {
	var count int64
	if err := st.Query(ctx, &count, "SELECT COUNT(*) FROM ghost_buster_fights_ghost WHERE user_id = ? AND ghost_id = ?", userID, ghostID); err != nil {
		return false, err
	}
	return count > 0, nil
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
