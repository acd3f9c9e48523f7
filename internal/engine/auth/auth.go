package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ForbiddenError indicates a missing role or permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

const (
	RoleOrganizer = "organizer"
	RoleMember    = "member"
)

// Service provides role checks backed by the members table.
type Service struct {
	DB *sql.DB
}

func (s Service) MemberRole(ctx context.Context, tx *sql.Tx, stableID, actorID string) (string, error) {
	if actorID == "" {
		return "", errors.New("actor_id required")
	}
	row := tx.QueryRowContext(ctx, `SELECT role FROM members WHERE stable_id=? AND user_id=? LIMIT 1`, stableID, actorID)
	var role string
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return role, err
}

// EnsureMember verifies the actor belongs to the stable roster.
func (s Service) EnsureMember(ctx context.Context, tx *sql.Tx, stableID, actorID string) error {
	role, err := s.MemberRole(ctx, tx, stableID, actorID)
	if err != nil {
		return err
	}
	if role == "" {
		return ForbiddenError{Permission: "stable.member"}
	}
	return nil
}

// EnsureOrganizer verifies the actor holds the organizer role in the stable.
func (s Service) EnsureOrganizer(ctx context.Context, tx *sql.Tx, stableID, actorID string) error {
	role, err := s.MemberRole(ctx, tx, stableID, actorID)
	if err != nil {
		return err
	}
	if role != RoleOrganizer {
		return ForbiddenError{Permission: "stable.organize"}
	}
	return nil
}
