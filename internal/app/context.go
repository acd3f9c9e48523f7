package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paddock/internal/config"
	"paddock/internal/domain"
	"paddock/internal/repo"
)

// ResolveStableAndConfig picks the active stable and ensures a stable + config
// exist in DB, seeding defaults if missing. It prefers overrides, then
// single-stable DB. If the stable does not exist, it is created on the fly.
func ResolveStableAndConfig(ctx context.Context, workspace, stableOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	stableID := stableOverride
	if stableID == "" {
		if s, err := r.SingleStable(ctx); err == nil {
			stableID = s.ID
		} else {
			return "", nil, fmt.Errorf("stable not specified; use --stable")
		}
	}
	seedCfg := config.Default(stableID)

	if _, err := r.GetStable(ctx, stableID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createStable(ctx, r, stableID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetStableConfig(ctx, stableID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertStableConfig(ctx, stableID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed stable config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Stable.ID = stableID
	return stableID, cfg, nil
}

// createStable inserts a minimal stable footprint with the acting user as the
// founding organizer.
func createStable(ctx context.Context, r repo.Repo, stableID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(stableID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	s := domain.Stable{
		ID:        stableID,
		OrgID:     "default-org",
		Name:      stableID,
		Status:    "active",
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO stables(id,org_id,name,status,description,created_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.OrgID, s.Name, s.Status, s.Description, s.CreatedAt); err != nil {
		return fmt.Errorf("insert stable: %w", err)
	}
	if err := r.UpsertStableConfigTx(ctx, tx, stableID, seedCfg); err != nil {
		return fmt.Errorf("insert stable config: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO members(stable_id,user_id,user_name,user_email,role,joined_at) VALUES (?,?,?,?,?,?)`,
		stableID, actorID, actorID, "", "organizer", now); err != nil {
		return fmt.Errorf("seed organizer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
