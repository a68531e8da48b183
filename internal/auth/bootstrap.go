package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/felicity-fest/backend/pkg/utils"
)

// EnsureAdmin creates the bootstrap admin account if no admin exists.
// Idempotent: safe to call on every process start.
func EnsureAdmin(ctx context.Context, repo *Repository, email, password string, logger *zap.Logger) error {
	n, err := repo.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return nil
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	admin, err := repo.CreateAdmin(ctx, email, hash)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Info("bootstrap admin created", zap.String("email", admin.Email))
	return nil
}
