package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"wallet-sync/internal/repository"
)

// AdminStatusResolver responde si un usuario es administrador. Ante
// cualquier falla responde false.
type AdminStatusResolver struct {
	logger *zap.Logger
	admins repository.AdminRepository
}

func NewAdminStatusResolver(logger *zap.Logger, admins repository.AdminRepository) *AdminStatusResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminStatusResolver{logger: logger, admins: admins}
}

func (r *AdminStatusResolver) IsAdmin(ctx context.Context, userID string) bool {
	if r == nil || r.admins == nil {
		return false
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	ok, err := r.admins.Exists(ctx, userID)
	if err != nil {
		r.logger.Warn("admin lookup failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return ok
}
