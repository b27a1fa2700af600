package app

import (
	"context"
	"fmt"
	"strings"

	"marketgen/pkg/domain"
	"marketgen/pkg/session"
)

// Authenticate records a sign-in for a verified session identity and returns
// the stored user. The configured owner becomes admin on first sign-in.
func (a *App) Authenticate(_ context.Context, id session.Identity) (domain.User, error) {
	openID := strings.TrimSpace(id.OpenID)
	if openID == "" {
		return domain.User{}, ErrUnauthorized
	}
	role := domain.RoleUser
	if a.ownerOpenID != "" && openID == a.ownerOpenID {
		role = domain.RoleAdmin
	}
	user, err := a.store.UpsertUser(domain.User{
		OpenID:      openID,
		Name:        id.Name,
		Email:       id.Email,
		LoginMethod: id.LoginMethod,
		Role:        role,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

func requireUser(user domain.User) error {
	if user.ID == 0 {
		return ErrUnauthorized
	}
	return nil
}
