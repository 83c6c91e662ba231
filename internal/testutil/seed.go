//go:build integration

package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/osnovci/internal/database"
	"github.com/BradenHooton/osnovci/internal/models"
	"github.com/BradenHooton/osnovci/internal/repositories"
	"github.com/BradenHooton/osnovci/pkg/auth"
)

// TestPassword is the password every seeded user gets
const TestPassword = "TestPassword123!"

// UniqueEmail returns an address that will not collide across test runs
func UniqueEmail(suffix string) string {
	return fmt.Sprintf("test-%d-%s@example.com", time.Now().UnixNano(), suffix)
}

// SeedUser inserts an active user with TestPassword
func SeedUser(ctx context.Context, db *database.DB, email, role string) (*models.User, error) {
	hash, err := auth.HashPassword(TestPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := repositories.NewUserRepository(db).Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test " + role,
		Role:         role,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}
