package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmazingeventParis/Kooki/internal/models"
	"github.com/AmazingeventParis/Kooki/internal/pkg/apperror"
)

func newAuthService() (*AuthService, *fakeUserRepo) {
	users := newFakeUserRepo()
	tm := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 720*time.Hour)
	return NewAuthService(users, tm), users
}

func TestAuthService_Register(t *testing.T) {
	svc, _ := newAuthService()
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{
		Email:    "  Marie@Example.FR ",
		Password: "motdepasse",
		Name:     "Marie",
	})
	require.NoError(t, err)
	assert.Equal(t, "marie@example.fr", res.User.Email)
	assert.Equal(t, models.RolePersonal, res.User.Role)
	assert.NotEmpty(t, res.TokenPair.AccessToken)
	assert.NotEmpty(t, res.TokenPair.RefreshToken)
	assert.NotEqual(t, "motdepasse", res.User.PasswordHash)
}

func TestAuthService_Register_Validation(t *testing.T) {
	svc, _ := newAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "not-an-email", Password: "motdepasse"})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Register(ctx, RegisterInput{Email: "a@b.fr", Password: "court"})
	assert.True(t, apperror.IsValidation(err))
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	svc, _ := newAuthService()
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "marie@example.fr", Password: "motdepasse"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Email: "MARIE@example.fr", Password: "motdepasse"})
	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.ErrCodeConflict, appErr.Code)
}

func TestAuthService_Login(t *testing.T) {
	svc, _ := newAuthService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{Email: "marie@example.fr", Password: "motdepasse"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, "marie@example.fr", "motdepasse")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)

	_, err = svc.Login(ctx, "marie@example.fr", "mauvais-mdp")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "inconnue@example.fr", "motdepasse")
	assert.ErrorIs(t, err, apperror.ErrInvalidCredentials)
}

func TestAuthService_Refresh(t *testing.T) {
	svc, users := newAuthService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{Email: "marie@example.fr", Password: "motdepasse"})
	require.NoError(t, err)

	res, err := svc.Refresh(ctx, reg.TokenPair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, res.User.ID)
	assert.NotEmpty(t, res.TokenPair.AccessToken)

	_, err = svc.Refresh(ctx, "not-a-token")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	// An access token signed with the other secret must not refresh.
	_, err = svc.Refresh(ctx, reg.TokenPair.AccessToken)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	// A deleted account cannot rotate its tokens.
	users.mu.Lock()
	delete(users.users, reg.User.ID)
	users.mu.Unlock()
	_, err = svc.Refresh(ctx, reg.TokenPair.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestTokenManager_ParseAccess(t *testing.T) {
	tm := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 720*time.Hour)
	user := &models.User{ID: uuid.New(), Email: "marie@example.fr", Role: models.RoleOrgAdmin}

	pair, err := tm.GeneratePair(user)
	require.NoError(t, err)

	userID, role, err := tm.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
	assert.Equal(t, models.RoleOrgAdmin, role)

	// Expired tokens fail verification.
	expired := NewTokenManager("access-secret", "refresh-secret", -time.Minute, 720*time.Hour)
	pair, err = expired.GeneratePair(user)
	require.NoError(t, err)
	_, _, err = tm.ParseAccess(pair.AccessToken)
	assert.Error(t, err)
}
