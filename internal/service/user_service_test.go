package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"requisition-backend/internal/auth"
	"requisition-backend/internal/config"
	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type authUserRepo struct {
	repository.UserRepository
	mu     sync.Mutex
	users  map[uuid.UUID]model.User
	tokens map[string]model.RefreshToken
}

func (r *authUserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (r *authUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (r *authUserRepo) SaveRefreshToken(_ context.Context, t *model.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.Token] = *t
	return nil
}

func (r *authUserRepo) FindRefreshToken(_ context.Context, token string) (*model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok {
		return nil, apperror.NotFound("refresh token", "")
	}
	return &t, nil
}

func (r *authUserRepo) DeleteRefreshToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
	return nil
}

func (r *authUserRepo) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, t := range r.tokens {
		if t.ExpiresAt.Before(before) {
			delete(r.tokens, k)
		}
	}
	return nil
}

func newAuthFixture(t *testing.T) (UserService, *authUserRepo, *auth.TokenManager, model.User) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret!"), bcrypt.MinCost)
	require.NoError(t, err)

	role := roleWith(model.RoleStorekeeper, model.PermStockRead, model.PermRequestsIssue)
	user := model.User{
		ID:       uuid.New(),
		Username: "keeper",
		Email:    "keeper@example.com",
		Password: string(hash),
		IsActive: true,
		RoleID:   role.ID,
		Role:     role,
	}
	repo := &authUserRepo{
		users:  map[uuid.UUID]model.User{user.ID: user},
		tokens: map[string]model.RefreshToken{},
	}
	tokens := auth.NewTokenManager(config.JWTConfig{Secret: "test-secret", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	db := newMemDB()
	svc := NewUserService(repo, nil, nil, &memAuditRepo{db: db}, &memTxManager{db: db}, tokens)
	return svc, repo, tokens, user
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, repo, tokens, user := newAuthFixture(t)

	res, err := svc.Login(ctx, LoginUserRequest{Email: user.Email, Password: "s3cret!"})
	require.NoError(t, err)
	assert.Equal(t, user.Username, res.User.Username)
	assert.Equal(t, model.RoleStorekeeper, res.User.Role)
	assert.Contains(t, repo.tokens, res.RefreshToken)

	claims, err := tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, model.RoleStorekeeper, claims.Role)

	_, err = svc.Login(ctx, LoginUserRequest{Email: user.Email, Password: "wrong"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = svc.Login(ctx, LoginUserRequest{Email: "nobody@example.com", Password: "s3cret!"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestRefreshRotatesToken(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, user := newAuthFixture(t)

	first, err := svc.Login(ctx, LoginUserRequest{Email: user.Email, Password: "s3cret!"})
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotContains(t, repo.tokens, first.RefreshToken)

	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	require.NoError(t, svc.Logout(ctx, second.RefreshToken))
	_, err = svc.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestMeListsPermissions(t *testing.T) {
	svc, _, _, user := newAuthFixture(t)
	me, err := svc.Me(context.Background(), user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{model.PermStockRead, model.PermRequestsIssue}, me.Permissions)
}
