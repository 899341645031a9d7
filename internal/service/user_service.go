package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"requisition-backend/internal/auth"
	"requisition-backend/internal/logger"
	"requisition-backend/internal/model"
	"requisition-backend/internal/repository"
	"requisition-backend/pkg/apperror"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	FullName string `json:"full_name" binding:"max=255"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"max=20"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required"`
	SiteID   string `json:"site_id" binding:"omitempty,uuid"`
}

type UpdateUserRequest struct {
	Username string `json:"username" binding:"omitempty,min=3,max=50"`
	FullName string `json:"full_name" binding:"max=255"`
	Email    string `json:"email" binding:"omitempty,email"`
	Phone    string `json:"phone" binding:"max=20"`
	Password string `json:"password" binding:"omitempty,min=6"`
	Role     string `json:"role"`
	SiteID   string `json:"site_id" binding:"omitempty,uuid"`
	IsActive *bool  `json:"is_active"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token            string        `json:"token"`
	ExpiresAt        time.Time     `json:"expires_at"`
	RefreshToken     string        `json:"refresh_token"`
	RefreshExpiresAt time.Time     `json:"refresh_expires_at"`
	User             *UserResponse `json:"user"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Role        string    `json:"role"`
	SiteID      string    `json:"site_id,omitempty"`
	SiteName    string    `json:"site_name,omitempty"`
	IsActive    bool      `json:"is_active"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, userID uuid.UUID) (*UserResponse, error)

	CreateUser(ctx context.Context, actor uuid.UUID, req CreateUserRequest) (*UserResponse, error)
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int, search string) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, actor uuid.UUID, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, actor uuid.UUID, id string) error
	EnsureAdmin(ctx context.Context, email, password string) error
}

type userService struct {
	repo      repository.UserRepository
	roleRepo  repository.RoleRepository
	siteRepo  repository.SiteRepository
	txManager repository.TransactionManager
	audit     audit
	tokens    *auth.TokenManager
	now       func() time.Time
}

// NewUserService returns a new instance of UserService
func NewUserService(
	repo repository.UserRepository,
	roleRepo repository.RoleRepository,
	siteRepo repository.SiteRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	tokens *auth.TokenManager,
) UserService {
	return &userService{
		repo:      repo,
		roleRepo:  roleRepo,
		siteRepo:  siteRepo,
		txManager: txManager,
		audit:     audit{repo: auditRepo},
		tokens:    tokens,
		now:       time.Now,
	}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	res := &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		FullName:  user.FullName,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      user.RoleName(),
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt.Format(timeLayout),
		UpdatedAt: user.UpdatedAt.Format(timeLayout),
	}
	if user.SiteID != nil {
		res.SiteID = user.SiteID.String()
	}
	if user.Site != nil {
		res.SiteName = user.Site.Name
	}
	return res
}

var errBadCredentials = apperror.Unauthorized("invalid email or password")

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errBadCredentials
	}
	if !user.IsActive {
		return nil, apperror.Unauthorized("account is disabled")
	}

	return s.issueTokens(ctx, user)
}

// Refresh rotates the refresh token: the presented one is consumed and a new pair issued.
func (s *userService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, apperror.Unauthorized("refresh token is missing")
	}

	var res *TokenResponse
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		stored, err := s.repo.FindRefreshToken(txCtx, refreshToken)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return apperror.Unauthorized("invalid refresh token")
			}
			return err
		}
		if err := s.repo.DeleteRefreshToken(txCtx, refreshToken); err != nil {
			return err
		}
		if s.now().After(stored.ExpiresAt) {
			return apperror.Unauthorized("refresh token expired")
		}

		user, err := s.repo.GetByID(txCtx, stored.UserID)
		if err != nil {
			return apperror.Unauthorized("invalid refresh token")
		}
		if !user.IsActive {
			return apperror.Unauthorized("account is disabled")
		}

		res, err = s.issueTokens(txCtx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.repo.DeleteRefreshToken(ctx, refreshToken)
}

// Me returns the caller with the permission codes of their role.
func (s *userService) Me(ctx context.Context, userID uuid.UUID) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := mapToResponse(user)
	res.Permissions = make([]string, 0)
	if user.Role != nil {
		for _, p := range user.Role.Permissions {
			res.Permissions = append(res.Permissions, p.Code)
		}
	}
	return res, nil
}

func (s *userService) issueTokens(ctx context.Context, user *model.User) (*TokenResponse, error) {
	access, exp, err := s.tokens.IssueAccess(user.ID, user.RoleName())
	if err != nil {
		return nil, apperror.Internal("issue access token", err)
	}
	refresh, refreshExp, err := s.tokens.NewRefreshToken()
	if err != nil {
		return nil, apperror.Internal("issue refresh token", err)
	}
	if err := s.repo.SaveRefreshToken(ctx, &model.RefreshToken{
		UserID:    user.ID,
		Token:     refresh,
		ExpiresAt: refreshExp,
	}); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	// expired tokens of every user are swept opportunistically
	if err := s.repo.DeleteExpiredRefreshTokens(ctx, s.now()); err != nil {
		logger.Warn("[issueTokens] failed to purge expired refresh tokens", zap.Error(err))
	}

	return &TokenResponse{
		Token:            access,
		ExpiresAt:        exp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		User:             mapToResponse(user),
	}, nil
}

func (s *userService) resolveRole(ctx context.Context, name string) (*model.Role, error) {
	role, err := s.roleRepo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Validationf("unknown role '%s'", name)
		}
		return nil, err
	}
	return role, nil
}

func (s *userService) resolveSite(ctx context.Context, raw string) (*uuid.UUID, error) {
	siteID, err := parseOptionalID("site_id", raw)
	if err != nil || siteID == nil {
		return nil, err
	}
	if _, err := s.siteRepo.FindSite(ctx, *siteID); err != nil {
		return nil, err
	}
	return siteID, nil
}

func (s *userService) CreateUser(ctx context.Context, actor uuid.UUID, req CreateUserRequest) (*UserResponse, error) {
	role, err := s.resolveRole(ctx, req.Role)
	if err != nil {
		return nil, err
	}
	siteID, err := s.resolveSite(ctx, req.SiteID)
	if err != nil {
		return nil, err
	}

	// Double check username/email uniqueness via repo directly
	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, apperror.Conflict("username already exists")
	}
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, apperror.Conflict("email already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Internal("hash password", err)
	}

	user := &model.User{
		Username: req.Username,
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: string(hashedPassword),
		RoleID:   role.ID,
		SiteID:   siteID,
		IsActive: true,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, user); err != nil {
			return err
		}
		return s.audit.log(txCtx, actor, model.ActionCreateUser, "user", user.ID.String(), user.Username,
			map[string]interface{}{"email": user.Email, "role": role.Name})
	})
	if err != nil {
		return nil, err
	}

	user.Role = role
	return mapToResponse(user), nil
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	userID, err := parseID("user_id", id)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return mapToResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int, search string) ([]UserResponse, int64, error) {
	page, limit = normalizePage(page, limit)

	users, total, err := s.repo.List(ctx, page, limit, search)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapToResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, actor uuid.UUID, id string, req UpdateUserRequest) (*UserResponse, error) {
	userID, err := parseID("user_id", id)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	if req.Role != "" && req.Role != user.RoleName() {
		role, err := s.resolveRole(ctx, req.Role)
		if err != nil {
			return nil, err
		}
		user.RoleID = role.ID
		user.Role = role
		changes["role"] = role.Name
	}

	if req.Username != "" && req.Username != user.Username {
		if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
			return nil, apperror.Conflict("username already exists")
		}
		user.Username = req.Username
		changes["username"] = req.Username
	}

	if req.Email != "" && req.Email != user.Email {
		if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
			return nil, apperror.Conflict("email already exists")
		}
		user.Email = req.Email
		changes["email"] = req.Email
	}

	if req.SiteID != "" {
		siteID, err := s.resolveSite(ctx, req.SiteID)
		if err != nil {
			return nil, err
		}
		user.SiteID = siteID
		user.Site = nil
		changes["site_id"] = req.SiteID
	}
	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Phone != "" {
		user.Phone = req.Phone
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
		changes["is_active"] = *req.IsActive
	}
	if req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperror.Internal("hash password", err)
		}
		user.Password = string(hashed)
		changes["password"] = "changed"
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Update(txCtx, user); err != nil {
			return err
		}
		return s.audit.log(txCtx, actor, model.ActionUpdateUser, "user", user.ID.String(), user.Username, changes)
	})
	if err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, actor uuid.UUID, id string) error {
	userID, err := parseID("user_id", id)
	if err != nil {
		return err
	}
	if userID == actor {
		return apperror.Validation("you cannot delete your own account")
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Delete(txCtx, userID); err != nil {
			return err
		}
		return s.audit.log(txCtx, actor, model.ActionDeleteUser, "user", user.ID.String(), user.Username, nil)
	})
}

// EnsureAdmin creates an admin account with the given credentials unless the email is taken.
func (s *userService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return err
	}

	username := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		username = email[:at]
	}
	_, err := s.CreateUser(ctx, uuid.Nil, CreateUserRequest{
		Username: username,
		FullName: "Administrator",
		Email:    email,
		Password: password,
		Role:     model.RoleAdmin,
	})
	if err != nil {
		return err
	}
	logger.Info("[Bootstrap] admin account created", zap.String("email", email))
	return nil
}
