package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"procurement/internal/config"
	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type SignupRequest struct {
	Username   string `json:"username" binding:"required,min=3,max=64"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	InviteCode string `json:"invite_code" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateInviteRequest struct {
	Role string `json:"role" binding:"required,oneof=admin manager staff"`
}

type InviteResponse struct {
	Code      string     `json:"code"`
	Role      string     `json:"role"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// UserService handles operator accounts and sessions. Signup is gated by
// single-use invite codes; new accounts start PENDING until an admin
// activates them.
type UserService interface {
	Signup(ctx context.Context, req SignupRequest) (UserResponse, error)
	Login(ctx context.Context, req LoginRequest) (TokenPair, UserResponse, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Logout(ctx context.Context, userID, refreshToken string) error

	Get(ctx context.Context, id string) (UserResponse, error)
	List(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	SetState(ctx context.Context, actorID, userID, state string) (UserResponse, error)

	CreateInvite(ctx context.Context, actorID string, req CreateInviteRequest) (InviteResponse, error)
	ListInvites(ctx context.Context, page, limit int) ([]InviteResponse, int64, error)
}

type userService struct {
	users   repository.UserRepository
	invites repository.InviteRepository
	audit   repository.AuditRepository
	txm     repository.TransactionManager
	jwtCfg  config.JWTConfig
	invCfg  config.InviteConfig
}

func NewUserService(
	users repository.UserRepository,
	invites repository.InviteRepository,
	audit repository.AuditRepository,
	txm repository.TransactionManager,
	jwtCfg config.JWTConfig,
	invCfg config.InviteConfig,
) UserService {
	return &userService{
		users:   users,
		invites: invites,
		audit:   audit,
		txm:     txm,
		jwtCfg:  jwtCfg,
		invCfg:  invCfg,
	}
}

// Signup registers a new operator through an invite code. An expired or
// already-used code rejects the signup and stays untouched; on success the
// code is consumed and the account is created PENDING in the same
// transaction.
func (s *userService) Signup(ctx context.Context, req SignupRequest) (UserResponse, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return UserResponse{}, fmt.Errorf("failed to hash password: %w", err)
	}

	var user model.User
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		invite, findErr := s.invites.FindByCode(txCtx, strings.TrimSpace(req.InviteCode))
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return ErrInviteNotFound
			}
			return fmt.Errorf("failed to look up invite code: %w", findErr)
		}
		if invite.IsUsed() {
			return ErrInviteUsed
		}
		if invite.IsExpired() {
			return ErrInviteExpired
		}

		user = model.User{
			Username: req.Username,
			Email:    strings.ToLower(req.Email),
			Password: string(hashed),
			Role:     invite.Role,
			State:    model.AccountPending,
		}
		if createErr := s.users.Create(txCtx, &user); createErr != nil {
			return fmt.Errorf("failed to create user: %w", createErr)
		}

		now := time.Now()
		invite.UsedAt = &now
		invite.UsedBy = &user.ID
		if updErr := s.invites.Update(txCtx, invite); updErr != nil {
			return fmt.Errorf("failed to consume invite code: %w", updErr)
		}

		details, _ := json.Marshal(map[string]string{"invite_code": invite.Code})
		entry := model.AuditLog{
			UserID:     &user.ID,
			Action:     model.ActionSignup,
			EntityType: "user",
			EntityID:   user.ID.String(),
			Details:    string(details),
		}
		return s.audit.Log(txCtx, &entry)
	})
	if err != nil {
		return UserResponse{}, err
	}

	return toUserResponse(&user), nil
}

func (s *userService) Login(ctx context.Context, req LoginRequest) (TokenPair, UserResponse, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(req.Email))
	if err != nil {
		return TokenPair{}, UserResponse{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return TokenPair{}, UserResponse{}, ErrInvalidCredentials
	}
	if !user.CanSignIn() {
		return TokenPair{}, UserResponse{}, ErrAccountInactive
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return TokenPair{}, UserResponse{}, err
	}

	entry := model.AuditLog{
		UserID:     &user.ID,
		Action:     model.ActionLogin,
		EntityType: "user",
		EntityID:   user.ID.String(),
	}
	if err := s.audit.Log(ctx, &entry); err != nil {
		return TokenPair{}, UserResponse{}, fmt.Errorf("failed to write audit log: %w", err)
	}

	return pair, toUserResponse(user), nil
}

func (s *userService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	stored, err := s.users.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	if time.Now().After(stored.ExpiresAt) {
		_ = s.users.DeleteRefreshToken(ctx, refreshToken)
		return TokenPair{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	if !user.CanSignIn() {
		return TokenPair{}, ErrAccountInactive
	}

	// Rotate: the old refresh token dies with the new pair.
	if err := s.users.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return TokenPair{}, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return s.issueTokens(ctx, user)
}

func (s *userService) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken != "" {
		if err := s.users.DeleteRefreshToken(ctx, refreshToken); err != nil {
			return fmt.Errorf("failed to delete refresh token: %w", err)
		}
	}

	entry := model.AuditLog{
		UserID:     parseActor(userID),
		Action:     model.ActionLogout,
		EntityType: "user",
		EntityID:   userID,
	}
	return s.audit.Log(ctx, &entry)
}

func (s *userService) Get(ctx context.Context, id string) (UserResponse, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return UserResponse{}, fmt.Errorf("invalid user id: %w", err)
	}
	user, err := s.users.GetByID(ctx, uid)
	if err != nil {
		return UserResponse{}, fmt.Errorf("user not found: %w", err)
	}
	return toUserResponse(user), nil
}

func (s *userService) List(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	users, total, err := s.users.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, toUserResponse(&users[i]))
	}
	return responses, total, nil
}

// SetState moves an account between PENDING/ACTIVE/BLOCKED/DEACTIVATED.
// Blocking or deactivating also revokes every refresh token the account
// holds.
func (s *userService) SetState(ctx context.Context, actorID, userID, state string) (UserResponse, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return UserResponse{}, fmt.Errorf("invalid user id: %w", err)
	}

	var user *model.User
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		user, findErr = s.users.GetByID(txCtx, uid)
		if findErr != nil {
			return fmt.Errorf("user not found: %w", findErr)
		}

		user.State = state
		if updErr := s.users.Update(txCtx, user); updErr != nil {
			return fmt.Errorf("failed to update user: %w", updErr)
		}

		if state == model.AccountBlocked || state == model.AccountDeactivated {
			if revErr := s.users.DeleteRefreshTokensByUser(txCtx, uid); revErr != nil {
				return fmt.Errorf("failed to revoke sessions: %w", revErr)
			}
		}

		details, _ := json.Marshal(map[string]string{"state": state})
		entry := model.AuditLog{
			UserID:     parseActor(actorID),
			Action:     "SET_USER_STATE",
			EntityType: "user",
			EntityID:   userID,
			Details:    string(details),
		}
		return s.audit.Log(txCtx, &entry)
	})
	if err != nil {
		return UserResponse{}, err
	}

	return toUserResponse(user), nil
}

func (s *userService) CreateInvite(ctx context.Context, actorID string, req CreateInviteRequest) (InviteResponse, error) {
	code, err := generateInviteCode()
	if err != nil {
		return InviteResponse{}, fmt.Errorf("failed to generate invite code: %w", err)
	}

	invite := model.InviteCode{
		Code:      code,
		Role:      req.Role,
		ExpiresAt: time.Now().Add(s.invCfg.TTL),
		CreatedBy: parseActor(actorID),
	}

	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if createErr := s.invites.Create(txCtx, &invite); createErr != nil {
			return fmt.Errorf("failed to create invite code: %w", createErr)
		}
		entry := model.AuditLog{
			UserID:     parseActor(actorID),
			Action:     model.ActionCreateInviteCode,
			EntityType: "invite_code",
			EntityID:   invite.Code,
		}
		return s.audit.Log(txCtx, &entry)
	})
	if err != nil {
		return InviteResponse{}, err
	}

	return toInviteResponse(&invite), nil
}

func (s *userService) ListInvites(ctx context.Context, page, limit int) ([]InviteResponse, int64, error) {
	invites, total, err := s.invites.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invite codes: %w", err)
	}
	responses := make([]InviteResponse, 0, len(invites))
	for i := range invites {
		responses = append(responses, toInviteResponse(&invites[i]))
	}
	return responses, total, nil
}

// --- helpers ---

func (s *userService) issueTokens(ctx context.Context, user *model.User) (TokenPair, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.jwtCfg.AccessTTL).Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtCfg.Secret))
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh := model.RefreshToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(s.jwtCfg.RefreshTTL),
	}
	if err := s.users.CreateRefreshToken(ctx, &refresh); err != nil {
		return TokenPair{}, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh.Token}, nil
}

func generateInviteCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

func toUserResponse(user *model.User) UserResponse {
	return UserResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		State:     user.State,
		CreatedAt: user.CreatedAt,
	}
}

func toInviteResponse(invite *model.InviteCode) InviteResponse {
	return InviteResponse{
		Code:      invite.Code,
		Role:      invite.Role,
		ExpiresAt: invite.ExpiresAt,
		UsedAt:    invite.UsedAt,
		CreatedAt: invite.CreatedAt,
	}
}
