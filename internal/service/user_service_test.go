package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"procurement/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) createInvite(t *testing.T, role string, expiresAt time.Time) *model.InviteCode {
	t.Helper()
	invite := &model.InviteCode{
		Code:      "TESTCODE" + role,
		Role:      role,
		ExpiresAt: expiresAt,
	}
	require.NoError(t, e.inviteRepo.Create(context.Background(), invite))
	return invite
}

func TestSignupConsumesInviteAndStartsPending(t *testing.T) {
	env := newTestEnv(t)
	invite := env.createInvite(t, model.RoleStaff, time.Now().Add(time.Hour))

	user, err := env.users.Signup(context.Background(), SignupRequest{
		Username:   "operator",
		Email:      "Operator@Example.com",
		Password:   "secret-password",
		InviteCode: invite.Code,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AccountPending, user.State)
	assert.Equal(t, model.RoleStaff, user.Role)
	assert.Equal(t, "operator@example.com", user.Email)

	consumed, err := env.inviteRepo.FindByCode(context.Background(), invite.Code)
	require.NoError(t, err)
	assert.True(t, consumed.IsUsed())

	// Second use of the same code is rejected.
	_, err = env.users.Signup(context.Background(), SignupRequest{
		Username:   "second",
		Email:      "second@example.com",
		Password:   "secret-password",
		InviteCode: invite.Code,
	})
	assert.ErrorIs(t, err, ErrInviteUsed)
}

func TestSignupMatchesInviteCodeCaseInsensitively(t *testing.T) {
	env := newTestEnv(t)
	invite := env.createInvite(t, model.RoleStaff, time.Now().Add(time.Hour))

	// Codes are issued uppercase but retyped by hand; case must not matter.
	user, err := env.users.Signup(context.Background(), SignupRequest{
		Username:   "typist",
		Email:      "typist@example.com",
		Password:   "secret-password",
		InviteCode: strings.ToLower(invite.Code),
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleStaff, user.Role)

	consumed, err := env.inviteRepo.FindByCode(context.Background(), invite.Code)
	require.NoError(t, err)
	assert.True(t, consumed.IsUsed())
}

func TestSignupRejectsUnknownInviteCode(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.users.Signup(context.Background(), SignupRequest{
		Username:   "stranger",
		Email:      "stranger@example.com",
		Password:   "secret-password",
		InviteCode: "NOSUCHCODE",
	})
	assert.ErrorIs(t, err, ErrInviteNotFound)
}

func TestSignupRejectsExpiredInviteWithoutConsuming(t *testing.T) {
	env := newTestEnv(t)
	invite := env.createInvite(t, model.RoleStaff, time.Now().Add(-time.Hour))

	_, err := env.users.Signup(context.Background(), SignupRequest{
		Username:   "late",
		Email:      "late@example.com",
		Password:   "secret-password",
		InviteCode: invite.Code,
	})
	assert.ErrorIs(t, err, ErrInviteExpired)

	// The expired code stays untouched, it is not marked used by the attempt.
	reloaded, err := env.inviteRepo.FindByCode(context.Background(), invite.Code)
	require.NoError(t, err)
	assert.False(t, reloaded.IsUsed())
}

func TestLoginGatesOnAccountState(t *testing.T) {
	env := newTestEnv(t)
	invite := env.createInvite(t, model.RoleManager, time.Now().Add(time.Hour))
	ctx := context.Background()

	user, err := env.users.Signup(ctx, SignupRequest{
		Username:   "manager",
		Email:      "manager@example.com",
		Password:   "secret-password",
		InviteCode: invite.Code,
	})
	require.NoError(t, err)

	// PENDING accounts cannot sign in.
	_, _, err = env.users.Login(ctx, LoginRequest{Email: "manager@example.com", Password: "secret-password"})
	assert.ErrorIs(t, err, ErrAccountInactive)

	_, err = env.users.SetState(ctx, "", user.ID, model.AccountActive)
	require.NoError(t, err)

	tokens, logged, err := env.users.Login(ctx, LoginRequest{Email: "manager@example.com", Password: "secret-password"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, user.ID, logged.ID)

	// Wrong password never reveals which part was wrong.
	_, _, err = env.users.Login(ctx, LoginRequest{Email: "manager@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Blocking revokes the session's refresh token.
	_, err = env.users.SetState(ctx, "", user.ID, model.AccountBlocked)
	require.NoError(t, err)
	_, err = env.users.Refresh(ctx, tokens.RefreshToken)
	assert.Error(t, err)
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	invite := env.createInvite(t, model.RoleStaff, time.Now().Add(time.Hour))
	ctx := context.Background()

	user, err := env.users.Signup(ctx, SignupRequest{
		Username:   "staff",
		Email:      "staff@example.com",
		Password:   "secret-password",
		InviteCode: invite.Code,
	})
	require.NoError(t, err)
	_, err = env.users.SetState(ctx, "", user.ID, model.AccountActive)
	require.NoError(t, err)

	tokens, _, err := env.users.Login(ctx, LoginRequest{Email: "staff@example.com", Password: "secret-password"})
	require.NoError(t, err)

	rotated, err := env.users.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// The old refresh token died with the rotation.
	_, err = env.users.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateInviteHasTTL(t *testing.T) {
	env := newTestEnv(t)
	invite, err := env.users.CreateInvite(context.Background(), "", CreateInviteRequest{Role: model.RoleStaff})
	require.NoError(t, err)
	assert.Len(t, invite.Code, 12)
	assert.True(t, invite.ExpiresAt.After(time.Now().Add(71*time.Hour)))
}
