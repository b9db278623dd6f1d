package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellaris/backend-crm/internal/common"
)

var authClock = time.Date(2023, 4, 15, 9, 0, 0, 0, time.UTC)

func newAuthService(t *testing.T) (*Service, *MemStore) {
	t.Helper()
	store := NewMemStore()
	svc, err := NewService(Config{Store: store, Secret: "test-secret"})
	require.NoError(t, err)
	svc.WithNow(func() time.Time { return authClock })
	return svc, store
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Ada", "Ada@Example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	_, err = svc.Register(ctx, "Ada again", "ada@example.com", "correct-horse")
	require.Error(t, err)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "EMAIL_ALREADY_USED", appErr.Code)

	result, err := svc.Login(ctx, "ada@example.com", "correct-horse", "go-test", "127.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.True(t, result.AccessExpiry.After(authClock))

	subject, err := svc.ParseAccessToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, subject)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	cases := []struct {
		name, userName, email, password string
	}{
		{"missing name", "", "a@example.com", "longenough"},
		{"missing email", "Ada", "", "longenough"},
		{"short password", "Ada", "a@example.com", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.userName, tc.email, tc.password)
			require.Error(t, err)
			assert.True(t, common.IsAppError(err))
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "correct-horse")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ada@example.com", "wrong", "", "")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INVALID_CREDENTIALS", appErr.Code)

	_, err = svc.Login(ctx, "nobody@example.com", "correct-horse", "", "")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INVALID_CREDENTIALS", appErr.Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "correct-horse")
	require.NoError(t, err)
	login, err := svc.Login(ctx, "ada@example.com", "correct-horse", "", "")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The previous refresh token is spent.
	_, err = svc.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)

	// The rotated one still works.
	_, err = svc.Refresh(ctx, refreshed.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshExpiredSession(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "correct-horse")
	require.NoError(t, err)
	login, err := svc.Login(ctx, "ada@example.com", "correct-horse", "", "")
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return authClock.Add(8 * 24 * time.Hour) })
	_, err = svc.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "correct-horse")
	require.NoError(t, err)
	login, err := svc.Login(ctx, "ada@example.com", "correct-horse", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, login.RefreshToken))
	_, err = svc.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)

	// Logging out twice is harmless.
	require.NoError(t, svc.Logout(ctx, login.RefreshToken))
}

func TestAccessTokenExpiry(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "correct-horse")
	require.NoError(t, err)
	login, err := svc.Login(ctx, "ada@example.com", "correct-horse", "", "")
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return authClock.Add(16 * time.Minute) })
	_, err = svc.ParseAccessToken(login.AccessToken)
	require.Error(t, err)
}

func TestParseAccessTokenGarbage(t *testing.T) {
	svc, _ := newAuthService(t)
	for _, raw := range []string{"", "   ", "not.a.jwt", "a.b"} {
		_, err := svc.ParseAccessToken(raw)
		require.Error(t, err, "input %q", raw)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "correct-horse")
	require.NoError(t, err)
	login, err := svc.Login(ctx, "ada@example.com", "correct-horse", "", "")
	require.NoError(t, err)

	// No sender configured, the token comes back for manual delivery.
	issue, err := svc.InitiatePasswordReset(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, issue.Token)

	require.NoError(t, svc.ResetPassword(ctx, issue.Token, "new-password-1"))

	// Old password no longer works, sessions are revoked, token is spent.
	_, err = svc.Login(ctx, "ada@example.com", "correct-horse", "", "")
	require.Error(t, err)
	_, err = svc.Refresh(ctx, login.RefreshToken)
	require.Error(t, err)
	require.Error(t, svc.ResetPassword(ctx, issue.Token, "another-password"))

	_, err = svc.Login(ctx, "ada@example.com", "new-password-1", "", "")
	require.NoError(t, err)
}

func TestPasswordResetUnknownEmailSilent(t *testing.T) {
	svc, _ := newAuthService(t)
	issue, err := svc.InitiatePasswordReset(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, issue.Token)
}

func TestPasswordResetSendsEmail(t *testing.T) {
	store := NewMemStore()
	rec := &common.RecordingEmail{}
	svc, err := NewService(Config{Store: store, Secret: "test-secret", Sender: rec, BaseURL: "https://crm.example.com"})
	require.NoError(t, err)
	svc.WithNow(func() time.Time { return authClock })
	ctx := context.Background()

	_, err = svc.Register(ctx, "Ada", "ada@example.com", "correct-horse")
	require.NoError(t, err)

	issue, err := svc.InitiatePasswordReset(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Empty(t, issue.Token, "mailed tokens are not echoed")
	require.Len(t, rec.Outbox, 1)
	assert.Equal(t, "ada@example.com", rec.Outbox[0].To)
	assert.Contains(t, rec.Outbox[0].HTML, "https://crm.example.com/reset?token=")
}
