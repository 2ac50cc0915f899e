package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fininsight/fininsight/internal/models"
	"github.com/fininsight/fininsight/internal/repo"
	"github.com/fininsight/fininsight/pkg/tokens"
)

type recordedEvent struct {
	key   string
	event any
}

type fakePublisher struct {
	published []recordedEvent
}

func (f *fakePublisher) PublishEvent(ctx context.Context, key string, event any) error {
	f.published = append(f.published, recordedEvent{key: key, event: event})
	return nil
}

func newTestService(t *testing.T) *SessionService {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "auth.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	return &SessionService{
		Repo: repo.GormRepo{DB: db},
		Tokens: &tokens.Issuer{
			AccessSecret:  []byte("test-jwt-secret"),
			RefreshSecret: []byte("test-refresh-secret"),
		},
	}
}

func TestSessionService_Register_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{name: "empty username", username: "", email: "a@x.com", password: "Secret123"},
		{name: "empty email", username: "alice", email: "", password: "Secret123"},
		{name: "empty password", username: "alice", email: "a@x.com", password: ""},
		{name: "whitespace email", username: "alice", email: "   ", password: "Secret123"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := svc.Register(ctx, tt.username, tt.email, tt.password)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSessionService_Register_Success(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, "alice", "A@X.com", "Secret123")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, "a@x.com", res.User.Email, "email is case-normalized")
	assert.NotEmpty(t, res.User.ID)
	assert.True(t, res.RefreshExp.After(time.Now()))

	claims, err := svc.Tokens.VerifyAccess(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.Subject)

	// stored material is a digest, never the raw token or the password
	stored, err := svc.Repo.UserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ActiveRefreshToken)
	assert.NotEqual(t, res.RefreshToken, stored.ActiveRefreshToken)
	assert.NotEqual(t, "Secret123", stored.PasswordHash)
}

func TestSessionService_Register_DuplicateEmail(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()
	email := gofakeit.Email()

	_, err := svc.Register(ctx, gofakeit.Username(), email, "Secret123")
	require.NoError(t, err)

	res, err := svc.Register(ctx, gofakeit.Username(), email, "Different456")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSessionService_Login_AfterRegister(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice", "a@x.com", "Secret123")
	require.NoError(t, err)

	res, err := svc.Login(ctx, "a@x.com", "Secret123")
	require.NoError(t, err)
	require.NotNil(t, res)

	claims, err := svc.Tokens.VerifyAccess(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.Subject)
	assert.NotEqual(t, reg.RefreshToken, res.RefreshToken, "login rotates the refresh token")
}

func TestSessionService_Login_GenericFailure(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "a@x.com", "Secret123")
	require.NoError(t, err)

	_, wrongPass := svc.Login(ctx, "a@x.com", "WrongPassword")
	_, unknownEmail := svc.Login(ctx, "nobody@x.com", "Secret123")

	require.Error(t, wrongPass)
	require.Error(t, unknownEmail)
	assert.ErrorIs(t, wrongPass, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	// neither factor is disclosed: identical error either way
	assert.Equal(t, wrongPass.Error(), unknownEmail.Error())
}

func TestSessionService_Login_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	for _, tt := range []struct{ email, password string }{
		{"", "Secret123"},
		{"a@x.com", ""},
		{"", ""},
	} {
		res, err := svc.Login(ctx, tt.email, tt.password)
		require.Error(t, err)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrValidation)
	}
}

func TestSessionService_Authenticate_HappyPath(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice", "a@x.com", "Secret123")
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, reg.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, user.ID.String())
	assert.Equal(t, "alice", user.Username)
}

func TestSessionService_Authenticate_Rotation_RevokesOldSession(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, "alice", "a@x.com", "Secret123")
	require.NoError(t, err)

	// second login from another device rotates the stored digest
	second, err := svc.Login(ctx, "a@x.com", "Secret123")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidSession, "pre-rotation token must stop validating")

	user, err := svc.Authenticate(ctx, second.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, second.User.ID, user.ID.String())
}

func TestSessionService_Authenticate_Rejections(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice", "a@x.com", "Secret123")
	require.NoError(t, err)

	// access token presented where a refresh token is expected
	accessToken, _, err := svc.Tokens.IssueAccess(reg.User.ID)
	require.NoError(t, err)

	// well-signed refresh token for an identity that does not exist
	ghost, _, err := svc.Tokens.IssueRefresh("7b7a4e2e-1111-4f7c-9b1e-3c1de7a0beef")
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", accessToken, ghost} {
		_, err := svc.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidSession)
	}
}

func TestSessionService_LogOut_InvalidatesSession(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice", "a@x.com", "Secret123")
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, reg.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, svc.LogOut(ctx, user.ID))

	_, err = svc.Authenticate(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessionService_Refresh_MintsFreshAccessToken(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice", "a@x.com", "Secret123")
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, reg.RefreshToken)
	require.NoError(t, err)

	accessToken, err := svc.Refresh(ctx, user)
	require.NoError(t, err)

	claims, err := svc.Tokens.VerifyAccess(accessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
}

func TestSessionService_PublishesEvents(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	pub := &fakePublisher{}
	svc.Events = pub
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice", "a@x.com", "Secret123")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "a@x.com", "Secret123")
	require.NoError(t, err)

	require.Len(t, pub.published, 2)
	assert.Equal(t, reg.User.ID, pub.published[0].key)
	assert.Equal(t, reg.User.ID, pub.published[1].key)
}

func TestSessionService_FailedLoginDoesNotTouchSession(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice", "a@x.com", "Secret123")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "a@x.com", "WrongPassword")
	require.Error(t, err)

	// the stored session is untouched by the failed attempt
	user, err := svc.Authenticate(ctx, reg.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, user.ID.String())
}
