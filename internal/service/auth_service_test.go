package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillforge/proposal-api/internal/models"
	appErrors "github.com/quillforge/proposal-api/pkg/errors"
)

// fakeAuthRepo keeps users and sessions in maps so the service logic can be
// exercised without a database.
type fakeAuthRepo struct {
	users    map[string]*models.User
	sessions map[string]*models.RefreshToken
	audits   []*models.AuditLog

	lastLoginAt *time.Time
}

func newFakeAuthRepo(users ...*models.User) *fakeAuthRepo {
	r := &fakeAuthRepo{
		users:    make(map[string]*models.User),
		sessions: make(map[string]*models.RefreshToken),
	}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (r *fakeAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	r.lastLoginAt = &ts
	return nil
}

func (r *fakeAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	r.sessions[token.Token] = token
	return nil
}

func (r *fakeAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := r.sessions[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (r *fakeAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, rt := range r.sessions {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (r *fakeAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	for _, rt := range r.sessions {
		if rt.UserID == userID {
			rt.Revoked = true
			rt.RevokedAt = &now
		}
	}
	return nil
}

func (r *fakeAuthRepo) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	r.audits = append(r.audits, entry)
	return nil
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newAuthService(repo *fakeAuthRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
	})
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := newFakeAuthRepo(&models.User{
		ID: "u1", Email: "author@example.com", PasswordHash: hashOf(t, "password"),
		Active: true, Role: models.RoleAuthor,
	})
	svc := newAuthService(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "author@example.com", Password: "password"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, models.RoleAuthor, res.User.Role)
	assert.NotNil(t, repo.lastLoginAt)
	assert.Len(t, repo.sessions, 1)
	assert.Len(t, repo.audits, 1)
}

func TestAuthServiceLoginRejections(t *testing.T) {
	cases := []struct {
		name     string
		user     *models.User
		email    string
		password string
		wantCode string
	}{
		{
			name: "wrong password",
			user: &models.User{
				ID: "u1", Email: "author@example.com",
				PasswordHash: hashOf(t, "password"), Active: true,
			},
			email:    "author@example.com",
			password: "nope",
			wantCode: appErrors.ErrInvalidCredentials.Code,
		},
		{
			name: "unknown email",
			user: &models.User{
				ID: "u1", Email: "author@example.com",
				PasswordHash: hashOf(t, "password"), Active: true,
			},
			email:    "stranger@example.com",
			password: "password",
			wantCode: appErrors.ErrInvalidCredentials.Code,
		},
		{
			name: "inactive account",
			user: &models.User{
				ID: "u1", Email: "author@example.com",
				PasswordHash: hashOf(t, "password"), Active: false,
			},
			email:    "author@example.com",
			password: "password",
			wantCode: appErrors.ErrInactiveAccount.Code,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newAuthService(newFakeAuthRepo(tc.user))
			_, err := svc.Login(context.Background(), models.LoginRequest{Email: tc.email, Password: tc.password})
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, appErrors.FromError(err).Code)
		})
	}
}

func TestAuthServiceRefreshTokenRotates(t *testing.T) {
	repo := newFakeAuthRepo(&models.User{ID: "u1", Email: "author@example.com", Active: true, Role: models.RoleAuthor})
	repo.sessions["old"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "old", ExpiresAt: time.Now().Add(time.Hour)}
	svc := newAuthService(repo)

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "old", res.RefreshToken)
	assert.True(t, repo.sessions["old"].Revoked, "used refresh token must be revoked")
}

func TestAuthServiceRefreshTokenExpired(t *testing.T) {
	repo := newFakeAuthRepo(&models.User{ID: "u1", Active: true})
	repo.sessions["old"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "old", ExpiresAt: time.Now().Add(-time.Minute)}
	svc := newAuthService(repo)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogout(t *testing.T) {
	repo := newFakeAuthRepo()
	repo.sessions["mine"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "mine", ExpiresAt: time.Now().Add(time.Hour)}
	repo.sessions["theirs"] = &models.RefreshToken{ID: "rt2", UserID: "u2", Token: "theirs", ExpiresAt: time.Now().Add(time.Hour)}
	svc := newAuthService(repo)

	require.NoError(t, svc.Logout(context.Background(), "mine", "u1"))
	assert.True(t, repo.sessions["mine"].Revoked)

	err := svc.Logout(context.Background(), "theirs", "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.False(t, repo.sessions["theirs"].Revoked)
}

func TestValidateToken(t *testing.T) {
	svc := newAuthService(newFakeAuthRepo())
	user := &models.User{ID: "u1", Email: "admin@example.com", Role: models.RoleAdmin}

	token, err := svc.signAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	_, err = svc.ValidateToken(token + "x")
	require.Error(t, err)
}
