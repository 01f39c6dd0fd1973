package user

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeStore struct {
	byID   map[uuid.UUID]*User
	byName map[string]*User
}

func newFakeStore(users ...*User) *fakeStore {
	s := &fakeStore{byID: make(map[uuid.UUID]*User), byName: make(map[string]*User)}
	for _, u := range users {
		s.byID[u.ID] = u
		s.byName[u.Username] = u
	}
	return s
}

func (s *fakeStore) CreateUser(_ context.Context, u *User) (*User, error) {
	u.ID = uuid.New()
	u.Status = StatusActive
	u.CreatedAt = time.Now().UTC()
	s.byID[u.ID] = u
	s.byName[u.Username] = u
	return u, nil
}

func (s *fakeStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	u, ok := s.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) SearchUsers(context.Context, string) ([]User, error) { return nil, nil }

func (s *fakeStore) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	return nil
}

const testSecret = "service-test-secret"

func signedToken(t *testing.T, secret string, subject string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "litlink",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	})
	ss, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return ss
}

func TestValidateToken(t *testing.T) {
	active := &User{ID: uuid.New(), Username: "alice", Status: StatusActive}
	admin := &User{ID: uuid.New(), Username: "root", IsAdmin: true, Status: StatusActive}
	banned := &User{ID: uuid.New(), Username: "troll", Status: StatusBanned}
	deleted := uuid.New()

	svc := NewService(newFakeStore(active, admin, banned), testSecret, time.Hour)
	ctx := context.Background()

	tests := []struct {
		name    string
		token   string
		wantID  uuid.UUID
		isAdmin bool
		wantErr bool
	}{
		{
			name:   "active account",
			token:  signedToken(t, testSecret, active.ID.String(), time.Hour),
			wantID: active.ID,
		},
		{
			name:    "admin flag carried through",
			token:   signedToken(t, testSecret, admin.ID.String(), time.Hour),
			wantID:  admin.ID,
			isAdmin: true,
		},
		{
			name:    "expired token",
			token:   signedToken(t, testSecret, active.ID.String(), -time.Minute),
			wantErr: true,
		},
		{
			name:    "wrong signing secret",
			token:   signedToken(t, "some-other-secret", active.ID.String(), time.Hour),
			wantErr: true,
		},
		{
			name:    "garbage token",
			token:   "not.a.jwt",
			wantErr: true,
		},
		{
			name:    "subject is not an id",
			token:   signedToken(t, testSecret, "alice", time.Hour),
			wantErr: true,
		},
		{
			name:    "deleted account",
			token:   signedToken(t, testSecret, deleted.String(), time.Hour),
			wantErr: true,
		},
		{
			name:    "banned account",
			token:   signedToken(t, testSecret, banned.ID.String(), time.Hour),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := svc.ValidateToken(ctx, tt.token)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidCredential)
				assert.Nil(t, identity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, identity.ID)
			assert.Equal(t, tt.isAdmin, identity.IsAdmin)
		})
	}
}

func TestValidateTokenRejectsUnsignedAlgorithm(t *testing.T) {
	active := &User{ID: uuid.New(), Username: "alice", Status: StatusActive}
	svc := NewService(newFakeStore(active), testSecret, time.Hour)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   active.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	ss, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(context.Background(), ss)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestLoginIssuesTokenValidateTokenAccepts(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	u := &User{ID: uuid.New(), Username: "alice", PasswordHash: string(hash), Status: StatusActive}
	svc := NewService(newFakeStore(u), testSecret, time.Hour)
	ctx := context.Background()

	res, err := svc.Login(ctx, &LoginRequest{Username: "alice", Password: "correct horse"})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)

	identity, err := svc.ValidateToken(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, identity.ID)
	assert.Equal(t, "alice", identity.Username)
}

func TestLoginRejectsBadPasswordAndBannedAccount(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	alice := &User{ID: uuid.New(), Username: "alice", PasswordHash: string(hash), Status: StatusActive}
	troll := &User{ID: uuid.New(), Username: "troll", PasswordHash: string(hash), Status: StatusBanned}
	svc := NewService(newFakeStore(alice, troll), testSecret, time.Hour)
	ctx := context.Background()

	_, err = svc.Login(ctx, &LoginRequest{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Login(ctx, &LoginRequest{Username: "nobody", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	_, err = svc.Login(ctx, &LoginRequest{Username: "troll", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
}
