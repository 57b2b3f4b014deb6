package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cartrita/cartrita/internal/domain"
)

// SessionStore persists sessions keyed by the JWT "jti" claim. Revoking a
// session blacklists its token until expiry.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByTokenID(ctx context.Context, tokenID string) (*domain.Session, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.Session, error)
	Revoke(ctx context.Context, tokenID string, at time.Time) error
	// DeleteExpired removes sessions past their expiry, returning the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CredentialStore persists bcrypt password hashes per user.
type CredentialStore interface {
	SetPasswordHash(ctx context.Context, userID uuid.UUID, hash []byte) error
	PasswordHash(ctx context.Context, userID uuid.UUID) ([]byte, error)
}

// Authenticator issues and verifies JWT-backed sessions.
type Authenticator struct {
	secret      []byte
	ttl         time.Duration
	sessions    SessionStore
	credentials CredentialStore
	now         func() time.Time
}

// NewAuthenticator creates an Authenticator. ttl defaults to 24h.
func NewAuthenticator(secret []byte, ttl time.Duration, sessions SessionStore, credentials CredentialStore) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{
		secret:      secret,
		ttl:         ttl,
		sessions:    sessions,
		credentials: credentials,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetPassword stores a bcrypt hash of the password for the user.
func (a *Authenticator) SetPassword(ctx context.Context, userID uuid.UUID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	return a.credentials.SetPasswordHash(ctx, userID, hash)
}

// Login verifies the password and issues a signed session token.
func (a *Authenticator) Login(ctx context.Context, userID uuid.UUID, password, userAgent, ipAddress string) (string, *domain.Session, error) {
	hash, err := a.credentials.PasswordHash(ctx, userID)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := a.now()
	jti := uuid.NewString()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		Issuer:    "cartrita",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}

	session := &domain.Session{
		ID:        uuid.New(),
		UserID:    userID,
		TokenID:   jti,
		UserAgent: userAgent,
		IPAddress: ipAddress,
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
	}
	if err := a.sessions.Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("creating session: %w", err)
	}
	return token, session, nil
}

// Verify parses the token, checks the signature, and confirms the backing
// session is still active. Revoked sessions fail with ErrSessionRevoked even
// when the token itself has not expired.
func (a *Authenticator) Verify(ctx context.Context, token string) (uuid.UUID, *domain.Session, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return uuid.Nil, nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: bad subject", ErrInvalidCredentials)
	}

	session, err := a.sessions.GetByTokenID(ctx, claims.ID)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: unknown session", ErrInvalidCredentials)
	}
	if session.RevokedAt != nil {
		return uuid.Nil, nil, ErrSessionRevoked
	}
	if !session.Active(a.now()) {
		return uuid.Nil, nil, fmt.Errorf("%w: session expired", ErrInvalidCredentials)
	}
	return userID, session, nil
}

// Revoke blacklists the session behind the token id.
func (a *Authenticator) Revoke(ctx context.Context, tokenID string) error {
	if err := a.sessions.Revoke(ctx, tokenID, a.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}
