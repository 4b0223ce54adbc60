package processor

import (
	"context"
	"testing"

	"github.com/ibheelz/Todoalrojo-sub002/internal/config"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

func newTestProcessor(t *testing.T, password string) AuthProcessor {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	assert.NoError(t, err)

	return New(config.AuthConfig{
		JWTSecret:         "test-secret",
		AdminEmail:        "admin@example.com",
		AdminPasswordHash: string(hash),
	}, observability.NewLogger())
}

func TestLogin_Success(t *testing.T) {
	p := newTestProcessor(t, "correct horse battery")

	token, err := p.Login(context.Background(), "admin@example.com", "correct horse battery")

	assert.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestLogin_WrongPassword(t *testing.T) {
	p := newTestProcessor(t, "correct horse battery")

	_, err := p.Login(context.Background(), "admin@example.com", "guess")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_WrongEmail(t *testing.T) {
	p := newTestProcessor(t, "correct horse battery")

	_, err := p.Login(context.Background(), "intruder@example.com", "correct horse battery")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateToken_RoundTrip(t *testing.T) {
	p := newTestProcessor(t, "correct horse battery")

	token, err := p.Login(context.Background(), "admin@example.com", "correct horse battery")
	assert.NoError(t, err)

	claims, err := p.ValidateToken(context.Background(), token)

	assert.NoError(t, err)
	assert.Equal(t, "admin@example.com", claims.Subject)
	assert.Equal(t, tokenIssuer, claims.Issuer)
}

func TestValidateToken_RejectsTamperedToken(t *testing.T) {
	p := newTestProcessor(t, "correct horse battery")

	token, err := p.Login(context.Background(), "admin@example.com", "correct horse battery")
	assert.NoError(t, err)

	_, err = p.ValidateToken(context.Background(), token+"x")

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_RejectsForeignSecret(t *testing.T) {
	issuer := newTestProcessor(t, "correct horse battery")
	verifier := New(config.AuthConfig{
		JWTSecret:  "different-secret",
		AdminEmail: "admin@example.com",
	}, observability.NewLogger())

	token, err := issuer.Login(context.Background(), "admin@example.com", "correct horse battery")
	assert.NoError(t, err)

	_, err = verifier.ValidateToken(context.Background(), token)

	assert.ErrorIs(t, err, ErrInvalidToken)
}
