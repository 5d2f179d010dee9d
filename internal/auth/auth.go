// Package auth manages local accounts: sign-up, sign-in and the persisted
// identity of the session. Passwords are stored as bcrypt hashes in the user
// directory; the signed-in user id lives in a plain identity file inside the
// session directory so a restarted client resumes without asking again.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Atropina/Falai-Arizona/internal/store"
)

// ErrInvalidCredentials covers both unknown email and wrong password, so a
// caller cannot probe which emails are registered.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrEmailTaken is returned by SignUp when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// Provider is the account layer over the user directory.
type Provider struct {
	db           *store.DB
	logger       *zap.Logger
	identityPath string
}

// NewProvider wires a provider whose identity file lives at identityPath.
func NewProvider(db *store.DB, logger *zap.Logger, identityPath string) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{db: db, logger: logger, identityPath: identityPath}
}

// SignUp registers a new account and signs it in.
func (p *Provider) SignUp(name, email, password string) (*store.UserRecord, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, errors.New("name, email and password are required")
	}

	existing, err := p.db.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &store.UserRecord{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := p.db.CreateUser(u); err != nil {
		return nil, err
	}
	if err := p.writeIdentity(u.ID); err != nil {
		return nil, err
	}
	p.logger.Info("account created", zap.String("user", u.ID))
	return u, nil
}

// SignIn authenticates against the stored hash and persists the identity.
func (p *Provider) SignIn(email, password string) (*store.UserRecord, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := p.db.GetUserByEmail(email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if err := p.writeIdentity(u.ID); err != nil {
		return nil, err
	}
	p.logger.Info("signed in", zap.String("user", u.ID))
	return u, nil
}

// SignOut forgets the persisted identity. Safe to call when signed out.
func (p *Provider) SignOut() error {
	err := os.Remove(p.identityPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Current returns the signed-in user, or nil when the session has no
// identity. A stale identity file pointing at a deleted user reads as
// signed out and is cleaned up.
func (p *Provider) Current() (*store.UserRecord, error) {
	raw, err := os.ReadFile(p.identityPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(string(raw))
	if id == "" {
		return nil, nil
	}
	u, err := p.db.GetUser(id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		_ = os.Remove(p.identityPath)
		return nil, nil
	}
	return u, nil
}

func (p *Provider) writeIdentity(id string) error {
	return os.WriteFile(p.identityPath, []byte(id+"\n"), 0o600)
}
