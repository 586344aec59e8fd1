package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/c14220110/clinic-queue/internal/common/apperr"
	"github.com/c14220110/clinic-queue/internal/models"
	"github.com/c14220110/clinic-queue/internal/store"
	"github.com/c14220110/clinic-queue/pkg/utils"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

type AuthService struct {
	Store  store.Store
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewAuthService(st store.Store, secret []byte, ttl time.Duration) *AuthService {
	return &AuthService{Store: st, Secret: secret, TTL: ttl, Now: time.Now}
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Validation("username and password are required")
	}

	var u *models.User
	err := s.Store.View(ctx, func(q store.Queries) error {
		var err error
		u, err = q.GetUserByUsername(ctx, username)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	// Patients sign in through the booking portal, not here.
	if u.PasswordHash == "" || u.Role == models.RolePatient {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	exp := s.Now().Add(s.TTL)
	token, err := utils.GenerateJWTToken(s.Secret, u.ID, u.Role, u.Username, exp)
	if err != nil {
		return nil, apperr.Internal("failed to issue token", err)
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

// EnsureUser creates a staff account unless the username already exists.
// Used to bootstrap the in-memory store.
func (s *AuthService) EnsureUser(ctx context.Context, name, username, password, role string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	var u *models.User
	err = s.Store.WithTx(ctx, func(q store.Queries) error {
		existing, err := q.GetUserByUsername(ctx, username)
		if err == nil {
			u = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		u = &models.User{Name: name, Username: username, PasswordHash: string(hash), Role: role}
		return q.CreateUser(ctx, u)
	})
	return u, err
}
