// Package auth is the session authenticator: it exchanges credentials
// for bearer tokens and turns a presented token back into a verified
// account identifier. The ledger core trusts that identifier and never
// sees credentials.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"beanbet/internal/ledger"
	"beanbet/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")

	// Registration conflict, re-exported for the HTTP layer.
	ErrUsernameTaken = store.ErrUsernameTaken
)

type Service struct {
	ledger   *ledger.Ledger
	store    store.AccountStore
	secret   []byte
	tokenTTL time.Duration

	startingBalance int64
	defaultCurrency string
}

func NewService(led *ledger.Ledger, st store.AccountStore, secret string, tokenTTL time.Duration, startingBalance int64, defaultCurrency string) *Service {
	return &Service{
		ledger:          led,
		store:           st,
		secret:          []byte(secret),
		tokenTTL:        tokenTTL,
		startingBalance: startingBalance,
		defaultCurrency: defaultCurrency,
	}
}

// Register creates the account with the starting balance and returns a
// fresh session token.
func (s *Service) Register(ctx context.Context, username, password, currency string) (*store.Account, string, error) {
	if currency == "" {
		currency = s.defaultCurrency
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	acct, err := s.ledger.CreateAccount(ctx, username, string(hash), currency, s.startingBalance)
	if err != nil {
		return nil, "", err
	}
	token, err := s.signToken(acct.ID)
	if err != nil {
		return nil, "", err
	}
	return acct, token, nil
}

// Login verifies the password and returns a fresh session token.
func (s *Service) Login(ctx context.Context, username, password string) (*store.Account, string, error) {
	acct, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.signToken(acct.ID)
	if err != nil {
		return nil, "", err
	}
	return acct, token, nil
}

// Verify resolves a bearer token to the account it was issued for.
func (s *Service) Verify(ctx context.Context, token string) (*store.Account, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrInvalidToken
	}
	acct, err := s.store.Get(ctx, sub)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return acct, nil
}

func (s *Service) signToken(accountID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
