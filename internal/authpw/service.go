// Package authpw provides email/password accounts for the parties to a plan.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"coparent/api/internal/store"
	"coparent/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingFields      = errors.New("email, password, and display name are required")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidEmail       = errors.New("email address is not valid")
	ErrInvalidParty       = errors.New("party must be partyA, partyB or empty")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// AccountStore defines the storage interface for accounts.
type AccountStore interface {
	GetAccountByEmail(ctx context.Context, email string) (store.Account, error)
	GetAccountByID(ctx context.Context, id string) (store.Account, error)
	CreateAccount(ctx context.Context, account store.Account) error
}

type Service struct {
	store AccountStore
	cost  int
}

func NewService(accounts AccountStore) *Service {
	return &Service{store: accounts, cost: bcrypt.DefaultCost}
}

// SignUpRequest contains sign-up parameters. An empty Party registers a
// read-only account (a mediator, for instance).
type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	Party       store.Party
}

// SignUp creates a new account. Accounts bound to a party get the parent
// role; the rest are viewers.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.DisplayName)
	if email == "" || req.Password == "" || name == "" {
		return store.Account{}, ErrMissingFields
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return store.Account{}, ErrInvalidEmail
	}
	if len(req.Password) < 8 {
		return store.Account{}, ErrWeakPassword
	}
	if req.Party != "" && !req.Party.Valid() {
		return store.Account{}, ErrInvalidParty
	}

	if _, err := s.store.GetAccountByEmail(ctx, email); err == nil {
		return store.Account{}, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.Account{}, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.Account{}, fmt.Errorf("hash password: %w", err)
	}

	role := "viewer"
	if req.Party != "" {
		role = "parent"
	}
	account := store.Account{
		ID:           util.NewID("acct"),
		Email:        email,
		DisplayName:  name,
		PasswordHash: string(hash),
		Party:        req.Party,
		Role:         role,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return store.Account{}, ErrEmailTaken
		}
		return store.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

type SignInRequest struct {
	Email    string
	Password string
}

// SignIn checks the password and returns the account. Unknown emails and bad
// passwords produce the same error.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return store.Account{}, ErrInvalidCredentials
	}
	account, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Account{}, ErrInvalidCredentials
		}
		return store.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return store.Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// Account loads an account by id, for refresh and session info.
func (s *Service) Account(ctx context.Context, id string) (store.Account, error) {
	return s.store.GetAccountByID(ctx, id)
}
