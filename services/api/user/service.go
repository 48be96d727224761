// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/relabs-tech/pret/core/access"
	"github.com/relabs-tech/pret/core/logger"
	"github.com/relabs-tech/pret/core/pointers"
	"github.com/relabs-tech/pret/core/response"
)

// Error messages
const (
	MessageNotFound               = "USER.NOT_FOUND"
	MessageInvalidEmailOrID       = "USER.INVALID_EMAIL_OR_ID"
	MessageEmailAlreadyRegistered = "REGISTRATION.EMAIL_ALREADY_REGISTERED"
	MessageRolesRequireAdmin      = "USER.ROLES_REQUIRE_ADMIN"
)

// ErrEmailAlreadyRegistered is returned by Create for a taken email address
var ErrEmailAlreadyRegistered = response.Conflict(MessageEmailAlreadyRegistered)

// Service implements the user operations on top of a store
type Service struct {
	store Store
	cost  int
	cache *access.AuthorizationCache
	now   func() time.Time
}

// ServiceBuilder is a builder helper for the user service
type ServiceBuilder struct {
	// Store is mandatory
	Store Store
	// Cost is the bcrypt cost, defaults to bcrypt.DefaultCost
	Cost int
	// Cache is evicted when a user changes. Optional.
	Cache *access.AuthorizationCache
	// Now is used for testing, defaults to time.Now
	Now func() time.Time
}

// NewService creates a user service
func NewService(b *ServiceBuilder) *Service {
	if b.Store == nil {
		panic("Store is missing")
	}
	s := &Service{store: b.Store, cost: b.Cost, cache: b.Cache, now: b.Now}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) storeError(ctx context.Context, err error) error {
	if errors.Is(err, ErrNotFound) {
		return response.NotFound(MessageNotFound)
	}
	logger.FromContext(ctx).WithError(err).Errorln("user store failed")
	return response.Internal(err)
}

// List returns one page of users and the number of all matching users
func (s *Service) List(ctx context.Context, q ListQuery) ([]User, int, error) {
	records, count, err := s.store.List(ctx, q)
	if err != nil {
		return nil, 0, s.storeError(ctx, err)
	}
	users := make([]User, len(records))
	for i := range records {
		users[i] = records[i].User
	}
	return users, count, nil
}

// FindRecord returns the stored record including the password hash. It is
// meant for the auth service and must not be returned to clients.
func (s *Service) FindRecord(ctx context.Context, idOrEmail string) (*Record, error) {
	id, email, ok := ParseIDOrEmail(idOrEmail)
	if !ok {
		return nil, response.BadRequest(MessageInvalidEmailOrID)
	}
	var (
		rec *Record
		err error
	)
	if email != "" {
		rec, err = s.store.FindByEmail(ctx, email)
	} else {
		rec, err = s.store.FindByID(ctx, id)
	}
	if err != nil {
		return nil, s.storeError(ctx, err)
	}
	return rec, nil
}

// Find returns the user with the ID or email
func (s *Service) Find(ctx context.Context, idOrEmail string) (*User, error) {
	rec, err := s.FindRecord(ctx, idOrEmail)
	if err != nil {
		return nil, err
	}
	return &rec.User, nil
}

// Create creates a user with the role "user" and a hashed password
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*User, error) {
	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}
	rec := &Record{
		User: User{
			ID:        uuid.New(),
			Email:     req.Email,
			Date:      s.now().UTC(),
			Name:      pointers.SafeString(req.Name),
			Surname:   pointers.SafeString(req.Surname),
			Phone:     pointers.SafeString(req.Phone),
			Birthdate: req.Birthdate,
			Roles:     []string{access.RoleUser},
			Auth:      Auth{Email: &EmailAuth{}},
			Settings:  DefaultSettings(),
		},
		PasswordHash: hash,
	}
	if err = s.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, s.storeError(ctx, err)
	}
	logger.FromContext(ctx).WithField("user_id", rec.ID).Infoln("created user", rec.Email)
	return &rec.User, nil
}

// Update applies the fields of the request which are set
func (s *Service) Update(ctx context.Context, idOrEmail string, req *UpdateRequest) (*User, error) {
	rec, err := s.FindRecord(ctx, idOrEmail)
	if err != nil {
		return nil, err
	}
	pointers.Assign(&rec.Name, req.Name)
	pointers.Assign(&rec.Surname, req.Surname)
	pointers.Assign(&rec.Phone, req.Phone)
	pointers.Assign(&rec.Settings, req.Settings)
	pointers.Assign(&rec.Roles, req.Roles)
	if req.Birthdate != nil {
		rec.Birthdate = req.Birthdate
	}
	if err = s.save(ctx, rec); err != nil {
		return nil, err
	}
	return &rec.User, nil
}

// Delete deletes the user with the ID or email
func (s *Service) Delete(ctx context.Context, idOrEmail string) error {
	rec, err := s.FindRecord(ctx, idOrEmail)
	if err != nil {
		return err
	}
	if err = s.store.Delete(ctx, rec.ID); err != nil {
		return s.storeError(ctx, err)
	}
	s.evict(rec.ID)
	return nil
}

// VerifyEmail marks the email as verified. It returns false if there is no
// user with the email.
func (s *Service) VerifyEmail(ctx context.Context, email string) (bool, error) {
	rec, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.storeError(ctx, err)
	}
	if rec.Verified() {
		return true, nil
	}
	rec.Auth.Email = &EmailAuth{Valid: true}
	return true, s.save(ctx, rec)
}

// SetPassword replaces the password of the user with the email
func (s *Service) SetPassword(ctx context.Context, email, password string) error {
	rec, err := s.FindRecord(ctx, email)
	if err != nil {
		return err
	}
	if rec.PasswordHash, err = s.hash(password); err != nil {
		return err
	}
	return s.save(ctx, rec)
}

// CheckPassword returns true if the password matches the record
func (s *Service) CheckPassword(rec *Record, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) == nil
}

// Authorization returns the authorization of a user, or nil if the user does
// not exist. It is the lookup of the JWT middleware.
func (s *Service) Authorization(ctx context.Context, id uuid.UUID) (*access.Authorization, error) {
	rec, err := s.store.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &access.Authorization{
		UserID:   rec.ID,
		Identity: rec.Email,
		Roles:    append([]string(nil), rec.Roles...),
	}, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", response.BadRequest("REGISTRATION.PASSWORD_TOO_LONG")
		}
		return "", response.Internal(err)
	}
	return string(hash), nil
}

func (s *Service) save(ctx context.Context, rec *Record) error {
	if err := s.store.Update(ctx, rec); err != nil {
		return s.storeError(ctx, err)
	}
	s.evict(rec.ID)
	return nil
}

func (s *Service) evict(id uuid.UUID) {
	if s.cache != nil {
		s.cache.Evict(id)
	}
}

// Account is an account which must exist, for example the first admin
type Account struct {
	Email    string
	Password string
	Roles    []string
}

// EnsureAccounts creates the accounts which do not exist yet. Existing
// accounts are left untouched. Ensured accounts count as verified.
func (s *Service) EnsureAccounts(ctx context.Context, accounts ...Account) error {
	rlog := logger.FromContext(ctx)
	for _, account := range accounts {
		_, err := s.store.FindByEmail(ctx, account.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("cannot look up account %s: %w", account.Email, err)
		}
		hash, err := s.hash(account.Password)
		if err != nil {
			return fmt.Errorf("cannot hash password of account %s: %w", account.Email, err)
		}
		rec := &Record{
			User: User{
				ID:       uuid.New(),
				Email:    account.Email,
				Date:     s.now().UTC(),
				Roles:    append([]string(nil), account.Roles...),
				Auth:     Auth{Email: &EmailAuth{Valid: true}},
				Settings: DefaultSettings(),
			},
			PasswordHash: hash,
		}
		if err = s.store.Create(ctx, rec); err != nil && !errors.Is(err, ErrDuplicate) {
			return fmt.Errorf("cannot create account %s: %w", account.Email, err)
		}
		rlog.Infoln("created account", account.Email, "with roles", account.Roles)
	}
	return nil
}
