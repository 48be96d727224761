// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package user

import (
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/pret/core/access"
	"github.com/relabs-tech/pret/core/serializer"
)

// Subject is the access control subject of users
const Subject = "user"

// User is the user as returned to clients
type User struct {
	ID        uuid.UUID  `json:"id"`
	Email     string     `json:"email"`
	Date      time.Time  `json:"date"`
	Name      string     `json:"name,omitempty"`
	Surname   string     `json:"surname,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Birthdate *time.Time `json:"birthdate,omitempty"`
	Roles     []string   `json:"roles"`
	Auth      Auth       `json:"auth"`
	Settings  Settings   `json:"settings"`
	Version   int        `json:"v"`
}

// VisibilityRules hides personal and account data from non-admins
func (User) VisibilityRules() serializer.Rules {
	return serializer.Rules{
		"birthdate": serializer.Roles(access.RoleAdmin),
		"roles":     serializer.Roles(access.RoleAdmin),
		"auth":      serializer.Roles(access.RoleAdmin),
		"v":         serializer.Roles(access.RoleAdmin),
	}
}

// Verified returns true if the email address was verified
func (u *User) Verified() bool {
	return u.Auth.Email != nil && u.Auth.Email.Valid
}

// HasRole returns true if the user has the role
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Auth holds the state of the user's login methods
type Auth struct {
	Email    *EmailAuth    `json:"email,omitempty"`
	Facebook *ProviderAuth `json:"facebook,omitempty"`
	Gmail    *ProviderAuth `json:"gmail,omitempty"`
}

// VisibilityRules hides the social login accounts from non-admins
func (Auth) VisibilityRules() serializer.Rules {
	return serializer.Rules{
		"facebook": serializer.Roles(access.RoleAdmin),
		"gmail":    serializer.Roles(access.RoleAdmin),
	}
}

// EmailAuth is the email login state
type EmailAuth struct {
	Valid bool `json:"valid"`
}

// ProviderAuth links a social login account
type ProviderAuth struct {
	UserID string `json:"userid"`
}

// Notification channels
const (
	NotifyEmail = "email"
	NotifyPush  = "push"
	NotifyNone  = "none"
)

// Settings are the user's preferences
type Settings struct {
	Notifications NotificationSettings `json:"notifications"`
	UI            UISettings           `json:"ui"`
}

// NotificationSettings selects the channel per notification type
type NotificationSettings struct {
	General       string `json:"general"`
	WeeklySummary string `json:"weeklySummary"`
	Promotions    string `json:"promotions"`
}

// UISettings are the user interface preferences
type UISettings struct {
	ColorScheme   string `json:"colorScheme"`
	ReducedMotion bool   `json:"reducedMotion"`
}

// DefaultSettings returns the settings of a new user
func DefaultSettings() Settings {
	return Settings{
		Notifications: NotificationSettings{General: NotifyEmail, WeeklySummary: NotifyEmail, Promotions: NotifyEmail},
		UI:            UISettings{ColorScheme: "auto"},
	}
}

// Record is the stored user including the password hash. It must never be
// returned from a handler; use its User instead.
type Record struct {
	User
	PasswordHash string `json:"password"`
}

// RawDocument marks the record as persistence document
func (Record) RawDocument() {}

// CreateRequest is the body of a user creation or registration
type CreateRequest struct {
	Email     string     `json:"email"`
	Password  string     `json:"password"`
	Name      *string    `json:"name,omitempty"`
	Surname   *string    `json:"surname,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Birthdate *time.Time `json:"birthdate,omitempty"`
}

// UpdateRequest is the body of a partial user update. Email and password
// cannot be changed this way.
type UpdateRequest struct {
	Name      *string    `json:"name,omitempty"`
	Surname   *string    `json:"surname,omitempty"`
	Phone     *string    `json:"phone,omitempty"`
	Birthdate *time.Time `json:"birthdate,omitempty"`
	Settings  *Settings  `json:"settings,omitempty"`
	Roles     *[]string  `json:"roles,omitempty"`
}

// IsEmail returns true if s is a bare email address
func IsEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && addr.Name == ""
}

// ParseIDOrEmail accepts an email address or a user ID
func ParseIDOrEmail(s string) (id uuid.UUID, email string, ok bool) {
	if IsEmail(s) {
		return uuid.Nil, s, true
	}
	if id, err := uuid.Parse(s); err == nil && len(s) == 36 {
		return id, "", true
	}
	return uuid.Nil, "", false
}
