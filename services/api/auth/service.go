// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package auth implements email login, registration, email verification and
password reset.

Verification and reset tokens are 7 digit numbers. Each pending token is
stored twice, once by email for the resend cool-down and once by token for
the lookup:

	verification:{email} -> token
	verification-token:{token} -> email
	reset:{email} -> token
	reset-token:{token} -> email
*/
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/relabs-tech/pret/core/access"
	"github.com/relabs-tech/pret/core/logger"
	"github.com/relabs-tech/pret/core/response"
	"github.com/relabs-tech/pret/services/api/config"
	"github.com/relabs-tech/pret/services/api/mailer"
	"github.com/relabs-tech/pret/services/api/user"
)

// Messages
const (
	MessageUserNotFound             = "LOGIN.USER_NOT_FOUND"
	MessageLoginError               = "LOGIN.ERROR"
	MessageEmailNotVerified         = "LOGIN.EMAIL_NOT_VERIFIED"
	MessageEmailSentRecently        = "LOGIN.EMAIL_SENT_RECENTLY"
	MessageEmailAlreadyVerified     = "LOGIN.EMAIL_ALREADY_VERIFIED"
	MessageVerificationTokenInvalid = "LOGIN.EMAIL_VERIFICATION_TOKEN_NOT_VALID"
	MessageVerificationEmailInvalid = "LOGIN.EMAIL_VERIFICATION_EMAIL_NOT_VALID"
	MessageResetSentRecently        = "RESET_PASSWORD.EMAIL_SENT_RECENTLY"
	MessageResetNotFound            = "RESET_PASSWORD.REQUEST_NOT_FOUND"
	MessageResetExpired             = "RESET_PASSWORD.LINK_EXPIRED"
	MessageResetUserNotFound        = "RESET_PASSWORD.USER_NOT_FOUND"
	MessageResetUnauthorized        = "RESET_PASSWORD.UNAUTHORIZED"
	MessagePasswordNotChanged       = "RESET_PASSWORD.PASSWORD_NOT_CHANGED"
	MessageResetSuccess             = "RESET_PASSWORD.SUCCESS"

	MessageVerifyToProceed = "REGISTRATION.SUCCESS.VERIFY_EMAIL_TO_PROCEED"
	MessageAutoLogin       = "REGISTRATION.SUCCESS.AUTO_LOGIN"
	MessageSwitchedToLogin = "USER.ALREADY_EXISTS.AUTO_SWITCHED_TO_LOGIN"
	MessageEmailVerified   = "USER.EMAIL_VERIFIED"
	MessageResent          = "USER.VERIFICATION_EMAIL_RESENT"
	MessageForgotSent      = "USER.FORGOT_PASSWORD_EMAIL_SENT"
)

// Token timing
const (
	ResendCooldown = 15 * time.Minute
	ResetExpiry    = 20 * time.Minute
)

// LoginResponse is returned by a successful login
type LoginResponse struct {
	AccessToken string     `json:"access_token"`
	User        *user.User `json:"user"`
}

// Service implements the authentication flows
type Service struct {
	users        *user.Service
	issuer       *access.TokenIssuer
	tokens       Store
	mailer       mailer.Mailer
	verification config.EmailVerification
	url          string
	now          func() time.Time
	newToken     func() (string, error)
}

// ServiceBuilder is a builder helper for the auth service
type ServiceBuilder struct {
	// Users is mandatory
	Users *user.Service
	// Issuer is mandatory
	Issuer *access.TokenIssuer
	// Tokens stores pending verification and reset tokens. Mandatory.
	Tokens Store
	// Mailer defaults to mailer.Log
	Mailer mailer.Mailer
	// EmailVerification defaults to config.VerificationOptional
	EmailVerification config.EmailVerification
	// URL is the base of links in emails
	URL string
	// Now is used for testing, defaults to time.Now
	Now func() time.Time
}

// NewService creates an auth service
func NewService(b *ServiceBuilder) *Service {
	if b.Users == nil || b.Issuer == nil || b.Tokens == nil {
		panic("auth service needs users, issuer and tokens")
	}
	s := &Service{
		users:        b.Users,
		issuer:       b.Issuer,
		tokens:       b.Tokens,
		mailer:       b.Mailer,
		verification: b.EmailVerification,
		url:          strings.TrimSuffix(b.URL, "/"),
		now:          b.Now,
		newToken:     newToken,
	}
	if s.mailer == nil {
		s.mailer = mailer.Log{}
	}
	if s.verification == "" {
		s.verification = config.VerificationOptional
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// EmailVerification returns the verification mode
func (s *Service) EmailVerification() config.EmailVerification {
	return s.verification
}

// newToken returns a random 7 digit number
func newToken() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+1000000), nil
}

func statusCode(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// findRecord maps a missing user to a 404 with message
func (s *Service) findRecord(ctx context.Context, email, message string) (*user.Record, error) {
	rec, err := s.users.FindRecord(ctx, email)
	if err != nil && statusCode(err) == http.StatusNotFound {
		return nil, response.NotFound(message)
	}
	return rec, err
}

// Login checks the password and issues an access token
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	rec, err := s.findRecord(ctx, email, MessageUserNotFound)
	if err != nil {
		return nil, err
	}
	if !s.users.CheckPassword(rec, password) {
		return nil, response.Unauthorized(MessageLoginError)
	}
	if s.verification == config.VerificationRequired && !rec.Verified() {
		return nil, response.Forbidden(MessageEmailNotVerified)
	}
	token, err := s.issuer.Issue(rec.ID, rec.Email)
	if err != nil {
		return nil, response.Internal(err)
	}
	logger.FromContext(ctx).WithField("user_id", rec.ID).Debugln("login", rec.Email)
	return &LoginResponse{AccessToken: token, User: &rec.User}, nil
}

// Register creates a user and sends a verification email unless
// verification is off. It returns the value to send and its message: an
// empty object if verification is required, a login response otherwise. A
// registration with an existing email and its correct password turns into a
// login.
func (s *Service) Register(ctx context.Context, req *user.CreateRequest) (interface{}, string, error) {
	created, err := s.users.Create(ctx, req)
	if err != nil {
		if errors.Is(err, user.ErrEmailAlreadyRegistered) {
			if login, lerr := s.Login(ctx, req.Email, req.Password); lerr == nil {
				return login, MessageSwitchedToLogin, nil
			}
		}
		return nil, "", err
	}
	if s.verification != config.VerificationOff {
		if err = s.SendEmailVerification(ctx, created.Email); err != nil {
			return nil, "", err
		}
	}
	if s.verification == config.VerificationRequired {
		return map[string]interface{}{}, MessageVerifyToProceed, nil
	}
	login, err := s.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, "", err
	}
	return login, MessageAutoLogin, nil
}

// createToken stores a new token for email under kind, unless one was
// created within the cool-down
func (s *Service) createToken(ctx context.Context, kind, email, recently string) (string, error) {
	var previous string
	timestamp, err := s.tokens.Read(ctx, kind+":"+email, &previous)
	if err != nil {
		return "", response.Internal(err)
	}
	if !timestamp.IsZero() && s.now().Sub(timestamp) < ResendCooldown {
		return "", response.TooManyRequests(recently)
	}
	token, err := s.newToken()
	if err != nil {
		return "", response.Internal(err)
	}
	if previous != "" {
		if err = s.tokens.Delete(ctx, kind+"-token:"+previous); err != nil {
			return "", response.Internal(err)
		}
	}
	if err = s.tokens.Write(ctx, kind+"-token:"+token, email); err != nil {
		return "", response.Internal(err)
	}
	if err = s.tokens.Write(ctx, kind+":"+email, token); err != nil {
		return "", response.Internal(err)
	}
	return token, nil
}

func (s *Service) deleteToken(ctx context.Context, kind, email, token string) error {
	if err := s.tokens.Delete(ctx, kind+"-token:"+token); err != nil {
		return response.Internal(err)
	}
	if err := s.tokens.Delete(ctx, kind+":"+email); err != nil {
		return response.Internal(err)
	}
	return nil
}

func (s *Service) send(ctx context.Context, m mailer.Message) error {
	if err := s.mailer.Send(ctx, m); err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("cannot send", m.Subject, "to", m.To)
		return response.Internal(err)
	}
	return nil
}

// SendEmailVerification sends a verification link to a registered,
// unverified email
func (s *Service) SendEmailVerification(ctx context.Context, email string) error {
	rec, err := s.findRecord(ctx, email, MessageUserNotFound)
	if err != nil {
		return err
	}
	if rec.Verified() {
		return response.Forbidden(MessageEmailAlreadyVerified)
	}
	token, err := s.createToken(ctx, "verification", rec.Email, MessageEmailSentRecently)
	if err != nil {
		return err
	}
	link := s.url + "/auth/email/verify/" + token
	return s.send(ctx, mailer.Message{
		To:      rec.Email,
		Subject: "Verify Email",
		Text:    "Thanks for your registration. Verify your email address with " + link,
		HTML:    `Hi! <br><br> Thanks for your registration<br><br><a href="` + link + `">Click here to activate your account</a>`,
	})
}

// VerifyEmail marks the email of the token as verified
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	var email string
	timestamp, err := s.tokens.Read(ctx, "verification-token:"+token, &email)
	if err != nil {
		return response.Internal(err)
	}
	if timestamp.IsZero() || email == "" {
		return response.Forbidden(MessageVerificationTokenInvalid)
	}
	verified, err := s.users.VerifyEmail(ctx, email)
	if err != nil {
		return err
	}
	if !verified {
		return response.Forbidden(MessageVerificationEmailInvalid)
	}
	return s.deleteToken(ctx, "verification", email, token)
}

// SendForgotPassword sends a password reset token to a registered email
func (s *Service) SendForgotPassword(ctx context.Context, email string) error {
	rec, err := s.findRecord(ctx, email, MessageUserNotFound)
	if err != nil {
		return err
	}
	token, err := s.createToken(ctx, "reset", rec.Email, MessageResetSentRecently)
	if err != nil {
		return err
	}
	link := s.url + "/auth/email/reset-password/" + token
	return s.send(ctx, mailer.Message{
		To:      rec.Email,
		Subject: "Forgotten Password",
		Text:    "Your password reset code is " + token,
		HTML:    `Hi! <br><br> If you requested to reset your password<br><br><a href="` + link + `">Click here</a>`,
	})
}

// ResetPasswordFromToken sets a new password with a reset token. The token
// proves ownership of the email, so the email is verified as well.
func (s *Service) ResetPasswordFromToken(ctx context.Context, token, password string) error {
	var email string
	timestamp, err := s.tokens.Read(ctx, "reset-token:"+token, &email)
	if err != nil {
		return response.Internal(err)
	}
	if timestamp.IsZero() || email == "" {
		return response.NotFound(MessageResetNotFound)
	}
	if _, err = s.users.VerifyEmail(ctx, email); err != nil {
		return err
	}
	if s.now().Sub(timestamp) > ResetExpiry {
		return response.Gone(MessageResetExpired)
	}
	if err = s.users.SetPassword(ctx, email, password); err != nil {
		return err
	}
	return s.deleteToken(ctx, "reset", email, token)
}

// ResetPasswordFromCurrentPassword sets a new password if the current one matches
func (s *Service) ResetPasswordFromCurrentPassword(ctx context.Context, email, current, password string) error {
	rec, err := s.findRecord(ctx, email, MessageResetUserNotFound)
	if err != nil {
		return err
	}
	if !s.users.CheckPassword(rec, current) {
		return response.Unauthorized(MessageResetUnauthorized)
	}
	return s.users.SetPassword(ctx, rec.Email, password)
}
