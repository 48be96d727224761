// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/pret/core/logger"
)

// CookieName is the name of the cookie which may carry the access token
const CookieName = "Pret-JWT"

// ErrInvalidToken is returned for tokens which cannot be verified
var ErrInvalidToken = errors.New("invalid token")

// Claims are the claims of an access token. The subject is the user ID.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Valid is called by the jwt parser. Time based claims are checked by
// TokenIssuer.Verify against its own clock.
func (c Claims) Valid() error {
	return nil
}

// TokenIssuer issues and verifies HS256 signed access tokens
type TokenIssuer struct {
	Secret    []byte
	Issuer    string
	ExpiresIn time.Duration
	// Now is used for testing, defaults to time.Now
	Now func() time.Time
}

func (t *TokenIssuer) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Issue returns a signed access token for the user
func (t *TokenIssuer) Issue(userID uuid.UUID, email string) (string, error) {
	now := t.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID.String(),
			Issuer:   t.Issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if t.ExpiresIn > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.ExpiresIn))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}

// Verify parses and verifies a token. It returns ErrInvalidToken if the
// signature, the issuer or the expiry do not check out.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.Secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if t.Issuer != "" && claims.Issuer != t.Issuer {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(t.now()) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// UserID returns the user ID from the subject claim
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// JwtMiddlewareBuilder is a helper builder for JwtMiddelware
type JwtMiddlewareBuilder struct {
	// Issuer verifies the tokens
	Issuer *TokenIssuer
	// Lookup returns the current authorization for a user ID, or nil if
	// the user does not exist
	Lookup func(ctx context.Context, userID uuid.UUID) (*Authorization, error)
	// Cache caches authorizations per token. Optional.
	Cache *AuthorizationCache
}

// NewJwtMiddelware returns a middleware handler to validate
// JWT bearer token.
//
// Java-Web-Token (JWT) are accepted as "Authorization: Bearer"
// header or as "Pret-JWT"-cookie.
//
// This is a final handler with regards to the bearer token. It will return
// http.StatusUnauthorized when a token is available but insufficent to
// authorize the request. Requests without token are passed on unauthorized.
func NewJwtMiddelware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {
	if jmb.Issuer == nil || jmb.Lookup == nil {
		panic("jwt middleware needs an issuer and a lookup")
	}
	authCache := jmb.Cache
	if authCache == nil {
		authCache = NewAuthorizationCache()
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if AuthorizationFromContext(r.Context()) != nil { // we are already authorized
				h.ServeHTTP(w, r)
				return
			}

			tokenString := TokenFromRequest(r)
			if len(tokenString) == 0 {
				h.ServeHTTP(w, r) // no token no auth, moving on
				return
			}

			rlog := logger.FromContext(r.Context())

			claims, err := jmb.Issuer.Verify(tokenString)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			// look up authorization for the token. We do this by tokenString, and not
			// by identity, so the frontend can enforce a new lookup with a new token.
			auth := authCache.Read(tokenString)
			if auth == nil {
				auth, err = jmb.Lookup(r.Context(), userID)
				if err != nil {
					rlog.WithError(err).Errorln("Error 4723: cannot look up authorization")
					http.Error(w, "Error 4723", http.StatusInternalServerError)
					return
				}
				if auth == nil {
					http.Error(w, "unknown user", http.StatusUnauthorized)
					return
				}
				authCache.Write(tokenString, auth)
			}

			ctx := ContextWithAuthorization(r.Context(), auth)
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, auth.Identity)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest extracts the bearer token from the Authorization header
// or the Pret-JWT cookie
func TokenFromRequest(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if len(bearer) > 0 && bearer != "null" {
		if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
			return bearer[7:]
		}
		return bearer
	}
	if cookie, _ := r.Cookie(CookieName); cookie != nil {
		return cookie.Value
	}
	return ""
}
