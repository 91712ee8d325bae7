// Package authref is a reference onAuth implementation: validating a
// bearer JWT and turning its claims into the authData an Actor Instance's
// hooks receive (spec §3's onAuth contract). It is grounded on the
// teacher's internal/auth/jwt.go JWTManager (RS256, short-lived access
// tokens) but trimmed to verification only — token issuance/refresh is an
// application concern the spec deliberately keeps out of the runtime
// ("framework-specific bindings for auth providers ... are surface, not
// core").
package authref

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/statedge/actorhost/actor"
	"github.com/statedge/actorhost/errorkind"
)

var (
	// ErrTokenExpired is returned when the token parses correctly but its
	// exp claim has passed.
	ErrTokenExpired = errors.New("authref: token expired")
	// ErrTokenInvalid covers every other validation failure: bad
	// signature, wrong algorithm, malformed claims.
	ErrTokenInvalid = errors.New("authref: token invalid")
)

// Claims is the minimal claim set this reference implementation expects.
// An application building its own onAuth will usually want its own
// claims type; this one exists to give the hook something concrete to
// return as authData.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Role   string `json:"role"`
}

// Verifier validates RS256-signed bearer tokens against a fixed public
// key. It has no issuance side — that lives in whatever application
// service actually logs users in.
type Verifier struct {
	publicKey *rsa.PublicKey
	issuer    string
}

// NewVerifier builds a Verifier from an already-parsed RSA public key.
func NewVerifier(publicKey *rsa.PublicKey, issuer string) *Verifier {
	return &Verifier{publicKey: publicKey, issuer: issuer}
}

// Validate parses and verifies tokenString, returning its Claims.
func (v *Verifier) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("authref: unexpected signing method: %v", t.Header["alg"])
			}
			return v.publicKey, nil
		},
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// OnAuth adapts Validate into the actor.Hooks.OnAuth shape: extract the
// bearer token from the Authorization header (or, failing that, from the
// token query parameter; params is not consulted), reject with
// errorkind.Unauthorized on any failure, and hand back the claims as
// authData for onCreate/onConnect to read out of ActionContext.
func (v *Verifier) OnAuth(ctx context.Context, r *http.Request, params any, intents []actor.Intent) (any, error) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		return nil, errorkind.New(errorkind.Unauthorized, "missing bearer token")
	}
	claims, err := v.Validate(tokenString)
	if err != nil {
		return nil, errorkind.New(errorkind.Unauthorized, err.Error())
	}
	return claims, nil
}

func bearerToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return r.URL.Query().Get("token")
}
