package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

const DefaultDevUser = "dev-user"

// Browsers cannot set headers on a websocket handshake, so a client may offer
// the subprotocols WebSocketProtocol and BearerProtocolPrefix+token instead of
// an Authorization header. The server selects WebSocketProtocol.
const (
	WebSocketProtocol    = "neuroflow"
	BearerProtocolPrefix = "bearer."
)

type Claims struct {
	Subject string
	Email   string
	Token   string
}

type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// TokenUser is the identity a static bearer token resolves to.
type TokenUser struct {
	UserID string
	Email  string
}

// MultiAuthenticator accepts the dev token and any token from the static
// table. The dev token wins when both match.
type MultiAuthenticator struct {
	DevToken string
	DevUser  string
	Tokens   map[string]TokenUser
}

func NewAuthenticator(devToken, devUser string, tokens map[string]TokenUser) *MultiAuthenticator {
	if devUser == "" {
		devUser = DefaultDevUser
	}
	return &MultiAuthenticator{DevToken: devToken, DevUser: devUser, Tokens: tokens}
}

func (a *MultiAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	bearer, err := extractBearer(r)
	if err != nil {
		return Claims{}, err
	}

	if a.DevToken != "" && equal(bearer, a.DevToken) {
		user := a.DevUser
		if user == "" {
			user = DefaultDevUser
		}
		return Claims{Subject: user, Token: bearer}, nil
	}

	for token, user := range a.Tokens {
		if token != "" && user.UserID != "" && equal(bearer, token) {
			return Claims{Subject: user.UserID, Email: user.Email, Token: bearer}, nil
		}
	}

	return Claims{}, ErrInvalidToken
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		if token, ok := bearerFromSubprotocols(r); ok {
			return token, nil
		}
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}

func bearerFromSubprotocols(r *http.Request) (string, bool) {
	for _, header := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, proto := range strings.Split(header, ",") {
			proto = strings.TrimSpace(proto)
			if token, ok := strings.CutPrefix(proto, BearerProtocolPrefix); ok && token != "" {
				return token, true
			}
		}
	}
	return "", false
}
