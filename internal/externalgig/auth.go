package externalgig

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for a missing or wrong credential.
var ErrUnauthorized = errors.New("invalid or missing API key")

// Authenticator checks the pre-shared key presented by trusted producers.
//
// Accepted credentials: the key itself ("X-API-Key: <key>" or
// "Authorization: Bearer <key>"), or an HS256 JWT signed with the key
// ("Authorization: Bearer <jwt>").
type Authenticator struct {
	key []byte
}

// NewAuthenticator returns an Authenticator for key. An empty key rejects
// everything.
func NewAuthenticator(key string) *Authenticator {
	return &Authenticator{key: []byte(key)}
}

// Check validates one credential.
func (a *Authenticator) Check(credential string) error {
	if len(a.key) == 0 || credential == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(credential), a.key) == 1 {
		return nil
	}
	if strings.Count(credential, ".") == 2 && a.validJWT(credential) {
		return nil
	}
	return ErrUnauthorized
}

func (a *Authenticator) validJWT(token string) bool {
	parsed, err := jwt.Parse(token,
		func(*jwt.Token) (any, error) { return a.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	return err == nil && parsed.Valid
}

// CredentialFromRequest extracts the credential from X-API-Key or from a
// Bearer Authorization header.
func CredentialFromRequest(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// Middleware rejects unauthenticated requests with 401 before next runs.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Check(CredentialFromRequest(r)); err != nil {
			jsonError(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
