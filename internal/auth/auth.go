// Package auth implements the Auth Subsystem: single administrative
// password, Argon2 hash verification, and stateless HMAC-signed bearer
// tokens with a fixed expiry. The Service/Handlers shape is familiar
// from a typical session-auth package, but the SQLite-backed multi-user
// session flow is replaced entirely — there is exactly one password and
// no session storage, so there is nothing for Login/Logout/ValidateSession
// to persist.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/argon2"

	"wgquickrs/internal/apperr"
	"wgquickrs/internal/helper"
	"wgquickrs/internal/router"
)

var (
	ErrInvalidCredentials = errors.New("invalid password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// TokenTTL is how long an issued bearer token remains valid.
const TokenTTL = 24 * time.Hour

// Service verifies the administrative password and mints/checks bearer
// tokens. signingKey is generated once per process start and never
// persisted, so restarting the agent invalidates every outstanding
// token.
type Service struct {
	passwordHash string // Argon2id-encoded hash, from Agent.Web.Password.Hash
	signingKey   []byte
}

// New creates a Service for the given Argon2-encoded password hash.
func New(passwordHash string) *Service {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return &Service{passwordHash: passwordHash, signingKey: key}
}

// Handlers returns the handler map for the router.
func (s *Service) Handlers() router.ServiceHandlers {
	return router.ServiceHandlers{
		"IssueToken": s.handleIssueToken,
	}
}

// Validator returns an AuthValidator bound to this Service, for
// router.SetAuthValidator.
func (s *Service) Validator() router.AuthValidator {
	return s.VerifyToken
}

// tokenClaims is the payload an issued token encodes.
type tokenClaims struct {
	ExpiresAt int64 `json:"exp"`
}

// IssueToken verifies password against the stored Argon2 hash and, on
// success, mints a signed bearer token valid for TokenTTL.
func (s *Service) IssueToken(password string) (token string, expiresAt time.Time, err error) {
	ok, err := verifyArgon2(s.passwordHash, password)
	if err != nil {
		return "", time.Time{}, apperr.Wrap(apperr.KindInternal, err, "verifying password")
	}
	if !ok {
		return "", time.Time{}, ErrInvalidCredentials
	}

	expiresAt = time.Now().Add(TokenTTL)
	claims := tokenClaims{ExpiresAt: expiresAt.Unix()}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	sig := s.sign(payload)

	token = base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(sig)
	return token, expiresAt, nil
}

// VerifyToken checks a bearer token's signature and expiry.
func (s *Service) VerifyToken(token string) bool {
	_, err := s.parseAndVerify(token)
	return err == nil
}

func (s *Service) parseAndVerify(token string) (tokenClaims, error) {
	var claims tokenClaims

	dot := -1
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return claims, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return claims, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(token[dot+1:])
	if err != nil {
		return claims, ErrInvalidToken
	}
	want := s.sign(payload)
	if subtle.ConstantTimeCompare(sig, want) != 1 {
		return claims, ErrInvalidToken
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return claims, ErrInvalidToken
	}
	if time.Now().Unix() > claims.ExpiresAt {
		return claims, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.signingKey)
	mac.Write(payload)
	return mac.Sum(nil)
}

// argon2 parameters for the platform-local verifier. Matches the
// encoding produced by the config tooling that writes
// Agent.Web.Password.Hash: "<salt-b64>$<hash-b64>" over argon2.IDKey
// with these fixed cost parameters.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

// HashPassword encodes password the same way verifyArgon2 expects to
// read it back; exposed for the CLI's password-set path.
func HashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return base64.RawStdEncoding.EncodeToString(salt) + "$" + base64.RawStdEncoding.EncodeToString(hash), nil
}

func verifyArgon2(encoded, password string) (bool, error) {
	parts := [2]string{}
	sep := -1
	for i, c := range encoded {
		if c == '$' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return false, fmt.Errorf("malformed password hash")
	}
	parts[0], parts[1] = encoded[:sep], encoded[sep+1:]

	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false, fmt.Errorf("malformed password hash salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("malformed password hash digest: %w", err)
	}
	got := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// HTTP handler

type issueTokenRequest struct {
	Password string `json:"password"`
}

type issueTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Service) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	ip := getClientIP(r)
	if locked, remaining := checkLoginRateLimit(ip); locked {
		router.JSONError(w, fmt.Sprintf("too many attempts, retry in %s", remaining.Round(time.Second)), http.StatusTooManyRequests)
		return
	}

	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		router.JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	token, expiresAt, err := s.IssueToken(req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			if recordFailedLogin(ip) {
				router.JSONError(w, "too many attempts, try again later", http.StatusTooManyRequests)
				return
			}
			router.JSONError(w, "invalid password", http.StatusUnauthorized)
			return
		}
		router.JSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	clearLoginAttempts(ip)
	router.JSON(w, issueTokenResponse{Token: token, ExpiresAt: expiresAt.Format(time.RFC3339)})
}

// ExtractBearerToken re-exports helper's extractor for callers that only
// import auth.
func ExtractBearerToken(r *http.Request) string {
	return helper.ExtractBearerToken(r)
}
