package auth

import (
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"certportal/apperr"
	"certportal/config"
	"certportal/db"
	"certportal/models"

	"github.com/gorilla/sessions"
)

var Store *sessions.CookieStore

func InitStore() {
	// Derive two 32-byte keys from the session key to ensure secure encryption
	// Auth key for signing (HMAC)
	authKey := sha256.Sum256([]byte(config.AppConfig.SessionKey + "auth"))
	// Encryption key for content encryption (AES)
	encKey := sha256.Sum256([]byte(config.AppConfig.SessionKey + "encryption"))

	Store = sessions.NewCookieStore(authKey[:], encKey[:])

	// Ensure cookie security settings
	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   config.AppConfig.ListenPort != 8080, // Default to true unless dev port
		SameSite: http.SameSiteLaxMode,
	}
}

const SessionName = "certportal-session"

func GetUsername(r *http.Request) string {
	session, _ := Store.Get(r, SessionName)
	if username, ok := session.Values["username"].(string); ok {
		return username
	}
	return ""
}

func GetRole(r *http.Request) models.Role {
	session, _ := Store.Get(r, SessionName)
	if role, ok := session.Values["role"].(string); ok {
		return models.Role(role)
	}
	return ""
}

func IsAdmin(r *http.Request) bool {
	return GetRole(r) == models.RoleAdmin
}

func SetSession(w http.ResponseWriter, r *http.Request, username string, role models.Role) {
	session, _ := Store.Get(r, SessionName)
	session.Values["username"] = username
	session.Values["role"] = string(role)
	session.Save(r, w)
}

func ClearSession(w http.ResponseWriter, r *http.Request) {
	session, _ := Store.Get(r, SessionName)
	session.Options.MaxAge = -1
	session.Save(r, w)
}

// ValidatePassword rejects passwords too weak to accept at sign-up.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", apperr.ErrValidation)
	}
	return nil
}

// LoginResult reports the outcome of a login attempt. On failure, Remaining
// holds the attempts left before lockout and LockedUntil the deadline once
// the limit is engaged.
type LoginResult struct {
	User        *models.User
	Remaining   int
	LockedUntil time.Time
}

// Service decides whether a login attempt is permitted and keeps the
// per-account failure bookkeeping. The guard is injected so its lifecycle
// and clock are owned by the caller.
type Service struct {
	db    *sql.DB
	guard *Guard
}

func NewService(database *sql.DB, guard *Guard) *Service {
	return &Service{db: database, guard: guard}
}

// AttemptLogin verifies the supplied password for the username.
//
// Unknown usernames return ErrNotFound without touching the failure counter.
// A locked-out account is refused before the password is checked and the
// counter is not incremented further. A correct password clears all failure
// state for the username.
func (s *Service) AttemptLogin(username, password string) (*LoginResult, error) {
	if locked, until := s.guard.Status(username); locked {
		return &LoginResult{LockedUntil: until}, apperr.ErrLockedOut
	}

	var user models.User
	err := s.db.QueryRow("SELECT id, username, password_hash, role FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		// Burn a bcrypt compare so timing does not reveal account existence.
		db.CheckPasswordHash(password, db.DummyHash)
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}

	if !db.CheckPasswordHash(password, user.PasswordHash) {
		remaining, until := s.guard.RecordFailure(username)
		return &LoginResult{Remaining: remaining, LockedUntil: until}, apperr.ErrAuthFailed
	}

	s.guard.Reset(username)
	return &LoginResult{User: &user}, nil
}
