// Package rfbadmin exposes a small JWT-protected HTTP API mirroring
// cmd/rfbd's interactive "status"/"clients" commands. There is exactly
// one operator account, configured at startup.
package rfbadmin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rjsadow/rfbd/internal/rfb"
)

// Claims is the JWT payload issued on a successful login.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// ServerStats is what the admin API and the interactive CLI both report.
type ServerStats struct {
	Width, Height int
	SessionCount  int
	Sessions      []rfb.SessionInfo
}

// StatsProvider is implemented by *rfb.Server; kept as an interface so
// handlers can be tested without a live listener.
type StatsProvider interface {
	Dimensions() (int, int)
	Sessions() []rfb.SessionInfo
}

// API is the admin HTTP surface.
type API struct {
	username     string
	passwordHash string
	jwtSecret    []byte
	tokenExpiry  time.Duration
	server       StatsProvider
	logger       *slog.Logger
}

// Config configures the admin API's single operator account.
type Config struct {
	Username     string
	PasswordHash string // bcrypt hash, see HashPassword
	JWTSecret    string // must be >= 32 bytes
	TokenExpiry  time.Duration
}

// New builds an API bound to server. Returns an error if the JWT secret is
// too short, mirroring JWTAuthProvider.Initialize's fail-fast check.
func New(cfg Config, server StatsProvider, logger *slog.Logger) (*API, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("rfbadmin: jwt secret must be at least 32 characters")
	}
	if logger == nil {
		logger = slog.Default()
	}
	expiry := cfg.TokenExpiry
	if expiry == 0 {
		expiry = 15 * time.Minute
	}
	return &API{
		username:     cfg.Username,
		passwordHash: cfg.PasswordHash,
		jwtSecret:    []byte(cfg.JWTSecret),
		tokenExpiry:  expiry,
		server:       server,
		logger:       logger,
	}, nil
}

// HashPassword bcrypt-hashes an operator password for use in Config.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Routes registers the admin API's handlers onto mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/login", a.handleLogin)
	mux.HandleFunc("GET /admin/status", a.requireAuth(a.handleStatus))
	mux.HandleFunc("GET /admin/clients", a.requireAuth(a.handleClients))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.Username != a.username {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(req.Password)); err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	expiresAt := time.Now().Add(a.tokenExpiry)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "rfbd-admin",
			Subject:   req.Username,
		},
		Username: req.Username,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
	if err != nil {
		a.logger.Error("rfbadmin: signing token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// requireAuth validates a "Bearer <token>" Authorization header before
// calling next, mirroring JWTAuthProvider.Authenticate's HMAC check.
func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			status := http.StatusUnauthorized
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			http.Error(w, msg, status)
			return
		}

		next(w, r)
	}
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	width, height := a.server.Dimensions()
	sessions := a.server.Sessions()
	writeJSON(w, http.StatusOK, ServerStats{
		Width:        width,
		Height:       height,
		SessionCount: len(sessions),
		Sessions:     sessions,
	})
}

func (a *API) handleClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.server.Sessions())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
