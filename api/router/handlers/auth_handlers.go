package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iluobei/miaomiaowu-sub001/database"
	"github.com/iluobei/miaomiaowu-sub001/logger"
	"github.com/iluobei/miaomiaowu-sub001/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const authCookieName = "miaomiaowu_token"

type contextKey string

const contextKeyUser contextKey = "user"

var (
	jwtKey   []byte
	tokenTTL = 12 * time.Hour
)

// InitAuth wires the signing key and token lifetime used by LoginHandler and
// AuthMiddleware. Must be called before the router starts serving.
func InitAuth(key []byte, ttl time.Duration) {
	jwtKey = key
	if ttl > 0 {
		tokenTTL = ttl
	}
}

type panelClaims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserInfo identifies the authenticated panel account on a request context.
type UserInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// AuthMiddleware rejects requests without a valid session token. The token is
// read from the Authorization bearer header first, then the session cookie.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if cookie, err := r.Cookie(authCookieName); err == nil {
				token = cookie.Value
			}
		}
		if token == "" {
			http.Error(w, "Missing auth token", http.StatusUnauthorized)
			return
		}

		claims := &panelClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return jwtKey, nil
		})
		if err != nil || !parsed.Valid {
			http.Error(w, "Invalid auth token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyUser, &UserInfo{ID: claims.UserID, Username: claims.Username})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func userFromContext(ctx context.Context) (*UserInfo, bool) {
	user, ok := ctx.Value(contextKeyUser).(*UserInfo)
	return user, ok
}

// LoginHandler verifies panel credentials and issues a signed session token.
// @Summary Log in
// @Description Verifies username and password and returns a JWT, also set as an HttpOnly cookie.
// @Tags Auth
// @Accept json
// @Produce json
// @Param login_request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse "Invalid request payload"
// @Failure 401 {object} models.ErrorResponse "Invalid username or password"
// @Router /auth/login [post]
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("LoginHandler: Error decoding request body: %v", err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := database.GetUserByUsername(req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logger.Info("LoginHandler: Login attempt for unknown user '%s'", req.Username)
			http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		} else {
			logger.Error("LoginHandler: Error fetching user '%s': %v", req.Username, err)
			http.Error(w, "Failed to verify credentials", http.StatusInternalServerError)
		}
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		logger.Info("LoginHandler: Wrong password for user '%s'", req.Username)
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	expiresAt := time.Now().Add(tokenTTL)
	claims := panelClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   strconv.FormatInt(user.ID, 10),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtKey)
	if err != nil {
		logger.Error("LoginHandler: Error signing token for user '%s': %v", user.Username, err)
		http.Error(w, "Failed to create session token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    signed,
		HttpOnly: true,
		Path:     "/",
		Expires:  expiresAt,
	})

	logger.Info("User '%s' logged in.", user.Username)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.LoginResponse{Token: signed, ExpiresAt: expiresAt, Username: user.Username})
}

// LogoutHandler clears the session cookie. Bearer tokens simply expire.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.MessageResponse{Message: "Logged out."})
}

// MeHandler returns the account behind the current session token.
func MeHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// ChangePasswordHandler updates the current user's password after verifying
// the old one.
// @Summary Change password
// @Description Verifies the old password and stores a bcrypt hash of the new one.
// @Tags Auth
// @Accept json
// @Produce json
// @Param change_request body models.ChangePasswordRequest true "Old and new password"
// @Success 200 {object} models.MessageResponse
// @Failure 400 {object} models.ErrorResponse "New password too short"
// @Failure 401 {object} models.ErrorResponse "Old password is incorrect"
// @Router /auth/change-password [post]
func ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("ChangePasswordHandler: Error decoding request body: %v", err)
		http.Error(w, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(req.NewPassword) < 6 {
		http.Error(w, "New password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	account, err := database.GetUserByUsername(user.Username)
	if err != nil {
		logger.Error("ChangePasswordHandler: Error fetching user '%s': %v", user.Username, err)
		http.Error(w, "Failed to verify current password", http.StatusInternalServerError)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.OldPassword)); err != nil {
		http.Error(w, "Old password is incorrect", http.StatusUnauthorized)
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("ChangePasswordHandler: Error hashing new password for user '%s': %v", user.Username, err)
		http.Error(w, "Failed to hash new password", http.StatusInternalServerError)
		return
	}
	if err := database.UpdateUserPassword(account.ID, string(newHash)); err != nil {
		logger.Error("ChangePasswordHandler: Error updating password for user '%s': %v", user.Username, err)
		http.Error(w, "Failed to update password", http.StatusInternalServerError)
		return
	}

	logger.Info("User '%s' changed their password.", user.Username)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.MessageResponse{Message: "Password updated successfully."})
}
