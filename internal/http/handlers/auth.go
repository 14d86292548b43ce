package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"server/internal/auth"
	"server/internal/domain"
)

const tokenTTL = 24 * time.Hour

type registerRequest struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}

type loginRequest struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type tokenResponse struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

type userDTO struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	PhoneNumber string   `json:"phone_number,omitempty"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	CountryCode string   `json:"country_code,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

func toUserDTO(u *domain.User) userDTO {
	return userDTO{
		ID:          u.ID,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		CountryCode: u.CountryCode,
		Latitude:    u.Latitude,
		Longitude:   u.Longitude,
		CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (a *App) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.Email == "" && req.PhoneNumber == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "email or phone_number required")
		return
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		a.error(w, http.StatusBadRequest, "bad_request", "valid email required")
		return
	}
	if len(req.Password) < 8 {
		a.error(w, http.StatusBadRequest, "bad_request", "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.Logger.Error().Err(err).Msg("hash password failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to register")
		return
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PhoneNumber:  req.PhoneNumber,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		IPAddress:    clientIP(r),
		IsActive:     true,
	}
	a.enrichLocation(user)

	if err := a.Users.Create(r.Context(), user); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			a.error(w, http.StatusConflict, "conflict", "email or phone already registered")
			return
		}
		a.Logger.Error().Err(err).Msg("create user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to register")
		return
	}

	token, err := auth.Sign(a.Cfg.JWTSecret, user.ID, tokenTTL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign token failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	a.json(w, http.StatusCreated, tokenResponse{Token: token, User: toUserDTO(user)})
}

func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.Email == "" && req.PhoneNumber == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "email or phone_number required")
		return
	}

	var user *domain.User
	var err error
	if req.Email != "" {
		user, err = a.Users.GetByEmail(r.Context(), req.Email)
	} else {
		user, err = a.Users.GetByPhone(r.Context(), req.PhoneNumber)
	}
	if err != nil {
		// Same response for unknown account and wrong password.
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}
	if !user.IsActive {
		a.error(w, http.StatusForbidden, "forbidden", "account disabled")
		return
	}

	token, err := auth.Sign(a.Cfg.JWTSecret, user.ID, tokenTTL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign token failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	a.json(w, http.StatusOK, tokenResponse{Token: token, User: toUserDTO(user)})
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	a.json(w, http.StatusOK, toUserDTO(user))
}

type updateMeRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	PhoneNumber *string `json:"phone_number"`
}

// UpdateMe changes profile fields. Absent fields are left untouched.
func (a *App) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	if req.FirstName != nil {
		user.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		user.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*req.PhoneNumber)
	}
	if err := a.Users.Update(r.Context(), user); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			a.error(w, http.StatusConflict, "conflict", "phone already registered")
			return
		}
		a.Logger.Error().Err(err).Msg("update user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to update profile")
		return
	}
	a.json(w, http.StatusOK, toUserDTO(user))
}

func (a *App) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.NewPassword) < 8 {
		a.error(w, http.StatusBadRequest, "bad_request", "password must be at least 8 characters")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		a.error(w, http.StatusUnauthorized, "unauthorized", "current password is incorrect")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		a.Logger.Error().Err(err).Msg("hash password failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to change password")
		return
	}
	if err := a.Users.UpdatePassword(r.Context(), userID, string(hash)); err != nil {
		a.Logger.Error().Err(err).Msg("update password failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to change password")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// enrichLocation fills geo fields from the request IP on a best-effort basis.
func (a *App) enrichLocation(user *domain.User) {
	if a.Geo == nil || user.IPAddress == "" {
		return
	}
	loc, err := a.Geo.Lookup(user.IPAddress)
	if err != nil {
		a.Logger.Debug().Err(err).Str("ip", user.IPAddress).Msg("geoip lookup failed")
		return
	}
	if loc == nil {
		return
	}
	user.CountryCode = loc.CountryCode
	if loc.Latitude != 0 || loc.Longitude != 0 {
		lat, lng := loc.Latitude, loc.Longitude
		user.Latitude = &lat
		user.Longitude = &lng
	}
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
