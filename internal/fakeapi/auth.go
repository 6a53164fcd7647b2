package fakeapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/middleware"
	"web-app-firewall-console/pkg/response"
	"web-app-firewall-console/pkg/validator"
)

const maxRequestBody = 1 << 20

// decodeJSON reads the request body into v, answering 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		response.BadRequest(w, "Invalid JSON")
		return false
	}
	return true
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req core.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	if err := validateRegistration(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	user, err := s.state.createUser(req.Name, req.Email, req.Password)
	if errors.Is(err, errDuplicate) {
		response.Conflict(w, "User with this email already exists")
		return
	}
	if err != nil {
		s.log.Error("failed to create user", logger.Err(err))
		response.InternalServerError(w, "Failed to create user")
		return
	}

	s.log.Info("user registered", logger.String("user_id", user.ID))
	response.Message(w, "User registered successfully", http.StatusCreated)
}

func validateRegistration(req core.RegisterRequest) error {
	if err := validator.Required(req.Name, "name"); err != nil {
		return err
	}
	if err := validator.Email(req.Email); err != nil {
		return err
	}
	if err := validator.Required(req.Password, "password"); err != nil {
		return err
	}
	return validator.MinLength(req.Password, 6, "password")
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req core.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)

	if err := validator.Email(req.Email); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if err := validator.Required(req.Password, "password"); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	user, ok := s.state.authenticate(req.Email, req.Password)
	if !ok {
		response.Unauthorized(w, "invalid email or password")
		return
	}

	now := s.now()
	token, err := middleware.IssueToken(s.secret, user.ID, user.Email, now)
	if err != nil {
		response.InternalServerError(w, "failed to generate token")
		return
	}
	http.SetCookie(w, s.sessionCookie(token, now.Add(middleware.SessionTTL)))

	response.Success(w, core.AuthResult{Message: "Login successful", User: &user}, "")
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	cookie := s.sessionCookie("", s.now().Add(-middleware.SessionTTL))
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
	response.Message(w, "Logged out", http.StatusOK)
}

func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	user, ok := s.state.userByID(userID)
	if !ok {
		response.NotFound(w, "User not found")
		return
	}
	response.Success(w, core.AuthCheck{Authenticated: true, User: &user}, "")
}

func (s *Server) sessionCookie(value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if s.secure {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}
