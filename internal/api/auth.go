package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/student-registry/internal/audit"
	"github.com/nerrad567/student-registry/internal/auth"
	"github.com/nerrad567/student-registry/internal/infrastructure/influxdb"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	Message     string      `json:"message"`
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	Staff       *auth.Staff `json:"staff"`
}

// handleRegister creates a staff member. Anyone may register; a token is
// only needed to request an explicit role, which requires Admin. The very
// first registrant becomes an administrator.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.Registration
	if !decodeJSON(w, r, &req) {
		return
	}

	actorID := actorFromContext(r.Context())
	member, err := s.auth.Register(r.Context(), actorID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(audit.ActionRegister, audit.EntityStaff, member.ID, actorID, map[string]any{
		"username": member.Username,
		"role":     member.Role.String(),
	})

	writeJSON(w, http.StatusCreated, member)
}

// handleLogin verifies credentials and issues a session token. Unknown
// email and wrong password produce the same 401 response.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "email and password are required")
		return
	}

	member, err := s.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.recordLogin(influxdb.LoginFailure, 0)
			s.auditLog(audit.ActionLoginFailed, audit.EntityStaff, 0, 0, map[string]any{
				"email": auth.NormalizeEmail(req.Email),
			})
		}
		s.writeServiceError(w, r, err)
		return
	}

	token, _, err := s.tokens.Issue(member)
	if err != nil {
		s.logger.Error("issuing token failed", "staff_id", member.ID, "error", err)
		writeInternalError(w, "failed to issue token")
		return
	}

	s.recordLogin(influxdb.LoginSuccess, member.ID)
	s.auditLog(audit.ActionLogin, audit.EntityStaff, member.ID, member.ID, nil)

	writeJSON(w, http.StatusOK, loginResponse{
		Message:     "login successful",
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
		Staff:       member,
	})
}

// handleMe returns the authenticated staff member's own profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actorID := actorFromContext(r.Context())
	if actorID == auth.Unauthenticated {
		s.writeServiceError(w, r, auth.ErrUnauthenticated)
		return
	}

	member, err := s.staff.Get(r.Context(), actorID, actorID)
	if err != nil {
		if errors.Is(err, auth.ErrStaffNotFound) {
			// The token outlived its staff member.
			err = auth.ErrUnauthenticated
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) recordLogin(outcome string, staffID int64) {
	s.metrics.ObserveLogin(outcome)
	if s.logins != nil {
		s.logins.WriteLoginAttempt(outcome, staffID)
	}
}
