package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/student-registry/internal/audit"
	"github.com/nerrad567/student-registry/internal/auth"
	"github.com/nerrad567/student-registry/internal/staff"
)

// updateRoleRequest carries the new role as a decimal string, e.g. "12".
type updateRoleRequest struct {
	Permissions string `json:"permissions"`
}

// handleListStaff returns all staff members. Requires Admin.
func (s *Server) handleListStaff(w http.ResponseWriter, r *http.Request) {
	members, err := s.staff.List(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"staff": members,
		"count": len(members),
	})
}

// handleGetStaff returns one profile to its owner or an Admin.
func (s *Server) handleGetStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	member, err := s.staff.Get(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// handleUpdateStaff edits username, email and optionally the password.
// The role is never changed here.
func (s *Server) handleUpdateStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req staff.UpdateInput
	if !decodeJSON(w, r, &req) {
		return
	}

	actorID := actorFromContext(r.Context())
	member, err := s.staff.Update(r.Context(), actorID, id, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(audit.ActionUpdate, audit.EntityStaff, id, actorID, map[string]any{
		"username":         member.Username,
		"password_changed": req.Password != "",
	})
	writeJSON(w, http.StatusOK, member)
}

// handleUpdateRole replaces another staff member's permissions. Requires
// Admin; an Admin cannot change their own role.
func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, err := auth.ParsePermissions(req.Permissions)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	actorID := actorFromContext(r.Context())
	member, err := s.auth.UpdateRole(r.Context(), actorID, id, role)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(audit.ActionRoleUpdate, audit.EntityStaff, id, actorID, map[string]any{
		"role": role.String(),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "role updated",
		"staff":   member,
	})
}

// handleDeleteStaff removes a staff member. With ?reassign_to=ID their
// students move to that staff member; otherwise they are deleted too.
func (s *Server) handleDeleteStaff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var reassignTo int64
	if v := r.URL.Query().Get("reassign_to"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeBadRequest(w, "reassign_to must be a positive integer")
			return
		}
		reassignTo = n
	}

	actorID := actorFromContext(r.Context())
	member, affected, err := s.staff.Delete(r.Context(), actorID, id, reassignTo)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	details := map[string]any{
		"username":          member.Username,
		"students_affected": affected,
	}
	if reassignTo > 0 {
		details["reassigned_to"] = reassignTo
	}
	s.auditLog(audit.ActionDelete, audit.EntityStaff, id, actorID, details)

	resp := map[string]any{
		"message": "staff member deleted",
		"staff":   member,
	}
	if reassignTo > 0 {
		resp["students_reassigned"] = affected
	} else {
		resp["students_deleted"] = affected
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStaffStudents returns a staff member with the students they own,
// to that member or a Manager.
func (s *Server) handleStaffStudents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := s.staff.WithStudents(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
