package api

import (
	"net/http"

	"github.com/nerrad567/student-registry/internal/audit"
	"github.com/nerrad567/student-registry/internal/student"
)

// reassignRequest is the body of PATCH /students/{id}/owner.
type reassignRequest struct {
	StaffID int64 `json:"staff_id"`
}

func (s *Server) writeStudents(w http.ResponseWriter, students []student.Student) {
	writeJSON(w, http.StatusOK, map[string]any{
		"students": students,
		"count":    len(students),
	})
}

// handleListStudents returns every student. Requires Manager.
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	list, err := s.students.List(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeStudents(w, list)
}

// handleListMyStudents returns the caller's own students.
func (s *Server) handleListMyStudents(w http.ResponseWriter, r *http.Request) {
	list, err := s.students.ListMine(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeStudents(w, list)
}

// handleCreateStudent stores a student owned by the caller. Requires Manager.
func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req student.Input
	if !decodeJSON(w, r, &req) {
		return
	}

	actorID := actorFromContext(r.Context())
	st, err := s.students.Create(r.Context(), actorID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(audit.ActionCreate, audit.EntityStudent, st.ID, actorID, map[string]any{
		"staff_id": st.StaffID,
	})
	writeJSON(w, http.StatusCreated, st)
}

// handleGetStudent returns a student to its owner or a Manager.
func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := s.students.Get(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleUpdateStudent edits a student on behalf of its owner or a Manager.
// Ownership is unchanged.
func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req student.Input
	if !decodeJSON(w, r, &req) {
		return
	}

	actorID := actorFromContext(r.Context())
	st, err := s.students.Update(r.Context(), actorID, id, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(audit.ActionUpdate, audit.EntityStudent, id, actorID, nil)
	writeJSON(w, http.StatusOK, st)
}

// handleReassignStudent moves a student to another staff member. Requires Manager.
func (s *Server) handleReassignStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reassignRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	actorID := actorFromContext(r.Context())
	st, err := s.students.Reassign(r.Context(), actorID, id, req.StaffID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(audit.ActionReassign, audit.EntityStudent, id, actorID, map[string]any{
		"staff_id": st.StaffID,
	})
	writeJSON(w, http.StatusOK, st)
}

// handleDeleteStudent removes a student on behalf of its owner or a Manager.
func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	actorID := actorFromContext(r.Context())
	st, err := s.students.Delete(r.Context(), actorID, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.auditLog(audit.ActionDelete, audit.EntityStudent, id, actorID, map[string]any{
		"staff_id": st.StaffID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "student deleted",
		"student": st,
	})
}
