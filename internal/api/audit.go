package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nerrad567/student-registry/internal/audit"
	"github.com/nerrad567/student-registry/internal/events"
)

// auditQueueSize bounds entries waiting to be written. A full queue drops
// new entries rather than stall the request.
const auditQueueSize = 256

// auditTrail serialises audit writes onto one goroutine, which suits
// SQLite's single writer, and announces mutations as events.
type auditTrail struct {
	repo    audit.Repository
	events  events.Publisher
	logger  *slog.Logger
	onDrop  func()
	queue   chan audit.Entry
	stopped chan struct{}
}

func newAuditTrail(repo audit.Repository, pub events.Publisher, logger *slog.Logger, onDrop func()) *auditTrail {
	return &auditTrail{
		repo:    repo,
		events:  pub,
		logger:  logger,
		onDrop:  onDrop,
		queue:   make(chan audit.Entry, auditQueueSize),
		stopped: make(chan struct{}),
	}
}

func (a *auditTrail) enqueue(e audit.Entry) {
	select {
	case a.queue <- e:
	default:
		a.onDrop()
		a.logger.Warn("audit queue full, entry dropped", "action", e.Action, "entity_type", e.EntityType)
	}
}

// run writes entries until ctx ends, then flushes what is still queued.
func (a *auditTrail) run(ctx context.Context) {
	defer close(a.stopped)
	for {
		select {
		case e := <-a.queue:
			a.write(e)
		case <-ctx.Done():
			for len(a.queue) > 0 {
				a.write(<-a.queue)
			}
			return
		}
	}
}

// wait blocks until run has returned.
func (a *auditTrail) wait() {
	<-a.stopped
}

func (a *auditTrail) write(e audit.Entry) {
	log := a.logger.With("action", e.Action, "entity_type", e.EntityType)

	if a.repo != nil {
		// The request that produced e may already be gone.
		if err := a.repo.Create(context.Background(), &e); err != nil {
			log.Error("audit write failed", "error", err)
		}
	}

	if e.Action == audit.ActionLogin || e.Action == audit.ActionLoginFailed {
		return
	}
	if err := a.events.Publish(e); err != nil {
		log.Warn("event publish failed", "error", err)
	}
}

// auditLog queues an API audit entry. Non-positive ids are left unset.
func (s *Server) auditLog(action, entityType string, entityID, actorID int64, details map[string]any) {
	e := audit.Entry{
		Action:     action,
		EntityType: entityType,
		Source:     "api",
		Details:    details,
	}
	if entityID > 0 {
		e.EntityID = audit.EntityIDOf(entityID)
	}
	if actorID > 0 {
		e.ActorID = actorID
	}
	s.trail.enqueue(e)
}

// handleListAuditLogs serves GET /api/v1/audit to Admins.
//
// Filters: action, entity_type, entity_id, actor_id. Paging: limit (default
// 50, at most 200) and offset. Unparseable numbers are ignored.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.policy.RequireAdmin(r.Context(), actorFromContext(r.Context())); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if s.trail.repo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	f := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if n, err := strconv.ParseInt(q.Get("actor_id"), 10, 64); err == nil {
		f.ActorID = n
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = n
	}

	page, err := s.trail.repo.List(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
