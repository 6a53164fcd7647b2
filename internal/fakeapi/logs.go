package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/middleware"
	"web-app-firewall-console/pkg/response"
)

// GET /api/logs?page=&limit=&domain_id=
func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	q := r.URL.Query()

	page, _ := strconv.ParseInt(q.Get("page"), 10, 64)
	limit, _ := strconv.ParseInt(q.Get("limit"), 10, 64)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	scope := make(map[string]bool)
	if domainID := q.Get("domain_id"); domainID != "" {
		if _, ok := s.ownedDomain(w, r, domainID); !ok {
			return
		}
		scope[domainID] = true
	} else {
		for _, d := range s.state.domainsByUser(userID) {
			scope[d.ID] = true
		}
	}

	logs, pg := s.state.logsFor(scope, page, limit)
	response.Paginated(w, logs, response.Pagination{
		CurrentPage: pg.CurrentPage,
		TotalPages:  pg.TotalPages,
		TotalItems:  pg.TotalItems,
		PerPage:     pg.PerPage,
	})
}

// GET /api/logs/stream sends every new log of the caller's domains as one
// "data:" event, with comment heartbeats in between.
func (s *Server) streamLogs(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalServerError(w, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable nginx buffering
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	userID, _ := middleware.GetUserID(r)
	sub := s.hub.subscribe(userID)
	defer s.hub.unsubscribe(sub)

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case entry := <-sub.ch:
			data, err := json.Marshal(entry)
			if err != nil {
				s.log.Warn("dropping unencodable log", logger.Err(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Publish stores entry as a new attack log and pushes it to the open streams
// of the domain's owner. Missing id and timestamp are filled in.
func (s *Server) Publish(entry core.AttackLog) core.AttackLog {
	stored := s.state.appendLog(entry)

	owner := ""
	if d, err := s.state.domainByID(stored.DomainID); err == nil {
		owner = d.UserID
	}
	sent := s.hub.publish(stored, func(userID string) bool { return owner != "" && userID == owner })
	s.log.Debug("log published", logger.String("id", stored.ID), logger.Int("streams", sent))
	return stored
}
