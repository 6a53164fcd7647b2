package fakeapi

import (
	"net/http"
	"strings"

	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/middleware"
	"web-app-firewall-console/pkg/response"
)

func (s *Server) globalRules(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	response.Success(w, s.state.rulesFor("", userID, r.URL.Query().Get("domain_id")), "")
}

func (s *Server) customRules(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	response.Success(w, s.state.rulesFor(userID, userID, r.URL.Query().Get("domain_id")), "")
}

func (s *Server) addCustomRule(w http.ResponseWriter, r *http.Request) {
	var req core.NewRule
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" || len(req.Conditions) == 0 {
		response.BadRequest(w, "Invalid input")
		return
	}
	for _, c := range req.Conditions {
		if c.Field.String() == "" || c.Value == "" || !c.Operator.Valid() {
			response.BadRequest(w, "Invalid input")
			return
		}
	}
	if req.OnMatch.Tags == nil {
		req.OnMatch.Tags = []string{}
	}

	userID, _ := middleware.GetUserID(r)
	rule := s.state.addRule(core.Rule{
		OwnerID:    userID,
		Name:       strings.TrimSpace(req.Name),
		Conditions: req.Conditions,
		OnMatch:    req.OnMatch,
	})
	s.log.Info("custom rule added", logger.String("rule_id", rule.ID), logger.String("owner", userID))
	response.Message(w, "Rule added", http.StatusCreated)
}

func (s *Server) toggleRule(w http.ResponseWriter, r *http.Request) {
	var req core.ToggleRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		response.BadRequest(w, "Rule ID required")
		return
	}

	userID, _ := middleware.GetUserID(r)
	if err := s.state.upsertPolicy(userID, req.DomainID, req.ID, req.Enabled); err != nil {
		response.NotFound(w, "Rule not found")
		return
	}
	response.Message(w, "Rule updated", http.StatusOK)
}

func (s *Server) deleteCustomRule(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		response.BadRequest(w, "Rule ID required")
		return
	}

	userID, _ := middleware.GetUserID(r)
	if err := s.state.deleteRule(id, userID); err != nil {
		response.NotFound(w, "Rule not found")
		return
	}
	response.Message(w, "Rule deleted", http.StatusOK)
}
