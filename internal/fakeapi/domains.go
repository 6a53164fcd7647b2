package fakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"web-app-firewall-console/internal/core"
	"web-app-firewall-console/internal/logger"
	"web-app-firewall-console/internal/middleware"
	"web-app-firewall-console/pkg/response"
	"web-app-firewall-console/pkg/validator"
)

var nameserverPool = []string{
	"jiniyas", "rabin", "niraj", "sabin", "rita",
	"sneha", "exam", "bikalpa", "raju", "dhiren", "sanket",
}

const nsSuffix = ".ns.minishield.tech"

// Verifier returns the nameservers the registrar lists for the domain.
type Verifier func(ctx context.Context, d core.Domain) ([]string, error)

// DelegatedVerifier reports the assigned nameservers, so every verification
// passes.
func DelegatedVerifier(_ context.Context, d core.Domain) ([]string, error) {
	return d.Nameservers, nil
}

// UndelegatedVerifier reports a parking registrar, so every verification
// stays pending.
func UndelegatedVerifier(context.Context, core.Domain) ([]string, error) {
	return []string{"ns1.registrar-servers.com", "ns2.registrar-servers.com"}, nil
}

type rdapResponse struct {
	Nameservers []struct {
		LdhName string `json:"ldhName"`
	} `json:"nameservers"`
}

// RDAPVerifier asks an RDAP service (https://rdap.org redirects to the right
// registry) for the delegation.
func RDAPVerifier(hc *http.Client, baseURL string) Verifier {
	baseURL = strings.TrimRight(baseURL, "/")
	return func(ctx context.Context, d core.Domain) ([]string, error) {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/domain/"+d.Name, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/rdap+json")

		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, errors.New("domain not registered or found")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("rdap lookup answered %d", resp.StatusCode)
		}

		var body rdapResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxRequestBody)).Decode(&body); err != nil {
			return nil, err
		}
		found := make([]string, 0, len(body.Nameservers))
		for _, ns := range body.Nameservers {
			found = append(found, strings.ToLower(strings.TrimSuffix(ns.LdhName, ".")))
		}
		return found, nil
	}
}

// assignNameservers picks two distinct nameservers from the pool.
func assignNameservers() []string {
	i := rand.IntN(len(nameserverPool))
	j := rand.IntN(len(nameserverPool) - 1)
	if j >= i {
		j++
	}
	return []string{nameserverPool[i] + nsSuffix, nameserverPool[j] + nsSuffix}
}

// rootZone returns the registrable domain (eTLD+1) of name, or name itself
// when it has none.
func rootZone(name string) string {
	root, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return root
}

func (s *Server) listDomains(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	response.Success(w, s.state.domainsByUser(userID), "")
}

func (s *Server) addDomain(w http.ResponseWriter, r *http.Request) {
	var req core.AddDomainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(req.Name), "."))
	if err := validator.Domain(name); err != nil {
		response.BadRequest(w, "Invalid domain name")
		return
	}

	// A subdomain of a verified zone belongs in that zone's records.
	if root := rootZone(name); root != name {
		if _, exists := s.state.activeDomainByName(root); exists {
			response.Conflict(w, fmt.Sprintf(
				"The root domain '%s' is already registered. Please add '%s' as an A Record.", root, name))
			return
		}
	}

	userID, _ := middleware.GetUserID(r)
	created, err := s.state.createDomain(core.Domain{
		UserID:      userID,
		Name:        name,
		Nameservers: assignNameservers(),
		Status:      core.DomainPending,
	})
	if errors.Is(err, errDuplicate) {
		response.Conflict(w, "Domain already exists")
		return
	}
	if err != nil {
		response.InternalServerError(w, "Failed to create domain")
		return
	}

	s.log.Info("domain added",
		logger.String("domain", created.Name),
		logger.Strings("nameservers", created.Nameservers),
	)
	response.JSON(w, created, http.StatusOK)
}

// ownedDomain loads the domain named by id and checks it belongs to the
// caller, answering the request itself when it does not.
func (s *Server) ownedDomain(w http.ResponseWriter, r *http.Request, id string) (core.Domain, bool) {
	d, err := s.state.domainByID(id)
	if err != nil {
		response.NotFound(w, "Domain not found")
		return core.Domain{}, false
	}
	if userID, _ := middleware.GetUserID(r); d.UserID != userID {
		response.Forbidden(w, "Unauthorized")
		return core.Domain{}, false
	}
	return d, true
}

func (s *Server) verifyDomain(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		response.BadRequest(w, "Missing domain id")
		return
	}
	d, ok := s.ownedDomain(w, r, id)
	if !ok {
		return
	}

	found, err := s.verifier(r.Context(), d)
	if err != nil {
		s.log.Warn("registrar lookup failed", logger.String("domain", d.Name), logger.Err(err))
		response.JSON(w, map[string]string{
			"error":   "Verification Unavailable",
			"details": err.Error(),
		}, http.StatusServiceUnavailable)
		return
	}

	if !delegated(d.Nameservers, found) {
		response.JSON(w, core.VerifyResult{
			Status:           core.DomainPending,
			Message:          "Verification failed. Your Registrar nameservers do not match the assigned ones.",
			AssignedNS:       d.Nameservers,
			FoundAtRegistrar: found,
		}, http.StatusConflict)
		return
	}

	if err := s.state.activate(d.ID); err != nil {
		response.InternalServerError(w, "DB Update failed")
		return
	}
	s.log.Info("domain verified", logger.String("domain", d.Name))
	response.JSON(w, core.VerifyResult{
		Status:  core.DomainActive,
		Message: "Domain successfully verified! You are now the owner.",
	}, http.StatusOK)
}

// delegated reports whether every assigned nameserver is listed.
func delegated(assigned, found []string) bool {
	if len(assigned) == 0 {
		return false
	}
	for _, want := range assigned {
		listed := false
		for _, live := range found {
			if strings.EqualFold(live, want) {
				listed = true
				break
			}
		}
		if !listed {
			return false
		}
	}
	return true
}
