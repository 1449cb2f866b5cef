package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/clientdesk/internal/dkim"
	"github.com/foxzi/clientdesk/internal/ratelimit"
)

// ManagementServer exposes send quotas and DKIM setup
type ManagementServer struct {
	limiter *ratelimit.Limiter
	signer  *dkim.Signer
}

// NewManagementServer creates a management server. Either argument may be nil.
func NewManagementServer(limiter *ratelimit.Limiter, signer *dkim.Signer) *ManagementServer {
	return &ManagementServer{limiter: limiter, signer: signer}
}

// RegisterRoutes registers management API routes
func (m *ManagementServer) RegisterRoutes(r chi.Router) {
	r.Get("/ratelimits", m.handleRateLimitStats)
	r.Get("/dkim", m.handleDKIM)
}

// RateLimitStatsResponse is the response for GET /api/v1/ratelimits
type RateLimitStatsResponse struct {
	Global *ratelimit.Stats `json:"global"`
	Owner  *ratelimit.Stats `json:"owner"`
}

// DKIMResponse is the response for GET /api/v1/dkim
type DKIMResponse struct {
	Domain   string `json:"domain"`
	Selector string `json:"selector"`
	DNSName  string `json:"dns_name"`
	DNSValue string `json:"dns_value"`
}

// handleRateLimitStats handles GET /api/v1/ratelimits
func (m *ManagementServer) handleRateLimitStats(w http.ResponseWriter, r *http.Request) {
	if m.limiter == nil {
		sendError(w, http.StatusNotFound, "Rate limiting is disabled")
		return
	}

	sendJSON(w, http.StatusOK, RateLimitStatsResponse{
		Global: m.limiter.Stats(ratelimit.LevelGlobal, "global"),
		Owner:  m.limiter.Stats(ratelimit.LevelOwner, currentUser(r).ID),
	})
}

// handleDKIM handles GET /api/v1/dkim
func (m *ManagementServer) handleDKIM(w http.ResponseWriter, r *http.Request) {
	if m.signer == nil {
		sendError(w, http.StatusNotFound, "DKIM signing is not configured")
		return
	}

	kp := m.signer.KeyPair()
	record, err := kp.DNSRecord()
	if err != nil {
		sendError(w, http.StatusInternalServerError, "Failed to build DNS record")
		return
	}

	sendJSON(w, http.StatusOK, DKIMResponse{
		Domain:   m.signer.Domain(),
		Selector: m.signer.Selector(),
		DNSName:  kp.DNSName(),
		DNSValue: record,
	})
}
