package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/whisper/internal/budget"
	"github.com/aristath/whisper/internal/domain"
)

// handleRoot is the public status page.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	if s.cfg.Clock != nil {
		now = now.In(s.cfg.Clock.Location())
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service":      serviceName,
		"status":       "ok",
		"timestamp_et": now.Format(time.RFC3339),
	})
}

type componentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

type healthResponse struct {
	Service    string             `json:"service"`
	Healthy    bool               `json:"healthy"`
	MarketDay  string             `json:"market_day"`
	TradingDay bool               `json:"trading_day"`
	Components []componentHealth  `json:"components"`
	Budget     []budget.Summary   `json:"budget,omitempty"`
	Jobs       []domain.JobStatus `json:"jobs,omitempty"`
}

// handleHealth reports database, budget, and job state for today.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now()

	resp := healthResponse{Service: serviceName, Healthy: true}
	if s.cfg.Clock != nil {
		resp.MarketDay = s.cfg.Clock.MarketDay(now)
		resp.TradingDay = s.cfg.Clock.IsTradingDay(now)
	}

	for _, db := range s.cfg.Databases {
		c := componentHealth{Name: "db:" + db.Name(), Healthy: true}
		if err := db.Conn().PingContext(ctx); err != nil {
			c.Healthy = false
			c.Detail = err.Error()
			resp.Healthy = false
		}
		resp.Components = append(resp.Components, c)
	}

	if s.cfg.Budget != nil {
		for _, service := range s.cfg.Budget.Services() {
			summary, err := s.cfg.Budget.Summary(ctx, service)
			if err != nil {
				resp.Healthy = false
				resp.Components = append(resp.Components, componentHealth{
					Name: "budget:" + service, Healthy: false, Detail: err.Error(),
				})
				continue
			}
			resp.Budget = append(resp.Budget, summary)
		}
	}

	if s.cfg.JobStatus != nil && resp.MarketDay != "" {
		jobs, err := s.cfg.JobStatus.Day(ctx, resp.MarketDay)
		if err != nil {
			resp.Healthy = false
			resp.Components = append(resp.Components, componentHealth{
				Name: "jobs", Healthy: false, Detail: err.Error(),
			})
		} else {
			resp.Jobs = jobs
		}
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type dispatchRequest struct {
	Force string `json:"force"`
}

// handleDispatch runs one scheduler tick. Force comes from the JSON
// body or the force query parameter.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Dispatcher == nil {
		writeError(w, http.StatusServiceUnavailable, "dispatcher not configured")
		return
	}

	var req dispatchRequest
	if r.Body != nil {
		// An empty body is a plain tick.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Force == "" {
		req.Force = r.URL.Query().Get("force")
	}

	outcome, err := s.cfg.Dispatcher.Dispatch(r.Context(), req.Force)
	if err != nil {
		if domain.IsKind(err, domain.ErrConfiguration) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
