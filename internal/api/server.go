package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"marketsim/internal/competitor"
	"marketsim/internal/config"
	"marketsim/internal/market"
	"marketsim/internal/pressure"
	"marketsim/internal/sim"
)

var ErrDuplicateIdempotency = errors.New("duplicate idempotency key")

type Server struct {
	cfg    config.APIConfig
	log    *slog.Logger
	runner *sim.Runner
	mux    *chi.Mux

	idemMu sync.Mutex
	idem   map[string]struct{}
}

func New(cfg config.APIConfig, logger *slog.Logger, runner *sim.Runner) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		log:    logger,
		runner: runner,
		mux:    chi.NewRouter(),
		idem:   make(map[string]struct{}),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "session_id": s.runner.SessionID()})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/market", s.handleMarket)
			r.Get("/market/{id}", s.handleCompany)
			r.Get("/competitors", s.handleCompetitors)
			r.Get("/player", s.handlePlayer)
			r.Get("/pressure", s.handlePressure)
			r.Post("/orders", s.handleOrder)
			r.Post("/events", s.handleEvent)

			r.Post("/position-check", s.handlePositionCheck)
			r.Post("/tax/preview", s.handleTaxPreview)
			r.Post("/price/tick", s.handlePriceTick)
		})
	})
}

type marketView struct {
	SessionID string                 `json:"session_id"`
	Clock     sim.Clock              `json:"clock"`
	Index     float64                `json:"index"`
	Breaker   market.BreakerState    `json:"breaker"`
	Sentiment market.SentimentState  `json:"sentiment"`
	Events    []market.EventModifier `json:"events"`
	Companies []market.Company       `json:"companies"`
}

func (s *Server) handleMarket(w http.ResponseWriter, _ *http.Request) {
	var out marketView
	_ = s.runner.Do(func(sess *sim.Session) error {
		out = marketView{
			SessionID: sess.ID,
			Clock:     sess.Clock(),
			Index:     sess.Index(),
			Breaker:   sess.Breaker(),
			Sentiment: sess.Sentiment(),
			Events:    sess.Events(),
			Companies: sess.Companies(),
		}
		return nil
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var company market.Company
	err := s.runner.Do(func(sess *sim.Session) error {
		c, err := sess.Company(id)
		company = c
		return err
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	journal, err := s.runner.History(r.Context(), company.ID, limit)
	if err != nil {
		s.log.Error("journal read failed", "company", company.ID, "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"company": company, "journal": journal})
}

func (s *Server) handleCompetitors(w http.ResponseWriter, _ *http.Request) {
	var out map[string]any
	_ = s.runner.Do(func(sess *sim.Session) error {
		out = map[string]any{
			"competitors": sess.Competitors(),
			"rankings":    sess.Rankings(),
		}
		return nil
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePlayer(w http.ResponseWriter, _ *http.Request) {
	var out sim.PlayerView
	_ = s.runner.Do(func(sess *sim.Session) error {
		out = sess.Player()
		return nil
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePressure(w http.ResponseWriter, _ *http.Request) {
	var st pressure.State
	_ = s.runner.Do(func(sess *sim.Session) error {
		st = sess.Pressure()
		return nil
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"state":          st,
		"tier":           pressure.ConfigFor(st.Tier),
		"effective_rate": pressure.EffectiveRate(st).InexactFloat64(),
		"tiers":          pressure.Tiers,
	})
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CompanyID string `json:"company_id"`
		Side      string `json:"side"`
		Shares    int64  `json:"shares"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := idempotencyKey(r)
	if !s.reserve(key) {
		writeDomainError(w, ErrDuplicateIdempotency)
		return
	}

	var result sim.OrderResult
	err := s.runner.Do(func(sess *sim.Session) error {
		var err error
		result, err = sess.PlaceOrder(in.CompanyID, competitor.Side(in.Side), in.Shares)
		return err
	})
	if err != nil {
		s.release(key)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// reserve claims key for a single order. Rejected orders release it.
func (s *Server) reserve(key string) bool {
	s.idemMu.Lock()
	defer s.idemMu.Unlock()
	if _, seen := s.idem[key]; seen {
		return false
	}
	s.idem[key] = struct{}{}
	return true
}

func (s *Server) release(key string) {
	s.idemMu.Lock()
	delete(s.idem, key)
	s.idemMu.Unlock()
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var in market.EventModifier
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Title) == "" || in.Duration <= 0 {
		writeError(w, http.StatusBadRequest, "title and duration > 0 are required")
		return
	}
	for _, sec := range in.AffectedSectors {
		if !market.ValidSector(sec) {
			writeDomainError(w, fmt.Errorf("%w: %q", market.ErrUnknownSector, sec))
			return
		}
	}
	var out market.EventModifier
	_ = s.runner.Do(func(sess *sim.Session) error {
		out = sess.AddEvent(in)
		return nil
	})
	s.log.Info("event injected", "session_id", s.runner.SessionID(), "title", out.Title, "severity", out.Severity)
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handlePositionCheck(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Tier            string  `json:"tier"`
		TotalAssets     float64 `json:"total_assets"`
		CurrentShares   int64   `json:"current_shares"`
		PricePerShare   float64 `json:"price_per_share"`
		RequestedShares int64   `json:"requested_shares"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tier, err := pressure.ParseTier(in.Tier)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	current := float64(in.CurrentShares) * in.PricePerShare
	writeJSON(w, http.StatusOK, pressure.CheckPositionLimit(tier, in.TotalAssets, current, in.PricePerShare, in.RequestedShares))
}

func (s *Server) handleTaxPreview(w http.ResponseWriter, r *http.Request) {
	var in struct {
		State       pressure.State `json:"state"`
		TotalAssets float64        `json:"total_assets"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.State.Tier == "" {
		in.State.Tier = pressure.TierForAssets(in.TotalAssets)
	}
	if _, err := pressure.ParseTier(string(in.State.Tier)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, updated := pressure.MonthlyTax(in.State, in.TotalAssets)
	writeJSON(w, http.StatusOK, map[string]any{"tax_amount": amount, "updated_state": updated})
}

// handlePriceTick prices a caller-supplied snapshot without touching the
// running session. A seed query parameter makes the step reproducible.
func (s *Server) handlePriceTick(w http.ResponseWriter, r *http.Request) {
	var req market.TickRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Dt <= 0 {
		req.Dt = market.DefaultDt
	}
	seed := time.Now().UnixNano()
	if v := r.URL.Query().Get("seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "seed must be an integer")
			return
		}
		seed = n
	}
	writeJSON(w, http.StatusOK, market.ComputeTick(req, rand.New(rand.NewSource(seed))))
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateIdempotency):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sim.ErrInsufficientFunds), errors.Is(err, sim.ErrInsufficientShares),
		errors.Is(err, sim.ErrInvalidOrder), errors.Is(err, market.ErrUnknownSector):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sim.ErrPositionLimit):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, sim.ErrTradingHalted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrUnknownCompany):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sim.ErrPricerClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}
