package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"kickoff/internal/config"
	"kickoff/internal/game"
	"kickoff/internal/live"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
)

// JobRunner triggers scheduled jobs on demand.
type JobRunner interface {
	Names() []string
	RunOnce(ctx context.Context, name string) error
}

type Server struct {
	cfg  config.Config
	log  *slog.Logger
	game *game.Service
	hub  *live.Hub
	jobs JobRunner
	mux  *chi.Mux
}

func New(cfg config.Config, logger *slog.Logger, gameSvc *game.Service, hub *live.Hub, jobs JobRunner) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		game: gameSvc,
		hub:  hub,
		jobs: jobs,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	})
	return c.Handler(s.mux)
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/matches/{id}/live", s.handleMatchFeed)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Post("/teams", s.handleCreateTeam)
			r.Get("/teams/{id}", s.handleTeam)
			r.Get("/teams/{id}/facilities", s.handleFacilities)
			r.Post("/teams/{id}/facilities/{type}/collect", s.handleCollect)
			r.Post("/teams/{id}/facilities/{type}/upgrade", s.handleUpgrade)
			r.Post("/teams/{id}/players/recruit", s.handleRecruit)
			r.Post("/teams/{id}/players/sign", s.handleSign)
			r.Delete("/teams/{id}/players/{player_id}", s.handleFire)
			r.Post("/teams/{id}/players/{player_id}/renew", s.handleRenewPlayer)
			r.Post("/teams/{id}/coach/renew", s.handleRenewCoach)
			r.Post("/teams/{id}/league", s.handleRegisterLeague)

			r.Get("/leagues", s.handleLeagues)
			r.Get("/leagues/{tier}/table", s.handleLeagueTable)

			r.Post("/matches", s.handleCreateMatch)
			r.Get("/matches/live", s.handleLiveMatches)
			r.Get("/matches/{id}", s.handleMatch)

			r.Group(func(r chi.Router) {
				r.Use(s.adminMiddleware)
				r.Get("/admin/jobs", s.handleJobs)
				r.Post("/admin/jobs/{name}/run", s.handleRunJob)
			})
		})
	})
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" || s.jobs == nil {
			writeError(w, http.StatusNotFound, "admin endpoints are disabled")
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			writeError(w, http.StatusForbidden, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
		Tier string `json:"tier"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	team, err := s.game.CreateTeam(r.Context(), in.Name, in.Tier)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (s *Server) handleTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	team, err := s.game.GetTeam(r.Context(), teamID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleFacilities(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := s.game.Facilities(r.Context(), teamID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facilities": out})
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ft, err := game.ParseFacilityType(chi.URLParam(r, "type"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := s.game.CollectCoins(r.Context(), teamID, ft)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ft, err := game.ParseFacilityType(chi.URLParam(r, "type"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out, err := s.game.UpgradeFacility(r.Context(), teamID, ft)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRecruit(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := s.game.RecruitPlayer(r.Context(), teamID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in game.SigningInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.game.SignPlayer(r.Context(), teamID, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	playerID, ok := pathID(w, r, "player_id")
	if !ok {
		return
	}
	remaining, err := s.game.FirePlayer(r.Context(), teamID, playerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fired": playerID, "remaining_fires": remaining})
}

func (s *Server) handleRenewPlayer(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	playerID, ok := pathID(w, r, "player_id")
	if !ok {
		return
	}
	out, err := s.game.RenewPlayerContract(r.Context(), teamID, playerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRenewCoach(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	out, err := s.game.RenewCoachContract(r.Context(), teamID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegisterLeague(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in struct {
		Tier string `json:"tier"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	team, err := s.game.RegisterForLeague(r.Context(), teamID, in.Tier)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (s *Server) handleLeagues(w http.ResponseWriter, _ *http.Request) {
	tiers := game.Tiers()
	out := make([]map[string]any, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, map[string]any{"tier": t, "level": int(t)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"leagues": out})
}

func (s *Server) handleLeagueTable(w http.ResponseWriter, r *http.Request) {
	tier := chi.URLParam(r, "tier")
	rows, err := s.game.LeagueTable(r.Context(), tier)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tier": strings.ToLower(tier), "rows": rows})
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		HomeTeamID uuid.UUID `json:"home_team_id"`
		AwayTeamID uuid.UUID `json:"away_team_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.game.CreateMatch(r.Context(), in.HomeTeamID, in.AwayTeamID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleLiveMatches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, 200)
	}
	out, err := s.game.LiveMatches(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": out})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	matchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	m, err := s.game.GetMatch(r.Context(), matchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleMatchFeed upgrades to a websocket that starts with the current match
// state and then carries every minute's update.
func (s *Server) handleMatchFeed(w http.ResponseWriter, r *http.Request) {
	matchID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed unavailable")
		return
	}
	m, err := s.game.GetMatch(r.Context(), matchID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.hub.ServeWS(w, r, matchID, m); err != nil {
		s.log.Warn("websocket upgrade failed", "match_id", matchID, "err", err)
	}
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.jobs.Names()})
}

// handleRunJob starts a job in the background; league sweeps outlive any
// reasonable request timeout.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !slices.Contains(s.jobs.Names(), name) {
		writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.jobs.RunOnce(ctx, name); err != nil {
			s.log.Error("admin job run failed", "job", name, "err", err)
		}
	}()
	s.log.Info("admin job triggered", "job", name, "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]any{"job": name, "status": "started"})
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+strings.ReplaceAll(key, "_", " "))
		return uuid.Nil, false
	}
	return id, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, game.ErrMaxLevelReached),
		errors.Is(err, game.ErrRosterFull),
		errors.Is(err, game.ErrFireLimitExceeded),
		errors.Is(err, game.ErrVersionConflict),
		errors.Is(err, game.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInvalidTier),
		errors.Is(err, game.ErrUnknownFacility),
		errors.Is(err, game.ErrInvalidName),
		errors.Is(err, game.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, game.ErrPersistence):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
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

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
