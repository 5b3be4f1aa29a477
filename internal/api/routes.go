package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vodarchive/vodarchive/internal/catalog"
)

const maxVideosLimit = 500

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/streamers", listStreamersHandler(cfg))
		r.Post("/streamers", addStreamerHandler(cfg))
		r.Get("/videos", listVideosHandler(cfg))
		r.Post("/runner/pause", pauseHandler(cfg))
		r.Post("/runner/resume", resumeHandler(cfg))
		r.Post("/runner/run", runNowHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		streamers, _ := cfg.CatalogService.ListStreamers(ctx)
		counts, err := cfg.CatalogService.CountByState(ctx)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to count videos", "INTERNAL_ERROR")
			return
		}

		resp := StatusResponse{
			State:     "idle",
			Streamers: len(streamers),
			Videos:    counts,
		}

		if cfg.Runner != nil {
			switch {
			case cfg.Runner.IsPaused():
				resp.State = "paused"
			case !cfg.Runner.IsRunning():
				resp.State = "stopped"
			}
			resp.LastPass = cfg.Runner.LastPass()
			if resp.LastPass != nil && resp.LastPass.Error != "" {
				resp.LastError = resp.LastPass.Error
				if resp.State == "idle" {
					resp.State = "error"
				}
			}
		}

		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil && !caps.ProbedAt.IsZero() {
				resp.FFmpeg = &FFmpegStatusResponse{
					Available:   caps.Available,
					Version:     caps.Version,
					Error:       caps.Error,
					LastProbeAt: caps.ProbedAt.Format(time.RFC3339),
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listStreamersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		streamers, err := cfg.CatalogService.ListStreamers(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list streamers", "INTERNAL_ERROR")
			return
		}

		resp := StreamersResponse{Streamers: make([]StreamerResponse, len(streamers))}
		for i, s := range streamers {
			resp.Streamers[i] = StreamerToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func addStreamerHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddStreamerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if catalog.NormalizeLogin(req.Login) == "" {
			WriteError(w, http.StatusBadRequest, "login is required", "BAD_REQUEST")
			return
		}

		watched := true
		if req.Watched != nil {
			watched = *req.Watched
		}

		st, err := cfg.CatalogService.AddStreamer(r.Context(), catalog.Streamer{
			Login:           req.Login,
			DisplayName:     req.DisplayName,
			Watched:         watched,
			YouTubeUser:     req.YouTubeUser,
			PublicByDefault: req.PublicByDefault,
		})
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusCreated, StreamerToResponse(st))
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		state := q.Get("state")
		switch state {
		case "", catalog.StatePending, catalog.StateBackedUp, catalog.StateFailed:
		default:
			WriteError(w, http.StatusBadRequest, "state must be pending, backed_up or failed", "BAD_REQUEST")
			return
		}

		limit := 100
		if raw := q.Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = min(n, maxVideosLimit)
		}

		statuses, err := cfg.CatalogService.ListStatuses(r.Context(), state, limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list videos", "INTERNAL_ERROR")
			return
		}

		resp := VideosResponse{Videos: make([]VideoStatusResponse, len(statuses))}
		for i, s := range statuses {
			resp.Videos[i] = StatusToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func pauseHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "runner not configured", "UNAVAILABLE")
			return
		}
		cfg.Runner.Pause()
		WriteJSON(w, http.StatusOK, runnerResponse(cfg.Runner))
	}
}

func resumeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "runner not configured", "UNAVAILABLE")
			return
		}
		cfg.Runner.Resume()
		WriteJSON(w, http.StatusOK, runnerResponse(cfg.Runner))
	}
}

func runNowHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "runner not configured", "UNAVAILABLE")
			return
		}
		if cfg.Runner.IsPaused() {
			WriteError(w, http.StatusConflict, "runner is paused", "CONFLICT")
			return
		}
		cfg.Runner.Trigger()
		WriteJSON(w, http.StatusAccepted, runnerResponse(cfg.Runner))
	}
}

func runnerResponse(rc RunnerControl) RunnerResponse {
	return RunnerResponse{Running: rc.IsRunning(), Paused: rc.IsPaused()}
}
