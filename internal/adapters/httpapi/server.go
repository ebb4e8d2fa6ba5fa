package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jose-valero/ranked-engine/internal/app/service"
	"github.com/jose-valero/ranked-engine/internal/domain"
	"github.com/jose-valero/ranked-engine/internal/infra/storage"
)

// Server is the engine's public HTTP surface: queue admission, ready-check
// acks, rating reads, and the authenticated result ingest route.
type Server struct {
	queue        *service.QueueService
	ready        *service.ReadyCheckService
	rating       *service.RatingService
	ingestSecret string
	mux          *http.ServeMux
	log          zerolog.Logger
}

func New(queue *service.QueueService, ready *service.ReadyCheckService, rating *service.RatingService, ingestSecret string, log zerolog.Logger) *Server {
	s := &Server{
		queue:        queue,
		ready:        ready,
		rating:       rating,
		ingestSecret: ingestSecret,
		mux:          http.NewServeMux(),
		log:          log.With().Str("component", "httpapi").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/queue", s.handleEnqueue)
	s.mux.HandleFunc("DELETE /v1/queue/{entryId}", s.handleCancel)
	s.mux.HandleFunc("GET /v1/queue", s.handleStatus)
	s.mux.HandleFunc("POST /v1/ready/{proposalId}/accept", s.handleAck(true))
	s.mux.HandleFunc("POST /v1/ready/{proposalId}/decline", s.handleAck(false))
	s.mux.HandleFunc("GET /v1/players/{playerId}/rating", s.handleProfile)
	s.mux.HandleFunc("GET /v1/players/{playerId}/history", s.handleHistory)
	s.mux.HandleFunc("POST /v1/ingest/results", s.handleIngest)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()
	s.log.Info().Str("addr", addr).Msg("http listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type enqueueDTO struct {
	PartyMemberIDs []string `json:"party_member_ids"`
	RequestedRoles []string `json:"requested_roles"`
	LevelMin       int      `json:"level_min"`
	LevelMax       int      `json:"level_max"`
	RegionHint     string   `json:"region_hint"`
	Priority       bool     `json:"priority"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var dto enqueueDTO
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "VAL_BAD_REQUEST", "invalid json")
		return
	}
	entry, err := s.queue.Enqueue(r.Context(), service.EnqueueRequest{
		PartyMemberIDs: dto.PartyMemberIDs,
		RequestedRoles: dto.RequestedRoles,
		LevelMin:       dto.LevelMin,
		LevelMax:       dto.LevelMax,
		RegionHint:     dto.RegionHint,
		Priority:       dto.Priority,
	})
	if err != nil {
		// Party shape violations surface as plain errors, not taxonomy codes.
		var qe *domain.QueueError
		if !errors.As(err, &qe) {
			writeError(w, http.StatusBadRequest, "VAL_BAD_REQUEST", err.Error())
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"entry_id":    entry.EntryID,
		"enqueued_at": entry.EnqueuedAt,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.Cancel(r.Context(), r.PathValue("entryId")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.queue.ListActive(r.Context(), domain.QueueFilter{
		Region:   r.URL.Query().Get("region"),
		PlayerID: r.URL.Query().Get("player"),
	})
	writeJSON(w, http.StatusOK, map[string]any{"entries": statuses})
}

func (s *Server) handleAck(accept bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dto struct {
			PlayerID string `json:"player_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || dto.PlayerID == "" {
			writeError(w, http.StatusBadRequest, "VAL_BAD_REQUEST", "player_id required")
			return
		}
		if err := s.ready.Ack(r.Context(), r.PathValue("proposalId"), dto.PlayerID, accept); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	prof, err := s.rating.Profile(r.Context(), r.PathValue("playerId"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "BIZ_PROFILE_NOT_FOUND", "no rating profile")
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	page, err := s.rating.History(r.Context(), r.PathValue("playerId"), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":     page.Entries,
		"next_cursor": page.NextCursor,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Engine-Secret")
	if s.ingestSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.ingestSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "VAL_UNAUTHORIZED", "missing or invalid secret")
		return
	}

	var res domain.MatchResult
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&res); err != nil {
		writeError(w, http.StatusBadRequest, "VAL_BAD_REQUEST", "invalid json")
		return
	}

	if err := s.rating.ApplyResult(r.Context(), res); err != nil {
		// A fully-applied redelivery is a success for an at-least-once
		// sender; a non-2xx would keep it retrying forever.
		var re *domain.RatingError
		if errors.As(err, &re) && re.Code == domain.RatingDuplicateDelta {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "code": re.WireCode()})
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// writeDomainError maps the engine's error taxonomy onto HTTP. BIZ_* is a
// state conflict, VAL_* a caller mistake, everything else an internal fault.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	code := ""
	switch e := err.(type) {
	case *domain.QueueError:
		code = e.WireCode()
	case *domain.MatchError:
		code = e.WireCode()
	case *domain.RatingError:
		code = e.WireCode()
	}
	switch {
	case strings.HasPrefix(code, "BIZ_"):
		writeError(w, http.StatusConflict, code, err.Error())
	case strings.HasPrefix(code, "VAL_"):
		writeError(w, http.StatusUnprocessableEntity, code, err.Error())
	case code != "":
		writeError(w, http.StatusInternalServerError, code, err.Error())
	default:
		s.log.Error().Err(err).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "INT_UNEXPECTED", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"code": code, "detail": detail})
}
