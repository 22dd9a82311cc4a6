package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lolplq101/valcomps/internal/domain"
	"github.com/lolplq101/valcomps/internal/service/auth"
	"github.com/lolplq101/valcomps/internal/service/comp"
	"github.com/lolplq101/valcomps/internal/service/roster"
	"github.com/lolplq101/valcomps/internal/service/team"
	"github.com/lolplq101/valcomps/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	team     team.Service
	roster   roster.Service
	comp     comp.Service
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter
	dbHealth func(context.Context) error

	joinLimit   int
	lookupLimit int
	rateWindow  time.Duration

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies. joinLimit and lookupLimit
// throttle invite-code joins and public share-code lookups, the two surfaces
// where codes can be guessed.
func NewRouter(logger *slog.Logger, authSvc auth.Service, teamSvc team.Service, rosterSvc roster.Service, compSvc comp.Service, hub *ws.Hub, limiter RateLimiter, joinLimit, lookupLimit int, rateWindow time.Duration, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		auth:   authSvc,
		team:   teamSvc,
		roster: rosterSvc,
		comp:   compSvc,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:     limiter,
		dbHealth:    dbHealth,
		joinLimit:   joinLimit,
		lookupLimit: lookupLimit,
		rateWindow:  rateWindow,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.joinLimit <= 0 {
		r.joinLimit = 10
	}
	if r.lookupLimit <= 0 {
		r.lookupLimit = 30
	}
	if r.rateWindow <= 0 {
		r.rateWindow = rateWindowDefault
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/signup", r.audit(r.withRateLimit("auth_signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit(r.withRateLimit("auth_login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/teams", r.audit(r.handlerAuthRate("teams", rateLimitUserWrite, rateWindowDefault, r.handleTeams)))
	r.mux.HandleFunc("/teams/join", r.audit(r.handlerAuthRate("teams_join", r.joinLimit, r.rateWindow, r.handleJoin)))
	r.mux.HandleFunc("/teams/leave", r.audit(r.handlerAuthRate("teams_leave", rateLimitUserWrite, rateWindowDefault, r.handleLeave)))
	r.mux.HandleFunc("/teams/disband", r.audit(r.handlerAuthRate("teams_disband", rateLimitUserWrite, rateWindowDefault, r.handleDisband)))
	r.mux.HandleFunc("/teams/invite-code", r.audit(r.handlerAuthRate("teams_invite_code", rateLimitUserWrite, rateWindowDefault, r.handleRefreshInviteCode)))
	r.mux.HandleFunc("/teams/members/", r.audit(r.handlerAuthRate("teams_members", rateLimitUserWrite, rateWindowDefault, r.handleMemberSubroutes)))
	r.mux.HandleFunc("/roster", r.audit(r.handlerAuthRate("roster", rateLimitUserWrite, rateWindowDefault, r.handleRoster)))
	r.mux.HandleFunc("/comps", r.audit(r.handlerAuthRate("comps", rateLimitUserWrite, rateWindowDefault, r.handleComps)))
	r.mux.HandleFunc("/comps/", r.audit(r.handlerAuthRate("comps_share", rateLimitUserWrite, rateWindowDefault, r.handleCompSubroutes)))
	r.mux.HandleFunc("/shared/", r.audit(r.withRateLimit("shared_lookup", r.lookupLimit, r.rateWindow, rateLimitKeyIP, r.handleSharedComp)))
	r.mux.HandleFunc("/ws/team", r.audit(r.handlerAuthRate("ws_team", rateLimitWebsocket, 30*time.Second, r.handleTeamWS)))
}

func (r *Router) actorFromContext(w http.ResponseWriter, req *http.Request) (team.Actor, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return team.Actor{}, false
	}
	return team.Actor{UID: info.UserID, DisplayName: info.DisplayName, PhotoURL: info.PhotoURL}, true
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
		PhotoURL    string `json:"photoUrl"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Signup(req.Context(), payload.Email, payload.Password, payload.DisplayName, payload.PhotoURL)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":   userView(user),
		"tokens": tokens,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":   userView(user),
		"tokens": tokens,
	})
}

func userView(user *domain.User) map[string]any {
	return map[string]any{
		"id":          user.ID,
		"email":       user.Email,
		"displayName": user.DisplayName,
		"photoUrl":    user.PhotoURL,
	}
}

func (r *Router) handleTeams(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actorFromContext(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := r.team.Create(req.Context(), actor, payload.Name)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		current, err := r.team.MyTeam(req.Context(), actor.UID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		if current == nil {
			writeJSON(w, http.StatusOK, map[string]any{"team": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"team": current})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleJoin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.actorFromContext(w, req)
	if !ok {
		return
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	joined, err := r.team.Join(req.Context(), actor, payload.Code)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joined)
}

func (r *Router) handleLeave(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.actorFromContext(w, req)
	if !ok {
		return
	}
	if err := r.team.Leave(req.Context(), actor.UID); err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (r *Router) handleDisband(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.actorFromContext(w, req)
	if !ok {
		return
	}
	if err := r.team.Disband(req.Context(), actor.UID); err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disbanded"})
}

func (r *Router) handleRefreshInviteCode(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.actorFromContext(w, req)
	if !ok {
		return
	}
	refreshed, err := r.team.RefreshInviteCode(req.Context(), actor.UID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"inviteCode": refreshed.InviteCode})
}

func (r *Router) handleMemberSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/teams/members/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	targetUID := parts[0]
	actor, ok := r.actorFromContext(w, req)
	if !ok {
		return
	}
	switch {
	case len(parts) == 2 && parts[1] == "role" && req.Method == http.MethodPut:
		var payload struct {
			Role string `json:"role"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		updated, err := r.team.ChangeMemberRole(req.Context(), actor.UID, targetUID, domain.Role(payload.Role))
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case len(parts) == 1 && req.Method == http.MethodDelete:
		updated, err := r.team.RemoveMember(req.Context(), actor.UID, targetUID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleRoster(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actorFromContext(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		loaded, err := r.roster.Load(req.Context(), actor.UID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, loaded)
	case http.MethodPut:
		var payload domain.Roster
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := r.roster.Save(req.Context(), actor.UID, &payload); err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleComps(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actorFromContext(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Name   string   `json:"name"`
			MapID  string   `json:"mapId"`
			Agents []string `json:"agents"`
			Notes  string   `json:"notes"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := r.comp.Create(req.Context(), actor.UID, payload.Name, payload.MapID, payload.Agents, payload.Notes)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		comps, err := r.comp.List(req.Context(), actor.UID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, comps)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleCompSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/comps/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "share" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.actorFromContext(w, req)
	if !ok {
		return
	}
	shareCode, err := r.comp.Share(req.Context(), actor.UID, actor.DisplayName, parts[0])
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"shareCode": shareCode})
}

func (r *Router) handleSharedComp(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	shareCode := strings.TrimPrefix(req.URL.Path, "/shared/")
	if shareCode == "" || strings.Contains(shareCode, "/") {
		r.notFound(w)
		return
	}
	preview, err := r.comp.LoadShared(req.Context(), shareCode)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (r *Router) handleTeamWS(w http.ResponseWriter, req *http.Request) {
	actor, ok := r.actorFromContext(w, req)
	if !ok {
		return
	}
	current, err := r.team.MyTeam(req.Context(), actor.UID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	if current == nil {
		writeError(w, http.StatusNotFound, "not in a team")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	teamID := current.ID
	r.hub.Register(teamID, client)
	go func() {
		defer func() {
			r.hub.Unregister(teamID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, req.URL.Path, status, duration)
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
