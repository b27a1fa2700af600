package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"marketgen/internal/app"
	"marketgen/internal/ratelimit"
	"marketgen/internal/util"
	"marketgen/pkg/domain"
	"marketgen/pkg/session"
)

const maxJSONBytes = 1 << 20

// SessionVerifier resolves and revokes session tokens.
type SessionVerifier interface {
	Verify(token string) (session.Identity, error)
	Revoke(token string) error
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Sessions SessionVerifier
	// GenerateLimiter caps generation calls per user. Nil disables limiting.
	GenerateLimiter    *ratelimit.FixedWindowLimiter
	CookieName         string
	TrustedProxies     *util.TrustedProxies
	CORSAllowedOrigins []string
}

// Server exposes HTTP endpoints for the backend.
type Server struct {
	app             *app.App
	sessions        SessionVerifier
	generateLimiter *ratelimit.FixedWindowLimiter
	cookieName      string
	trustedProxies  *util.TrustedProxies
	corsOrigins     []string
	mux             *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires an app")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("server requires a session verifier")
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = "app_session_id"
	}
	s := &Server{
		app:             cfg.App,
		sessions:        cfg.Sessions,
		generateLimiter: cfg.GenerateLimiter,
		cookieName:      cookieName,
		trustedProxies:  cfg.TrustedProxies,
		corsOrigins:     cfg.CORSAllowedOrigins,
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog("marketgen",
			util.WithSecurityHeaders(
				util.WithCORS(s.corsOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/me", s.handleMe)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)

	// generation (auth + rate limit)
	s.mux.Handle("/api/generate/content", s.authenticated(s.limited(s.handleGenerateContent)))
	s.mux.Handle("/api/generate/poster", s.authenticated(s.limited(s.handleGeneratePoster)))
	s.mux.Handle("/api/generate/platform-content", s.authenticated(s.limited(s.handleGeneratePlatform)))

	// library
	s.mux.Handle("/api/history", s.authenticated(s.handleHistory))
	s.mux.Handle("/api/history/", s.authenticated(s.handleHistoryByID))
	s.mux.Handle("/api/assets", s.authenticated(s.handleAssets))
	s.mux.Handle("/api/assets/upload", s.authenticated(s.handleUploadAsset))
	s.mux.Handle("/api/assets/", s.authenticated(s.handleAssetByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			writeAppError(w, r, app.ErrUnauthorized)
			return
		}
		next(w, r, user)
	})
}

func (s *Server) limited(next authHandler) authHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if !s.allowRate(w, r, user) {
			s.audit(r, "generate.ratelimit", "rate_limited", "user_id", user.ID)
			return
		}
		next(w, r, user)
	}
}

// authorize resolves the caller from the bearer token or session cookie.
func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := s.sessionToken(r)
	if !ok {
		s.audit(r, "session.verify", "fail", "reason", "missing_token")
		return domain.User{}, false
	}
	identity, err := s.sessions.Verify(token)
	if err != nil {
		reason := "invalid_signature_or_claims"
		if !errors.Is(err, session.ErrInvalidSession) {
			reason = "revocation_check_failed"
		}
		s.audit(r, "session.verify", "fail", "reason", reason)
		return domain.User{}, false
	}
	user, err := s.app.Authenticate(r.Context(), identity)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("authenticate user failed", "err", err)
		s.audit(r, "session.verify", "fail", "reason", "user_upsert_failed")
		return domain.User{}, false
	}
	s.audit(r, "session.verify", "success", "user_id", user.ID)
	return user, true
}

func (s *Server) sessionToken(r *http.Request) (string, bool) {
	if token, ok := bearerToken(r); ok {
		return token, true
	}
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return "", false
	}
	token := strings.TrimSpace(cookie.Value)
	return token, token != ""
}

// auth handlers
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	user, ok := s.authorize(r)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if token, ok := s.sessionToken(r); ok {
		if err := s.sessions.Revoke(token); err != nil {
			s.audit(r, "session.logout", "fail", "reason", "revoke_failed")
			writeAppError(w, r, fmt.Errorf("revoke session: %w", err))
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	s.audit(r, "session.logout", "success")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// generation handlers
func (s *Server) handleGenerateContent(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	style, err := parseStyle(req.Style)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	result, err := s.app.GenerateContent(r.Context(), user, req.Prompt, style)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGeneratePoster(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req posterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	style, err := parseStyle(req.Style)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	result, err := s.app.GeneratePoster(r.Context(), user, app.PosterInput{
		HistoryID:    req.HistoryID,
		MainHeadline: req.MainHeadline,
		SubHeadline:  req.SubHeadline,
		BodyText:     req.BodyText,
		Style:        style,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGeneratePlatform(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	var req platformRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	style, err := parseStyle(req.Style)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	platforms := make([]domain.Platform, 0, len(req.Platforms))
	for _, label := range req.Platforms {
		p, err := domain.ParsePlatform(strings.TrimSpace(label))
		if err != nil {
			writeAppError(w, r, fmt.Errorf("%w: %v", app.ErrValidation, err))
			return
		}
		platforms = append(platforms, p)
	}
	result, err := s.app.GeneratePlatformContent(r.Context(), user, app.PlatformInput{
		HistoryID:       req.HistoryID,
		OriginalContent: req.OriginalContent,
		Platforms:       platforms,
		Style:           style,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// history handlers
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeAppError(w, r, fmt.Errorf("%w: limit must be a number", app.ErrValidation))
			return
		}
		limit = n
	}
	items, err := s.app.ListHistory(user, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// /api/history/{id}
func (s *Server) handleHistoryByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := pathID(r, "/api/history/")
	if !ok {
		writeAppError(w, r, app.ErrHistoryNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		item, err := s.app.GetHistory(user, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	case http.MethodPatch:
		var patch app.HistoryPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		if err := s.app.UpdateHistory(user, id, patch); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case http.MethodDelete:
		if err := s.app.DeleteHistory(user, id); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		methodNotAllowed(w, r)
	}
}

// asset handlers
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		items, err := s.app.ListAssets(user)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var in app.AssetInput
		if !decodeJSON(w, r, &in) {
			return
		}
		asset, err := s.app.CreateAsset(user, in)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"id": asset.ID})
	default:
		methodNotAllowed(w, r)
	}
}

func (s *Server) handleUploadAsset(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, uploadBodyLimit(s.app.MaxUploadBytes()))
	var in app.UploadInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAppError(w, r, fmt.Errorf("%w: file exceeds %d bytes", app.ErrValidation, s.app.MaxUploadBytes()))
			return
		}
		writeAppError(w, r, fmt.Errorf("%w: invalid JSON body", app.ErrValidation))
		return
	}
	result, err := s.app.UploadAsset(r.Context(), user, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// /api/assets/{id}
func (s *Server) handleAssetByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := pathID(r, "/api/assets/")
	if !ok {
		writeAppError(w, r, app.ErrAssetNotFound)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var patch app.AssetPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		if err := s.app.UpdateAsset(user, id, patch); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	case http.MethodDelete:
		if err := s.app.DeleteAsset(user, id); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	default:
		methodNotAllowed(w, r)
	}
}

type contentRequest struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
}

type posterRequest struct {
	HistoryID    int64  `json:"historyId"`
	MainHeadline string `json:"mainHeadline"`
	SubHeadline  string `json:"subHeadline"`
	BodyText     string `json:"bodyText"`
	Style        string `json:"style"`
}

type platformRequest struct {
	HistoryID       int64    `json:"historyId"`
	OriginalContent string   `json:"originalContent"`
	Platforms       []string `json:"platforms"`
	Style           string   `json:"style"`
}

func parseStyle(label string) (domain.Style, error) {
	style, err := domain.ParseStyle(strings.TrimSpace(label))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", app.ErrValidation, err)
	}
	return style, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBytes)).Decode(out); err != nil {
		writeAppError(w, r, fmt.Errorf("%w: invalid JSON body", app.ErrValidation))
		return false
	}
	return true
}

// uploadBodyLimit allows the base64 expansion of limit plus room for the
// other JSON fields and a data URL prefix.
func uploadBodyLimit(limit int64) int64 {
	return (limit+2)/3*4 + 64*1024
}

func pathID(r *http.Request, prefix string) (int64, bool) {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	if raw == "" || strings.Contains(raw, "/") {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		slog.Warn("empty bearer token", "path", r.URL.Path)
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorBody{
		Error:     msg,
		Code:      code,
		RequestID: util.RequestIDFromContext(r.Context()),
	})
}

// writeAppError maps app sentinel errors onto status codes. Unknown errors
// are logged and reported without detail.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, app.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, app.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, app.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, app.ErrRateLimited):
		status, code = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, app.ErrParse):
		status, code = http.StatusBadGateway, "parse_failed"
	case errors.Is(err, app.ErrImageGeneration):
		status, code = http.StatusBadGateway, "image_generation_failed"
	case errors.Is(err, app.ErrGeneration):
		status, code = http.StatusBadGateway, "generation_failed"
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		msg = "internal server error"
	}
	writeError(w, r, status, code, msg)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, user domain.User) bool {
	if s.generateLimiter == nil {
		return true
	}
	if s.generateLimiter.Allow(r.Context(), "user:"+strconv.FormatInt(user.ID, 10)) {
		return true
	}
	retry := int(s.generateLimiter.Window().Seconds())
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeAppError(w, r, app.ErrRateLimited)
	return false
}
