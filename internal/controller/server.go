package controller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pagebridge/internal/config"
	"github.com/xkilldash9x/pagebridge/internal/protocol"
)

// HiddenQueryParam marks a page connecting with the hidden launch flag.
const HiddenQueryParam = "hidden"

// Server exposes a Controller over websocket plus a small admin API.
type Server struct {
	ctrl     *Controller
	cfg      config.ControllerConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
	router   chi.Router

	// baseCtx ends every page connection on shutdown.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer builds the routes for ctrl.
func NewServer(ctrl *Controller, cfg config.ControllerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ctrl:   ctrl,
		cfg:    cfg,
		logger: logger.Named("controller_server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Pages are local processes, not browsers; there is no origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(cfg.Path, s.handleBridge)
	r.Get("/healthz", s.handleHealthCheck)
	r.Route("/api/v1/windows", func(r chi.Router) {
		r.Get("/", s.handleListWindows)
		r.Get("/{windowID}", s.handleGetWindow)
		r.Post("/{windowID}/visibility", s.handleSetVisibility)
		r.Post("/{windowID}/navigate", s.handleNavigate)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until ctx is done, then shuts down.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Controller listening", zap.String("address", l.Addr().String()), zap.String("path", s.cfg.Path))
		errCh <- httpServer.Serve(l)
	}()

	select {
	case err := <-errCh:
		s.cancelBase()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Controller shutting down")
	s.cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("controller shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on cfg.Address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, l)
}

// Close ends every page connection.
func (s *Server) Close() {
	s.cancelBase()
}

func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	hidden, _ := strconv.ParseBool(r.URL.Query().Get(HiddenQueryParam))

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &conn{
		ws:           ws,
		writeTimeout: s.cfg.WriteTimeout,
		limiter:      rate.NewLimiter(rate.Limit(s.cfg.OneWayRate), s.cfg.OneWayBurst),
	}
	session := s.ctrl.Open(c, hidden)
	c.logger = s.logger.With(zap.Int64("window_id", session.WindowID()))

	defer func() {
		session.Close()
		_ = ws.Close()
	}()
	c.serve(s.baseCtx, session)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleListWindows(w http.ResponseWriter, _ *http.Request) {
	s.respondWithJSON(w, http.StatusOK, s.ctrl.Windows())
}

func (s *Server) handleGetWindow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.windowID(w, r)
	if !ok {
		return
	}
	info, err := s.ctrl.Window(id)
	if err != nil {
		s.respondWithControllerError(w, err)
		return
	}
	s.respondWithJSON(w, http.StatusOK, info)
}

type visibilityRequest struct {
	State string `json:"state"`
}

func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	id, ok := s.windowID(w, r)
	if !ok {
		return
	}
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	state, err := protocol.ParseVisibilityState(req.State)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ctrl.SetVisibility(id, state); err != nil {
		s.respondWithControllerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type navigateRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.windowID(w, r)
	if !ok {
		return
	}
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.respondWithError(w, http.StatusBadRequest, "Request body must carry a non-empty url")
		return
	}
	if err := s.ctrl.Navigate(id, req.URL); err != nil {
		s.respondWithControllerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) windowID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "windowID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid window id %q", raw))
		return 0, false
	}
	return id, true
}

func (s *Server) respondWithControllerError(w http.ResponseWriter, err error) {
	var notFound *WindowNotFoundError
	if errors.As(err, &notFound) {
		s.respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondWithError(w, http.StatusConflict, err.Error())
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
