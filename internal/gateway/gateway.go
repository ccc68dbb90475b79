// Package gateway is the provider-side reference server. It validates
// incoming request bodies, runs them through an engine, and emits the
// envelope frames in their fixed order: prologue, then the response or
// chunk run, then the epilogue carrying the public payload and the charge.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"meterwire/internal/config"
	"meterwire/internal/engine"
	"meterwire/internal/protocol"
	"meterwire/internal/protocol/chat"
	"meterwire/internal/protocol/completions"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 45 * time.Second
	idleTimeout         = 120 * time.Second
)

// Server carries the envelope protocol over HTTP: ND-JSON frames for
// non-streaming exchanges, SSE data frames for streaming ones.
type Server struct {
	cfg      config.Config
	registry *engine.Registry
	app      *echo.Echo
	address  string

	// syncClock issues completed_at_sync / created_at_sync values: a logical
	// timestamp independent of wall clocks, strictly increasing per gateway.
	syncClock atomic.Int64
}

// New constructs the gateway wired with routing and middleware.
func New(cfg config.Config, registry *engine.Registry) (*Server, error) {
	if registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:      cfg,
		registry: registry,
		app:      e,
		address:  fmt.Sprintf(":%d", cfg.Server.Port),
	}

	e.GET("/health", srv.handleHealth)
	e.POST("/v1/completions", srv.handleCompletions)
	e.POST("/v1/chat/completions", srv.handleChatCompletions)

	return srv, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting gateway", "addr", s.address, "offers", len(s.cfg.Offers))

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("gateway shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "protocol": protocol.ProtocolID})
}

func (s *Server) handleCompletions(c echo.Context) error {
	body, err := readRequestBody(c)
	if err != nil {
		return err
	}

	req, perr := completions.ParseRequest(body)
	if perr != nil {
		return s.reject(c, probeStreamFlag(body), protocol.ResponsePrologue{
			Status:  protocol.StatusProtocolViolation,
			Message: perr.Error(),
		})
	}

	offer, eng, err := s.registry.Lookup(req.Model)
	if err != nil {
		return s.reject(c, req.WantsStream(), protocol.ResponsePrologue{
			Status:  protocol.StatusProtocolViolation,
			Message: err.Error(),
		})
	}

	result, err := eng.Complete(c.Request().Context(), req)
	if err != nil {
		slog.Error("engine completion failed", "model", req.Model, "err", err)
		return s.reject(c, req.WantsStream(), protocol.ResponsePrologue{
			Status:  protocol.StatusServiceError,
			Message: "completion failed",
		})
	}

	payload, err := completions.NewPublicPayload(req, result.Usage).Encode()
	if err != nil {
		return err
	}

	prologue := s.okPrologue()
	if req.WantsStream() {
		return s.streamCompletion(c, req, result, prologue, offer, payload)
	}
	return s.respondCompletion(c, req, result, prologue, offer, payload)
}

func (s *Server) handleChatCompletions(c echo.Context) error {
	body, err := readRequestBody(c)
	if err != nil {
		return err
	}

	req, perr := chat.ParseRequest(body)
	if perr != nil {
		return s.reject(c, probeStreamFlag(body), protocol.ResponsePrologue{
			Status:  protocol.StatusProtocolViolation,
			Message: perr.Error(),
		})
	}

	offer, eng, err := s.registry.Lookup(req.Model)
	if err != nil {
		return s.reject(c, req.WantsStream(), protocol.ResponsePrologue{
			Status:  protocol.StatusProtocolViolation,
			Message: err.Error(),
		})
	}

	result, err := eng.ChatComplete(c.Request().Context(), req)
	if err != nil {
		slog.Error("engine chat completion failed", "model", req.Model, "err", err)
		return s.reject(c, req.WantsStream(), protocol.ResponsePrologue{
			Status:  protocol.StatusServiceError,
			Message: "chat completion failed",
		})
	}

	payload, err := chat.NewPublicPayload(req, result.Usage).Encode()
	if err != nil {
		return err
	}

	prologue := s.okPrologue()
	if req.WantsStream() {
		return s.streamChatCompletion(c, req, result, prologue, offer, payload)
	}
	return s.respondChatCompletion(c, req, result, prologue, offer, payload)
}

func (s *Server) okPrologue() protocol.ResponsePrologue {
	sync := s.syncClock.Add(1)
	return protocol.ResponsePrologue{
		Status:        protocol.StatusOk,
		ProviderJobID: newID("job"),
		CreatedAtSync: &sync,
	}
}

// buildEpilogue prices the final usage against the offer. A trial allowance
// that covers the whole charge yields a null balance delta.
func (s *Server) buildEpilogue(offer protocol.Offer, usage protocol.Usage, payload string) (protocol.Epilogue, error) {
	charge, err := protocol.CalcCost(offer, usage)
	if err != nil {
		return protocol.Epilogue{}, err
	}

	balance := &charge
	if offer.Trial != nil {
		covered, err := trialCovers(*offer.Trial, charge)
		if err != nil {
			return protocol.Epilogue{}, err
		}
		if covered {
			balance = nil
		}
	}

	return protocol.Epilogue{
		PublicPayload:   payload,
		BalanceDelta:    balance,
		CompletedAtSync: s.syncClock.Add(1),
	}, nil
}

func trialCovers(trial protocol.Price, charge string) (bool, error) {
	allowance, err := trial.Int()
	if err != nil {
		return false, fmt.Errorf("%w: trial: %v", protocol.ErrInvalidOffer, err)
	}
	chargeInt, err := protocol.Price{Pol: charge}.Int()
	if err != nil {
		return false, err
	}
	return chargeInt.Cmp(allowance) <= 0, nil
}

// reject writes a terminal non-Ok prologue in the framing the requester
// asked for. Rejected exchanges carry no epilogue.
func (s *Server) reject(c echo.Context, streaming bool, p protocol.ResponsePrologue) error {
	if !streaming {
		w, err := startNDJSON(c)
		if err != nil {
			return err
		}
		return w.writeFrame(p)
	}
	w, err := startSSE(c)
	if err != nil {
		return err
	}
	if err := w.writeFrame(p); err != nil {
		return err
	}
	return w.done()
}

func readRequestBody(c echo.Context) ([]byte, error) {
	req := c.Request()
	defer req.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes))
	if err != nil {
		return nil, &requestError{
			Status:  http.StatusRequestEntityTooLarge,
			Message: "request body exceeds the size limit",
			Type:    "invalid_request_error",
		}
	}
	if len(body) == 0 {
		return nil, &requestError{
			Status:  http.StatusBadRequest,
			Message: "request body is required",
			Type:    "invalid_request_error",
		}
	}
	return body, nil
}

// probeStreamFlag picks the framing for a rejection when the body never
// validated: best effort, defaulting to non-streaming.
func probeStreamFlag(body []byte) bool {
	var probe struct {
		Stream bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Stream
}
