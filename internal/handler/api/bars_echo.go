package api

import (
	"fmt"
	"time"

	models "RangePull/internal/domain/models"
	domrepo "RangePull/internal/domain/repository"
	"RangePull/internal/service/ratelimit"
	"RangePull/internal/streaming"
	"RangePull/internal/usecase"
	xcache "RangePull/pkg/cache"
	xhttp "RangePull/pkg/http"
	xlogger "RangePull/pkg/logger"
	"RangePull/pkg/queue"
	"RangePull/pkg/timeutil"

	"github.com/labstack/echo/v4"
)

// BarsEchoHandler serves the read-only bar surface: persisted bars,
// per-symbol session stats, and the in-memory replay window.
type BarsEchoHandler struct {
	logger  *xlogger.Logger
	engine  *streaming.Engine
	storage domrepo.BarStorage
	cache   xcache.Service
	exports queue.Enqueuer
	limiter *ratelimit.Limiter
	barsTTL time.Duration
}

func NewBarsEchoHandler(logger *xlogger.Logger, engine *streaming.Engine, storage domrepo.BarStorage, cache xcache.Service, exports queue.Enqueuer, barsTTL time.Duration) *BarsEchoHandler {
	if barsTTL <= 0 {
		barsTTL = 15 * time.Second
	}
	return &BarsEchoHandler{
		logger:  logger,
		engine:  engine,
		storage: storage,
		cache:   cache,
		exports: exports,
		limiter: ratelimit.New(),
		barsTTL: barsTTL,
	}
}

func (h *BarsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", h.rateLimit)
	g.GET("/bars", h.Bars)
	g.GET("/stats", h.Stats)
	g.GET("/replay", h.Replay)
	g.POST("/export", h.Export)
}

// rateLimit applies a per-client token bucket: burst of 20, refill 10/s.
func (h *BarsEchoHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.limiter.Allow(c.RealIP(), 20, 10) {
			return echo.NewHTTPError(429, "rate limit exceeded")
		}
		return next(c)
	}
}

// Bars returns persisted bars for a symbol and time window. Results are
// cached briefly; historical bars never change, so staleness only affects
// the window's leading edge.
func (h *BarsEchoHandler) Bars(c echo.Context) error {
	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.storage == nil {
		return xhttp.NotFoundResponse(c, "bar storage not configured")
	}

	now := time.Now().UTC()
	from := timeutil.ParseTimeDefault(req.From, now.Add(-24*time.Hour))
	to := timeutil.ParseTimeDefault(req.To, now)

	ctx := c.Request().Context()
	key := fmt.Sprintf("bars:%s:%d:%d:%d", req.Symbol, from.UnixMicro(), to.UnixMicro(), req.Limit)

	if h.cache != nil {
		var cached []*models.RangeBar
		if err := h.cache.Get(ctx, key, &cached); err == nil {
			return xhttp.ListResponse(c, cached, int64(len(cached)))
		}
	}

	bars, err := h.storage.Query(ctx, req.Symbol, from, to, req.Limit)
	if err != nil {
		h.logger.Error("bars query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, key, bars, h.barsTTL); err != nil {
			h.logger.Warn("bars cache set failed", xlogger.Error(err))
		}
	}
	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

// Stats returns live session snapshots. With a symbol it returns one
// session; without, every active session.
func (h *BarsEchoHandler) Stats(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	stats := h.engine.Stats()
	if symbol == "" {
		return xhttp.SuccessResponse(c, stats)
	}
	for _, s := range stats {
		if s.Symbol == symbol {
			return xhttp.SuccessResponse(c, s)
		}
	}
	return xhttp.NotFoundResponse(c, fmt.Sprintf("no session for symbol %s", symbol))
}

// Replay returns recent bars from the in-memory replay window, oldest
// first. Served straight from the engine; no storage round-trip.
func (h *BarsEchoHandler) Replay(c echo.Context) error {
	req := &models.ReplayRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	bars := h.engine.Replay(req.Symbol, req.Limit)
	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

// Export enqueues a background job that re-publishes a window of persisted
// bars to the message backend. Returns 404 when the job queue is not
// configured (redis disabled).
func (h *BarsEchoHandler) Export(c echo.Context) error {
	if h.exports == nil {
		return xhttp.NotFoundResponse(c, "export queue not configured")
	}

	req := &models.ExportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	payload := usecase.ExportPayload{
		Symbol: req.Symbol,
		From:   req.From,
		To:     req.To,
		Limit:  req.Limit,
	}
	if err := h.exports.Enqueue(c.Request().Context(), "bar_export", payload); err != nil {
		h.logger.Error("export enqueue error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "queued"})
}
