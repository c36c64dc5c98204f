package api

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"SignalView/internal/domain/models"
	"SignalView/internal/service/metrics"
	"SignalView/internal/service/ratelimit"
	"SignalView/internal/snapshot"
	"SignalView/internal/usecase"
	xhttp "SignalView/pkg/http"
	applogger "SignalView/pkg/logger"
)

// Invalidation budget per client: a burst of 5, then one every 5 seconds.
const (
	invalidateBurst  = 5
	invalidateRefill = 0.2
)

// SnapshotEchoHandler serves snapshots, KPIs and series over JSON.
type SnapshotEchoHandler struct {
	l           *applogger.Logger
	uc          *usecase.SnapshotUseCase
	rl          *ratelimit.Limiter
	displayRows int
}

// NewSnapshotEchoHandler creates the handler. displayRows is the number of
// rows returned when a request sets no limit.
func NewSnapshotEchoHandler(l *applogger.Logger, uc *usecase.SnapshotUseCase, rl *ratelimit.Limiter, displayRows int) *SnapshotEchoHandler {
	metrics.Register()
	if l == nil {
		l = applogger.Nop()
	}
	if rl == nil {
		rl = ratelimit.New()
	}
	if displayRows <= 0 {
		displayRows = 50
	}
	return &SnapshotEchoHandler{l: l, uc: uc, rl: rl, displayRows: displayRows}
}

func (h *SnapshotEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/snapshot", h.Snapshot)
	g.GET("/kpis", h.KPIs)
	g.GET("/series", h.Series)
	g.POST("/snapshot/invalidate", h.Invalidate)
}

func (h *SnapshotEchoHandler) Snapshot(c echo.Context) error {
	const endpoint = "snapshot"
	defer observe(endpoint, time.Now())

	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := params(req.RowCap, req.Lookback)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	p.Refresh = req.Refresh

	snap, err := h.uc.GetSnapshot(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, endpoint, err)
	}

	limit := req.Limit
	if limit == 0 {
		limit = h.displayRows
	}
	rows := snap.Rows
	if limit < len(rows) {
		rows = rows[:limit]
	}
	xhttp.NoStore(c)
	return xhttp.SuccessResponse(c, &models.SnapshotResponse{
		Key:          snap.Key,
		FetchID:      snap.FetchID.String(),
		Source:       snap.Source,
		ComputedAt:   snap.ComputedAt.UTC().Format(time.RFC3339Nano),
		RowsLoaded:   len(snap.Rows),
		FilesListed:  snap.FilesListed,
		FilesRead:    snap.FilesRead,
		FilesSkipped: snap.FilesSkipped,
		Rows:         h.uc.Label(rows),
		Diagnostics:  snap.Diagnostics,
	})
}

func (h *SnapshotEchoHandler) KPIs(c echo.Context) error {
	const endpoint = "kpis"
	defer observe(endpoint, time.Now())

	req := &models.KPIRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := params(req.RowCap, req.Lookback)
	if err != nil {
		return h.fail(c, endpoint, err)
	}

	k, err := h.uc.KPIs(c.Request().Context(), p)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	xhttp.NoStore(c)
	return xhttp.SuccessResponse(c, k)
}

func (h *SnapshotEchoHandler) Series(c echo.Context) error {
	const endpoint = "series"
	defer observe(endpoint, time.Now())

	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := params(req.RowCap, req.Lookback)
	if err != nil {
		return h.fail(c, endpoint, err)
	}

	pts, err := h.uc.Series(c.Request().Context(), p, req.Symbol)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	xhttp.NoStore(c)
	return xhttp.ListResponse(c, pts, int64(len(pts)))
}

func (h *SnapshotEchoHandler) Invalidate(c echo.Context) error {
	const endpoint = "invalidate"
	defer observe(endpoint, time.Now())

	client := xhttp.ClientKey(c)
	if !h.rl.Allow(client+":invalidate", invalidateBurst, invalidateRefill) {
		h.l.Warn("snapshot invalidate rate limited", applogger.String("remote", client))
		metrics.APIErrors.WithLabelValues(endpoint, "RateLimited").Inc()
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many invalidations"))
	}

	req := &models.InvalidateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	source := req.Source
	if source == "" {
		source = h.uc.Source()
	}
	n := h.uc.InvalidateSource(source)
	return xhttp.AcceptedResponse(c, map[string]interface{}{
		"source":      source,
		"invalidated": n,
	})
}

func (h *SnapshotEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	kind := errorKind(err)
	metrics.APIErrors.WithLabelValues(endpoint, kind).Inc()
	appErr := toAppError(err)
	if appErr.Status >= 500 {
		h.l.Error("snapshot request failed",
			applogger.String("endpoint", endpoint),
			applogger.String("kind", kind),
			applogger.Error(err),
		)
	} else {
		h.l.Warn("snapshot request rejected",
			applogger.String("endpoint", endpoint),
			applogger.String("kind", kind),
			applogger.Error(err),
		)
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// params turns raw query values into snapshot parameters. Zero values are
// filled from configuration by the use case; an explicit lookback=0 asks for
// no time window.
func params(rowCap int, lookback string) (models.SnapshotParams, error) {
	lb, err := models.ParseLookback(lookback)
	if err != nil {
		return models.SnapshotParams{}, snapshot.ConfigError("lookback: %v", err)
	}
	return models.SnapshotParams{
		RowCap:      rowCap,
		Lookback:    lb,
		LookbackSet: strings.TrimSpace(lookback) != "",
	}, nil
}

func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
