package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalView/internal/domain/models"
	"SignalView/internal/service/cache"
	"SignalView/internal/service/signal"
	"SignalView/internal/snapshot"
	"SignalView/internal/usecase"
)

func dialStream(t *testing.T, r *stubReader, query string) *websocket.Conn {
	t.Helper()
	cls, err := signal.NewThresholdClassifier(0.60, 0.40)
	require.NoError(t, err)
	uc := usecase.NewSnapshotUseCase(r, cache.NewSnapshotCache(), cls, usecase.SnapshotDefaults{TTL: time.Minute})

	e := echo.New()
	NewStreamHandler(nil, uc, 20*time.Millisecond).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/snapshot" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStreamPushesKPIs(t *testing.T) {
	conn := dialStream(t, &stubReader{rows: sampleRows()}, "?row_cap=10")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	for i := 0; i < 2; i++ {
		var msg StreamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "kpis", msg.Type)
		require.NotNil(t, msg.Data)
		assert.Equal(t, 3, msg.Data.RowsLoaded)
		assert.Equal(t, models.SignalBuy, msg.Data.LatestSignal)
	}
}

func TestStreamReportsErrors(t *testing.T) {
	conn := dialStream(t, &stubReader{err: snapshot.NewError(snapshot.KindSourceEmpty, nil, "no files")}, "")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg struct {
		Type  string        `json:"type"`
		Error *appErrorBody `json:"error"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "ERR_SOURCE_EMPTY", msg.Error.Code)
}

func TestStreamRejectsBadLookback(t *testing.T) {
	e := echo.New()
	cls, err := signal.NewThresholdClassifier(0.60, 0.40)
	require.NoError(t, err)
	uc := usecase.NewSnapshotUseCase(&stubReader{}, cache.NewSnapshotCache(), cls, usecase.SnapshotDefaults{})
	NewStreamHandler(nil, uc, time.Second).RegisterRoutes(e)

	rec, _ := do(t, e, http.MethodGet, "/ws/snapshot?lookback=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
