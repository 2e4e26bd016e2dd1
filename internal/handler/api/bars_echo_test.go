package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RangePull/internal/usecase"
	xlogger "RangePull/pkg/logger"
)

type fakeEnqueuer struct {
	msgType string
	payload interface{}
	err     error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	f.msgType = msgType
	f.payload = payload
	return f.err
}

func testLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	log, err := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return log
}

func postJSON(t *testing.T, h echo.HandlerFunc, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/export", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return rec, envelope
}

func TestExportEnqueuesJob(t *testing.T) {
	fake := &fakeEnqueuer{}
	h := NewBarsEchoHandler(testLogger(t), nil, nil, nil, fake, 0)

	rec, envelope := postJSON(t, h.Export, `{"symbol":"BTCUSDT","limit":100}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(http.StatusOK), envelope["status"])
	assert.Equal(t, "bar_export", fake.msgType)

	payload, ok := fake.payload.(usecase.ExportPayload)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", payload.Symbol)
	assert.Equal(t, 100, payload.Limit)
}

func TestExportRequiresSymbol(t *testing.T) {
	fake := &fakeEnqueuer{}
	h := NewBarsEchoHandler(testLogger(t), nil, nil, nil, fake, 0)

	_, envelope := postJSON(t, h.Export, `{}`)

	assert.Equal(t, float64(http.StatusBadRequest), envelope["status"])
	assert.Empty(t, fake.msgType)
}

func TestExportWithoutQueue(t *testing.T) {
	h := NewBarsEchoHandler(testLogger(t), nil, nil, nil, nil, 0)

	_, envelope := postJSON(t, h.Export, `{"symbol":"BTCUSDT"}`)

	assert.Equal(t, float64(http.StatusNotFound), envelope["status"])
}

func TestExportEnqueueFailure(t *testing.T) {
	fake := &fakeEnqueuer{err: errors.New("queue not running")}
	h := NewBarsEchoHandler(testLogger(t), nil, nil, nil, fake, 0)

	_, envelope := postJSON(t, h.Export, `{"symbol":"BTCUSDT"}`)

	assert.Equal(t, float64(http.StatusInternalServerError), envelope["status"])
}
