package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockPulse/internal/domain/models"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(nil)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/analysis"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readResult(t *testing.T, conn *websocket.Conn) models.AnalysisResult {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var r models.AnalysisResult
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func TestHub_BroadcastFiltersByTicker(t *testing.T) {
	hub, url := startHub(t)
	all := dial(t, url)
	msft := dial(t, url+"?ticker=msft")
	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(&models.AnalysisResult{Ticker: "AAPL", Signal: models.SignalBuy})
	hub.Broadcast(&models.AnalysisResult{Ticker: "MSFT", Signal: models.SignalSell})

	assert.Equal(t, "AAPL", readResult(t, all).Ticker)
	assert.Equal(t, "MSFT", readResult(t, all).Ticker)

	got := readResult(t, msft)
	assert.Equal(t, "MSFT", got.Ticker)
	assert.Equal(t, models.SignalSell, got.Signal)
}

func TestHub_ClientDisconnectIsRemoved(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(&models.AnalysisResult{Ticker: "AAPL"})
}

func TestHub_CloseRejectsNewClients(t *testing.T) {
	hub, url := startHub(t)
	hub.Close()
	hub.Broadcast(nil)

	conn := dial(t, url)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	assert.Equal(t, 0, hub.Len())
}
