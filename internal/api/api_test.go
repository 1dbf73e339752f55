package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/userdata/internal/api"
	"github.com/mcoot/userdata/internal/api/apierr"
	"github.com/mcoot/userdata/internal/model"
	"github.com/mcoot/userdata/internal/rpc"
	"github.com/mcoot/userdata/internal/services/gateway"
	"github.com/mcoot/userdata/internal/testutil"
)

// pingHandler answers ping and notes when it is closed
type pingHandler struct {
	closed chan struct{}
}

func newPingHandler() *pingHandler {
	return &pingHandler{closed: make(chan struct{})}
}

func (h *pingHandler) Serve(req *rpc.Request) {
	if req.Method != "ping" {
		req.Fail(model.ErrInvalidCapability)
		return
	}
	req.Reply("pong")
}

func (h *pingHandler) Closed() {
	close(h.closed)
}

type testServer struct {
	server   *httptest.Server
	loop     *rpc.Loop
	registry *prometheus.Registry
	queries  chan url.Values
}

func newTestServer(t *testing.T, accept api.Acceptor) *testServer {
	t.Helper()

	loop := rpc.NewLoop(testutil.NopLogger())
	go loop.Run()
	t.Cleanup(loop.Close)

	ts := &testServer{
		loop:     loop,
		registry: prometheus.NewRegistry(),
		queries:  make(chan url.Values, 4),
	}
	router := api.NewRouter(api.RouterConfig{
		Logger:    testutil.NopLogger(),
		Component: "test",
		Gatherer:  ts.registry,
		Websocket: api.WebsocketHandler(api.WebsocketConfig{
			Loop:   loop,
			Logger: testutil.NopLogger(),
			Check:  gateway.CheckQuery,
			Accept: func(peer rpc.Peer, query url.Values) (rpc.Handler, error) {
				ts.queries <- query
				return accept(peer, query)
			},
		}),
	})
	ts.server = httptest.NewServer(router)
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) wsURL(query string) string {
	u := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/websocket"
	if query != "" {
		u += "?" + query
	}
	return u
}

func acceptPing(rpc.Peer, url.Values) (rpc.Handler, error) {
	return newPingHandler(), nil
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, acceptPing)

	resp, err := http.Get(ts.server.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["component"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, acceptPing)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "userdata_test_total", Help: "test"})
	ts.registry.MustRegister(counter)
	counter.Add(3)

	resp, err := http.Get(ts.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "userdata_test_total 3")
}

func TestMalformedHandshakeIsRefusedBeforeUpgrade(t *testing.T) {
	ts := newTestServer(t, acceptPing)

	for _, query := range []string{
		"token=abc&uid=1",
		"token=abc&uid=x&name=bob",
		"token=a&token=b&uid=1&name=bob",
	} {
		t.Run(query, func(t *testing.T) {
			resp, err := http.Get(ts.server.URL + "/websocket?" + query)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body apierr.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, apierr.CodeInvalidHandshake, body.Error.Code)
		})
	}
	assert.Empty(t, ts.queries)
}

func TestWebsocketServesAcceptedHandler(t *testing.T) {
	ts := newTestServer(t, acceptPing)

	client, err := rpc.Dial(context.Background(), ts.wsURL("token=abc&uid=4&name=bob"), ts.loop, testutil.NopLogger())
	require.NoError(t, err)
	local := newPingHandler()
	client.Start(local)
	defer client.Close()

	select {
	case q := <-ts.queries:
		assert.Equal(t, "abc", q.Get("token"))
		assert.Equal(t, "4", q.Get("uid"))
	case <-time.After(5 * time.Second):
		t.Fatal("acceptor not called")
	}

	type reply struct {
		value string
		err   error
	}
	replies := make(chan reply, 1)
	require.NoError(t, client.Call("ping", nil, func(raw json.RawMessage, err error) {
		var r reply
		r.err = err
		if err == nil {
			r.err = rpc.DecodeResult(raw, &r.value)
		}
		replies <- r
	}))
	select {
	case r := <-replies:
		require.NoError(t, r.err)
		assert.Equal(t, "pong", r.value)
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
	}
}

func TestRejectedConnectionIsClosed(t *testing.T) {
	ts := newTestServer(t, func(rpc.Peer, url.Values) (rpc.Handler, error) {
		return nil, errors.New("not today")
	})

	client, err := rpc.Dial(context.Background(), ts.wsURL(""), ts.loop, testutil.NopLogger())
	require.NoError(t, err)
	local := newPingHandler()
	client.Start(local)

	select {
	case <-local.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("rejected connection stayed open")
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	ts := newTestServer(t, acceptPing)

	resp, err := http.Get(ts.server.URL + "/api/v1/nothing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := api.DefaultServerConfig()
	cfg.ShutdownTimeout = time.Second
	handler := api.NewRouter(api.RouterConfig{Logger: testutil.NopLogger(), Component: "test"})
	server := api.NewServer(handler, cfg, testutil.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
