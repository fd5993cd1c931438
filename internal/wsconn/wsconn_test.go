package wsconn_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"pricerelay/internal/wsconn"
)

// serve accepts one connection and hands it back to the test.
func serve(t *testing.T, origins []string) (*httptest.Server, <-chan *wsconn.Conn) {
	t.Helper()

	accepted := make(chan *wsconn.Conn, 1)
	up := wsconn.NewUpgrader(origins)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := wsconn.Accept(w, r, up, wsconn.Options{}, nil)
		if err != nil {
			return
		}
		accepted <- c
	}))
	t.Cleanup(srv.Close)
	return srv, accepted
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	client, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func next(t *testing.T, ch <-chan *wsconn.Conn) *wsconn.Conn {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("connection not accepted")
		return nil
	}
}

func TestWriteFrame_DeliversTextMessage(t *testing.T) {
	t.Parallel()

	srv, accepted := serve(t, []string{"*"})
	client := dial(t, srv)
	conn := next(t, accepted)
	defer conn.Close()

	require.NoError(t, conn.WriteFrame([]byte(`[{"symbol":"AAPL"}]`)))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := client.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	require.Equal(t, `[{"symbol":"AAPL"}]`, string(data))
}

func TestDone_ClosedWhenPeerLeaves(t *testing.T) {
	t.Parallel()

	srv, accepted := serve(t, nil)
	client := dial(t, srv)
	conn := next(t, accepted)
	defer conn.Close()

	require.NoError(t, client.Close())

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after peer left")
	}
	require.ErrorIs(t, conn.WriteFrame([]byte("x")), wsconn.ErrClosed)
}

func TestClose_SendsNormalClosure(t *testing.T) {
	t.Parallel()

	srv, accepted := serve(t, nil)
	client := dial(t, srv)
	conn := next(t, accepted)

	require.NoError(t, conn.Close())
	_ = conn.Close()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	select {
	case <-conn.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{name: "wildcard", origins: []string{"*"}, origin: "https://evil.example", want: true},
		{name: "listed", origins: []string{"https://app.example"}, origin: "https://app.example", want: true},
		{name: "unlisted", origins: []string{"https://app.example"}, origin: "https://other.example", want: false},
		{name: "no origin header", origins: []string{"https://app.example"}, origin: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.want, wsconn.NewUpgrader(tt.origins).CheckOrigin(r))
		})
	}
}

func TestAccept_RejectsDisallowedOrigin(t *testing.T) {
	t.Parallel()

	srv, _ := serve(t, []string{"https://app.example"})
	header := http.Header{"Origin": []string{"https://other.example"}}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
