package wsconn

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer upgrades and copies every byte it reads back to the peer.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := New(ws)
		defer conn.Close()
		io.Copy(conn, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestConn_MessagesAreOneStream(t *testing.T) {
	ws := dial(t, echoServer(t))

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte("hel")))
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte("lo")))

	conn := New(ws)
	got := make([]byte, 5)
	_, err := io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestConn_WriteIsBinaryMessage(t *testing.T) {
	ws := dial(t, echoServer(t))
	conn := New(ws)

	n, err := conn.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	kind, payload, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	ws := dial(t, echoServer(t))
	conn := New(ws)

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
}
