package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avinash-1994/Nexxo-sub001/graph"
	"github.com/Avinash-1994/Nexxo-sub001/hmr"
	"github.com/Avinash-1994/Nexxo-sub001/session"
)

func newServer(t *testing.T) (*Server, *httptest.Server, *session.Session) {
	t.Helper()
	root := t.TempDir()
	for name, content := range map[string]string{
		"src/main.ts": "import './a';\n",
		"src/a.ts":    "import './main';\n",
	} {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	sess := session.New(session.Options{Graph: graph.Options{Root: root}, Entries: []string{"src/main.ts"}})
	require.NoError(t, sess.Build(context.Background()))

	s := New(context.Background(), sess)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts, sess
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + HMRPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHMR_ConnectAndBroadcast(t *testing.T) {
	s, ts, sess := newServer(t)
	conn := dial(t, ts)

	hello := readMessage(t, conn)
	assert.Equal(t, TypeConnected, hello.Type)
	assert.Equal(t, sess.ID(), hello.SessionID)
	assert.Equal(t, sess.Hash(), hello.GraphHash)
	assert.Equal(t, 1, s.Clients())

	d := sess.Notify(context.Background(), hmr.FileChange{Path: filepath.Join(sess.Graph().Root(), "src/a.ts"), Kind: hmr.Updated})
	s.BroadcastDecision(d)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeDecision, msg.Type)
	require.NotNil(t, msg.Decision)
	assert.Equal(t, hmr.LevelFullReload, msg.Decision.Level)

	u := sess.Flush(context.Background())
	s.BroadcastUpdate(u)
	msg = readMessage(t, conn)
	assert.Equal(t, TypeUpdate, msg.Type)
	require.NotNil(t, msg.Update)
	assert.Equal(t, 1, msg.Update.Batch)
}

func TestHMR_ClientDisconnect(t *testing.T) {
	s, ts, _ := newServer(t)
	conn := dial(t, ts)
	readMessage(t, conn)
	require.Equal(t, 1, s.Clients())

	conn.Close()
	assert.Eventually(t, func() bool { return s.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestGraphEndpoint(t *testing.T) {
	_, ts, sess := newServer(t)

	resp, err := http.Get(ts.URL + GraphPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		SessionID string        `json:"sessionId"`
		Hash      string        `json:"hash"`
		Nodes     []graph.Node  `json:"nodes"`
		Cycles    []graph.Cycle `json:"cycles"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, sess.ID(), body.SessionID)
	assert.Equal(t, sess.Hash(), body.Hash)
	assert.Len(t, body.Nodes, 2)
	assert.Len(t, body.Cycles, 1)

	post, err := http.Post(ts.URL+GraphPath, "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	_, ts, sess := newServer(t)

	health := func() healthResponse {
		resp, err := http.Get(ts.URL + HealthPath)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body healthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body
	}

	body := health()
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, sess.ID(), body.SessionID)
	assert.Equal(t, sess.Hash(), body.GraphHash)
	assert.Equal(t, 0, body.Clients)

	conn := dial(t, ts)
	readMessage(t, conn)
	assert.Equal(t, 1, health().Clients)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	_, _, sess := newServer(t)
	s := New(context.Background(), sess)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
