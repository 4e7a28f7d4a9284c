package livereload

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/livewatch/internal/errors"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	s := NewServer(opts, nil, slog.New(slog.DiscardHandler))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

// startTestServer starts s on an ephemeral port and returns its port.
func startTestServer(t *testing.T, s *Server) int {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, s.Start(ctx, 0, nil, nil))
	return s.Addr().(*net.TCPAddr).Port
}

func serve(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "192.0.2.1:4242"
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestServer_Welcome(t *testing.T) {
	s := newTestServer(t, Options{Version: "1.2.3"})

	rec := serve(t, s, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Welcome", body["tinylr"])
	assert.Equal(t, "1.2.3", body["version"])
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := serve(t, s, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 0, body["clients"])
}

func TestServer_Changed(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		body   string
		files  []any
	}{
		{"post", http.MethodPost, "/changed", `{"files":["a.js","css/b.css"]}`, []any{"a.js", "css/b.css"}},
		{"query", http.MethodGet, "/changed?files=a.js,%20css/b.css,", "", []any{"a.js", "css/b.css"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Options{})

			rec := serve(t, s, tt.method, tt.target, tt.body)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, tt.files, body["files"])
			assert.Empty(t, body["clients"])
		})
	}
}

func TestServer_ChangedWithoutFiles(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := serve(t, s, http.MethodGet, "/changed", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(domainerrors.CodeValidation), decode(t, rec)["code"])
}

func TestServer_ChangedIsRateLimited(t *testing.T) {
	s := newTestServer(t, Options{ChangedRate: 0.001, ChangedBurst: 1})

	first := serve(t, s, http.MethodGet, "/changed?files=a.js", "")
	second := serve(t, s, http.MethodGet, "/changed?files=a.js", "")

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, string(domainerrors.CodeRateLimited), decode(t, second)["code"])
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/changed", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_LiveReloadRequiresUpgrade(t *testing.T) {
	s := newTestServer(t, Options{})

	rec := serve(t, s, http.MethodGet, "/livereload", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(domainerrors.CodeValidation), decode(t, rec)["code"])
}

func dialLiveReload(t *testing.T, port int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/livereload", port), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func handshake(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(clientMessage{Command: "hello", Protocols: []string{protocolOfficial7}}))

	var hello helloMessage
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Command)
	assert.Equal(t, []string{protocolOfficial7}, hello.Protocols)
	assert.Equal(t, serverName, hello.ServerName)
}

func TestServer_WebSocketReload(t *testing.T) {
	s := newTestServer(t, Options{})
	port := startTestServer(t, s)

	conn := dialLiveReload(t, port)
	handshake(t, conn)
	require.NoError(t, conn.WriteJSON(clientMessage{Command: "info", URL: "http://localhost:3000/"}))

	require.NoError(t, s.Notify(context.Background(), []string{"css/app.css", "index.html"}))

	for _, want := range []string{"css/app.css", "index.html"} {
		var msg reloadMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, reloadMessage{Command: "reload", Path: want, LiveCSS: true, LiveImg: true}, msg)
	}
}

func TestServer_ChangedReachesWebSocketClients(t *testing.T) {
	s := newTestServer(t, Options{})
	port := startTestServer(t, s)

	conn := dialLiveReload(t, port)
	handshake(t, conn)

	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/changed", port), "application/json",
		strings.NewReader(`{"files":["app.js"]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ChangedOutput
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body.Body))
	assert.Len(t, body.Body.Clients, 1)

	var msg reloadMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "app.js", msg.Path)
}

func TestServer_EventStream(t *testing.T) {
	s := newTestServer(t, Options{})
	port := startTestServer(t, s)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/events", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	next := func() string {
		select {
		case l := <-lines:
			return l
		case <-time.After(5 * time.Second):
			t.Fatal("no event received")
			return ""
		}
	}

	assert.Equal(t, "event: connected", next())
	assert.True(t, strings.HasPrefix(next(), "data: "))
	assert.Empty(t, next())

	require.NoError(t, s.Notify(context.Background(), []string{"app.js"}))

	assert.Equal(t, "event: reload", next())
	var event Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(next(), "data: ")), &event))
	assert.Equal(t, EventReload, event.Type)
	assert.Equal(t, "app.js", event.Path)
}

func TestServer_ShutdownClosesClients(t *testing.T) {
	s := newTestServer(t, Options{})
	port := startTestServer(t, s)

	conn := dialLiveReload(t, port)
	handshake(t, conn)
	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Shutdown(context.Background()))

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, s.Hub().ClientCount())
	assert.Error(t, s.Notify(context.Background(), []string{"a.js"}))
	assert.NoError(t, s.Shutdown(context.Background()))
}

func TestServer_PortInUse(t *testing.T) {
	taken, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer taken.Close()
	port := taken.Addr().(*net.TCPAddr).Port

	s := newTestServer(t, Options{})
	err = s.Start(context.Background(), port, nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrPortInUse)
	assert.Contains(t, err.Error(), fmt.Sprintf("Port %d is already in use by another process.", port))
}

func selfSigned(t *testing.T) (keyPEM, certPEM []byte) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return keyPEM, certPEM
}

func TestServer_TLS(t *testing.T) {
	key, cert := selfSigned(t)
	s := newTestServer(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, 0, key, cert))
	port := s.Addr().(*net.TCPAddr).Port

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
	}}
	resp, err := client.Get(fmt.Sprintf("https://127.0.0.1:%d/health", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_InvalidKeyPair(t *testing.T) {
	s := newTestServer(t, Options{})

	err := s.Start(context.Background(), 0, []byte("not a key"), []byte("not a cert"))

	assert.ErrorIs(t, err, domainerrors.ErrInvalidConfig)
}

func TestServer_StopsWithContext(t *testing.T) {
	s := newTestServer(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, 0, nil, nil))
	port := s.Addr().(*net.TCPAddr).Port

	cancel()

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 50*time.Millisecond)
		if err != nil {
			return true
		}
		_ = conn.Close()
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestIsOriginAllowed(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/livereload", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, isOriginAllowed(req("http://evil.test"), nil))
	assert.True(t, isOriginAllowed(req(""), []string{"localhost"}))
	assert.True(t, isOriginAllowed(req("http://localhost:3000"), []string{"localhost"}))
	assert.True(t, isOriginAllowed(req("http://localhost:3000"), []string{"http://localhost:3000"}))
	assert.False(t, isOriginAllowed(req("http://evil.test"), []string{"localhost"}))
}

func TestHostOnly(t *testing.T) {
	assert.Equal(t, "192.0.2.1", hostOnly("192.0.2.1:4242"))
	assert.Equal(t, "::1", hostOnly("[::1]:4242"))
	assert.Equal(t, "192.0.2.1", hostOnly("192.0.2.1"))
}
