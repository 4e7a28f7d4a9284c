package livereload

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	domainerrors "github.com/listenupapp/livewatch/internal/errors"
	"github.com/listenupapp/livewatch/internal/http/response"
)

const writeWait = 10 * time.Second

// handleWebSocket speaks the LiveReload protocol: the client opens with a
// hello, the server answers with its own, then pushes reload commands.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		response.Error(w, http.StatusBadRequest, domainerrors.CodeValidation,
			"expected a websocket upgrade", s.logger)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, s.opts.AllowedOrigins)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client, err := s.hub.Connect(KindWebSocket)
	if err != nil {
		s.logger.Error("failed to register live reload client", slog.String("error", err.Error()))
		return
	}
	defer s.hub.Disconnect(client.ID)

	log := s.logger.With(slog.String("client_id", client.ID))

	incoming := make(chan clientMessage)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case incoming <- msg:
			case <-client.Done:
				return
			}
		}
	}()

	write := func(v any) error {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return conn.WriteJSON(v)
	}

	greeted := false
	for {
		select {
		case msg := <-incoming:
			switch msg.Command {
			case "hello":
				if err := write(newHello()); err != nil {
					return
				}
				greeted = true
			case "info":
				log.Debug("live reload client info", slog.String("url", msg.URL))
			}

		case event, ok := <-client.Events:
			if !ok {
				goingAway(conn)
				return
			}
			if event.Type == EventHeartbeat {
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
				continue
			}
			if !greeted {
				continue
			}
			if err := write(newReload(event.Path)); err != nil {
				log.Debug("client disconnected during send")
				return
			}

		case <-readDone:
			return

		case <-client.Done:
			goingAway(conn)
			return
		}
	}
}

func goingAway(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(writeWait))
}

// isOriginAllowed accepts every origin when allowed is empty, since pages
// under live reload are usually served from another port.
func isOriginAllowed(r *http.Request, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := parsed.Hostname()

	for _, a := range allowed {
		if a == "*" || strings.EqualFold(origin, a) || strings.EqualFold(originHost, a) {
			return true
		}
	}
	return false
}
