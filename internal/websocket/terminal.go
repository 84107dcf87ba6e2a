package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tesslate/studio-orchestrator/internal/logger"
	"github.com/tesslate/studio-orchestrator/internal/substrate"
)

// Upgrader upgrades an HTTP request to a WebSocket connection for the
// duplex terminal endpoint (WS /projects/:slug/containers/:id/terminal).
// CheckOrigin accepts every origin, and no middleware in internal/httpapi
// checks the Origin header either.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// resizeMessage is the one control frame type a terminal client may send as
// a text message; any other text frame, like every binary frame, is taken
// as raw keystroke bytes and written straight through to the stream.
type resizeMessage struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// ServeTerminal opens a pseudo-terminal on containerID via driver and
// bridges it to conn until either side closes. It blocks until the session
// ends, so callers should run it in its own goroutine per connection.
func ServeTerminal(ctx context.Context, conn *websocket.Conn, driver substrate.Driver, space substrate.SpaceHandle, containerID string) {
	log := logger.WebSocket()
	defer conn.Close()

	term, err := driver.OpenTerminal(ctx, space, containerID)
	if err != nil {
		log.Error().Err(err).Str("container_id", containerID).Msg("failed to open terminal")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	defer term.Close()

	done := make(chan struct{})
	go pumpTerminalOutput(conn, term, done)

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		switch msgType {
		case websocket.BinaryMessage:
			if _, err := term.Write(data); err != nil {
				log.Debug().Err(err).Str("container_id", containerID).Msg("terminal write failed")
			}
		case websocket.TextMessage:
			var resize resizeMessage
			if err := json.Unmarshal(data, &resize); err == nil && resize.Type == "resize" {
				if err := term.Resize(resize.Cols, resize.Rows); err != nil {
					log.Debug().Err(err).Str("container_id", containerID).Msg("terminal resize failed")
				}
				continue
			}
			// Non-control text frames are treated as keystrokes too, so a
			// plain-text terminal client doesn't need to speak binary frames.
			if _, err := term.Write(data); err != nil {
				log.Debug().Err(err).Str("container_id", containerID).Msg("terminal write failed")
			}
		}
	}

	<-done
}

// pumpTerminalOutput copies term's output to conn as binary frames until
// term is closed or a write fails.
func pumpTerminalOutput(conn *websocket.Conn, term substrate.TerminalStream, done chan<- struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := term.Read(buf)
		if n > 0 {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				logger.WebSocket().Debug().Err(err).Msg("terminal stream closed")
			}
			return
		}
	}
}
