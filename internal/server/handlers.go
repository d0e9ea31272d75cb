package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"gremd/internal/logger"
	"gremd/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleGremlin speaks the request protocol as JSON frames over a WebSocket.
// Each frame is handled on its own goroutine so an in-flight evaluation for
// one session never blocks requests for other sessions arriving on the same
// connection; serialization within a session is the session's own concern.
func (s *Server) HandleGremlin(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger.Logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	write := func(resp *protocol.ResponseMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(resp); err != nil {
			logger.Logger.Warn().Err(err).Msg("failed to write response")
		}
	}

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var msg protocol.RequestMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			write(&protocol.ResponseMessage{
				RequestID: msg.RequestID,
				Status: protocol.ResponseStatus{
					Code:    protocol.StatusRequestErrorInvalidArgs,
					Message: "could not deserialize request message",
				},
			})
			continue
		}

		wg.Add(1)
		go func(msg protocol.RequestMessage) {
			defer wg.Done()
			write(s.Processor.Handle(ctx, &msg))
		}(msg)
	}

	wg.Wait()
	logger.Logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("client disconnected")
}
