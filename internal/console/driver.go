package console

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gremd/internal/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	submitTimeout    = 3 * time.Minute
)

// RemoteError is a non-success status returned by the server for one
// submission.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// IsRequestError reports whether the failure was the client's own fault.
func (e *RemoteError) IsRequestError() bool {
	return e.Code == protocol.StatusRequestErrorInvalidArgs
}

// Driver submits scripts to a remote session endpoint over one WebSocket
// connection. Options set through Configure take effect on the next Connect.
type Driver struct {
	mu   sync.Mutex
	conn *websocket.Conn

	// staged by Configure, adopted by Connect
	nextSession  string
	nextLanguage string

	sessionID string
	language  string
	aliases   map[string]string
}

func NewDriver() *Driver {
	return &Driver{}
}

// Configure stages session-scoped options for the next Connect. Supported
// keys: "session" (explicit session id), "language" (script dialect),
// "aliases" (local name to global name map applied to every submission).
func (d *Driver) Configure(args map[string]interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, raw := range args {
		switch key {
		case "session":
			s, ok := raw.(string)
			if !ok || s == "" {
				return fmt.Errorf("configure: session must be a non-empty string")
			}
			d.nextSession = s
		case "language":
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("configure: language must be a string")
			}
			d.nextLanguage = s
		case "aliases":
			m, ok := raw.(map[string]string)
			if !ok {
				return fmt.Errorf("configure: aliases must be a map of strings")
			}
			d.aliases = m
		default:
			return fmt.Errorf("configure: unknown option %q", key)
		}
	}
	return nil
}

// Connect dials the remote endpoint and attaches the staged options. A fresh
// session id is generated when none was configured.
func (d *Driver) Connect(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		return fmt.Errorf("already connected; close the current remote first")
	}

	dialer := &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	d.conn = conn
	d.sessionID = d.nextSession
	if d.sessionID == "" {
		d.sessionID = uuid.New().String()
	}
	d.language = d.nextLanguage
	return nil
}

// Session returns the session id submissions are tied to.
func (d *Driver) Session() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// Submit sends one eval request and waits for its response. Returns the raw
// result payload on success (nil for a no-content response) and a RemoteError
// for any non-success status.
func (d *Driver) Submit(script string) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	args := map[string]interface{}{
		protocol.ArgsSession: d.sessionID,
		protocol.ArgsGremlin: script,
	}
	if d.language != "" {
		args[protocol.ArgsLanguage] = d.language
	}
	if len(d.aliases) > 0 {
		args[protocol.ArgsAliases] = d.aliases
	}

	req := protocol.RequestMessage{
		RequestID: uuid.New().String(),
		Op:        protocol.OpEval,
		Args:      args,
	}
	return d.roundTrip(&req)
}

// CloseSession asks the server to kill the remote session.
func (d *Driver) CloseSession() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return fmt.Errorf("not connected")
	}

	req := protocol.RequestMessage{
		RequestID: uuid.New().String(),
		Op:        protocol.OpClose,
		Args:      map[string]interface{}{protocol.ArgsSession: d.sessionID},
	}
	_, err := d.roundTrip(&req)
	return err
}

// Close tears down the connection without killing the remote session.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// roundTrip writes one request and reads frames until the matching response
// arrives. Responses for other request ids are discarded; there is one
// in-flight submission per driver.
func (d *Driver) roundTrip(req *protocol.RequestMessage) (interface{}, error) {
	if err := d.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	deadline := time.Now().Add(submitTimeout)
	if err := d.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	for {
		_, data, err := d.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		var resp protocol.ResponseMessage
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("malformed response frame: %w", err)
		}
		if resp.RequestID != req.RequestID {
			continue
		}

		switch resp.Status.Code {
		case protocol.StatusSuccess:
			return resp.Result.Data, nil
		case protocol.StatusNoContent:
			return nil, nil
		default:
			return nil, &RemoteError{Code: resp.Status.Code, Message: resp.Status.Message}
		}
	}
}
