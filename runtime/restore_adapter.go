package runtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stepherg/gestaltmgr"
	"github.com/stepherg/gestaltmgr/restore"
)

// RestoreAdapter maintains a JSON-RPC channel to the restore gateway over a
// websocket. The gateway owns the backup/restore wire protocol; this
// adapter only frames payloads and surfaces gateway error strings verbatim
// so failure classification can inspect them.
//
// Request shape: {"jsonrpc":"2.0","id":"<uuid>","method":...,"params":...}.
// Responses are matched by id. Messages without an id are notifications and
// are currently ignored beyond logging hooks upstream.
//
// A read failure drops the connection but leaves the adapter open; the next
// call redials. Only Close makes the adapter permanently unusable.
type RestoreAdapter struct {
	baseWS string

	dialer *websocket.Dialer
	connMu sync.RWMutex
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan json.RawMessage

	closed chan struct{}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type restoreFileParam struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Contents string `json:"contents"` // base64
}

type restoreSubmitParams struct {
	UDID   string             `json:"udid"`
	Reboot bool               `json:"reboot"`
	Files  []restoreFileParam `json:"files"`
}

// NewRestoreAdapter creates an adapter for the given websocket URL prefix
// (no trailing slash).
func NewRestoreAdapter(baseWS string) *RestoreAdapter {
	return &RestoreAdapter{
		baseWS:  baseWS,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pending: make(map[string]chan json.RawMessage),
		closed:  make(chan struct{}),
	}
}

// Connect establishes the websocket and starts the reader loop.
func (r *RestoreAdapter) Connect(ctx context.Context) error {
	u, err := url.Parse(r.baseWS)
	if err != nil {
		return err
	}
	conn, _, err := r.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	r.connMu.Lock()
	r.conn = conn
	r.connMu.Unlock()
	go r.readLoop(conn)
	return nil
}

// Close terminates the connection and fails all pending calls.
func (r *RestoreAdapter) Close() error {
	select {
	case <-r.closed:
		return nil
	default:
		close(r.closed)
	}
	r.connMu.Lock()
	c := r.conn
	r.conn = nil
	r.connMu.Unlock()
	if c != nil {
		_ = c.Close()
	}
	r.pendingMu.Lock()
	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
	r.pendingMu.Unlock()
	return nil
}

// Restore submits the payload list plus the reboot directive and blocks
// until the gateway reports completion or failure. Implements
// restore.Channel. No timeout is imposed here: the transfer plus the
// device's reboot acknowledgment can legitimately take minutes, and any
// deadline belongs to the channel's caller via ctx.
func (r *RestoreAdapter) Restore(ctx context.Context, files []restore.FileToRestore, reboot bool, session gestaltmgr.Session) error {
	params := restoreSubmitParams{
		UDID:   session.Serial(),
		Reboot: reboot,
		Files:  make([]restoreFileParam, 0, len(files)),
	}
	for _, f := range files {
		params.Files = append(params.Files, restoreFileParam{
			Path:     f.Path,
			Name:     f.Name,
			Contents: base64.StdEncoding.EncodeToString(f.Contents),
		})
	}

	resp, err := r.call(ctx, "restore.submit", params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		// Gateway error strings pass through untouched; the Find My
		// precondition is detected by message content downstream.
		return errors.New(resp.Error.Message)
	}
	return nil
}

func (r *RestoreAdapter) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		c, err := r.activeConn(ctx)
		if err != nil {
			return nil, err
		}

		ch := make(chan json.RawMessage, 1)
		r.pendingMu.Lock()
		r.pending[id] = ch
		r.pendingMu.Unlock()

		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			r.dropPending(id)
			r.dropConn(c)
			if attempt == 0 {
				continue
			}
			return nil, err
		}

		select {
		case <-ctx.Done():
			r.dropPending(id)
			return nil, ctx.Err()
		case respBytes, ok := <-ch:
			if !ok {
				// connection dropped before the response arrived
				if attempt == 0 {
					continue
				}
				return nil, fmt.Errorf("connection closed")
			}
			var resp rpcResponse
			if err := json.Unmarshal(respBytes, &resp); err != nil {
				return nil, err
			}
			return &resp, nil
		}
	}
}

// activeConn returns the live connection, redialing when a read failure
// dropped the previous one. A closed adapter never redials.
func (r *RestoreAdapter) activeConn(ctx context.Context) (*websocket.Conn, error) {
	r.connMu.RLock()
	c := r.conn
	r.connMu.RUnlock()
	if c != nil {
		return c, nil
	}
	select {
	case <-r.closed:
		return nil, gestaltmgr.ErrNotConnected
	default:
	}
	if err := r.Connect(ctx); err != nil {
		return nil, err
	}
	r.connMu.RLock()
	c = r.conn
	r.connMu.RUnlock()
	if c == nil {
		return nil, gestaltmgr.ErrNotConnected
	}
	return c, nil
}

func (r *RestoreAdapter) dropPending(id string) {
	r.pendingMu.Lock()
	delete(r.pending, id)
	r.pendingMu.Unlock()
}

// dropConn clears the given connection and fails the calls still waiting on
// it. The adapter stays open so a later call can redial. A connection that
// was already replaced by a redial must not fail the replacement's calls.
func (r *RestoreAdapter) dropConn(c *websocket.Conn) {
	r.connMu.Lock()
	active := r.conn == c
	if active {
		r.conn = nil
	}
	r.connMu.Unlock()
	_ = c.Close()
	if !active {
		return
	}
	r.pendingMu.Lock()
	for id, ch := range r.pending {
		close(ch)
		delete(r.pending, id)
	}
	r.pendingMu.Unlock()
}

func (r *RestoreAdapter) readLoop(c *websocket.Conn) {
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			r.dropConn(c)
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil || resp.ID == "" {
			// notification or junk; nothing waits on it
			continue
		}
		r.pendingMu.Lock()
		ch, found := r.pending[resp.ID]
		if found {
			delete(r.pending, resp.ID)
		}
		r.pendingMu.Unlock()
		if found {
			ch <- data
			close(ch)
		}
	}
}

var _ restore.Channel = (*RestoreAdapter)(nil)
