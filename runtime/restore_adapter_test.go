package runtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/stepherg/gestaltmgr"
	"github.com/stepherg/gestaltmgr/restore"
)

type wsSession struct{ serial string }

func (s wsSession) Serial() string { return s.serial }
func (s wsSession) Info() gestaltmgr.LockdownInfo {
	return gestaltmgr.LockdownInfo{}
}
func (s wsSession) Close() error { return nil }

// gateway harness echoing restore.submit requests
func newGateway(t *testing.T, respond func(req rpcRequest) rpcResponse) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req rpcRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Errorf("bad request: %v", err)
				return
			}
			resp := respond(req)
			resp.JSONRPC = "2.0"
			resp.ID = req.ID
			b, _ := json.Marshal(resp)
			_ = c.WriteMessage(websocket.TextMessage, b)
		}
	}))
}

func wsURL(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	u.Scheme = "ws"
	return u.String()
}

func TestRestoreAdapterSubmit(t *testing.T) {
	var got restoreSubmitParams
	srv := newGateway(t, func(req rpcRequest) rpcResponse {
		if req.Method != "restore.submit" {
			t.Errorf("unexpected method %q", req.Method)
		}
		raw, _ := json.Marshal(req.Params)
		_ = json.Unmarshal(raw, &got)
		return rpcResponse{Result: json.RawMessage(`{"ok":true}`)}
	})
	defer srv.Close()

	ad := NewRestoreAdapter(wsURL(t, srv))
	if err := ad.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ad.Close()

	files := []restore.FileToRestore{
		{Contents: []byte("flagdoc"), Path: "/var/preferences/FeatureFlags/", Name: "Global.plist"},
	}
	if err := ad.Restore(context.Background(), files, true, wsSession{serial: "udid-1"}); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if got.UDID != "udid-1" || !got.Reboot || len(got.Files) != 1 {
		t.Fatalf("unexpected params: %+v", got)
	}
	contents, err := base64.StdEncoding.DecodeString(got.Files[0].Contents)
	if err != nil || string(contents) != "flagdoc" {
		t.Fatalf("payload not framed as base64: %v %q", err, contents)
	}
}

func TestRestoreAdapterSurfacesGatewayErrorVerbatim(t *testing.T) {
	srv := newGateway(t, func(rpcRequest) rpcResponse {
		return rpcResponse{Error: &rpcError{Code: -32000, Message: "restore denied: Find My is enabled"}}
	})
	defer srv.Close()

	ad := NewRestoreAdapter(wsURL(t, srv))
	if err := ad.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ad.Close()

	err := ad.Restore(context.Background(), nil, true, wsSession{serial: "udid-1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	re := gestaltmgr.ClassifyRestoreError(err)
	if re.Category != gestaltmgr.CategoryFindMy {
		t.Fatalf("gateway message must keep classifying, got %v", re.Category)
	}
}

func TestRestoreAdapterRedialsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	upgrader := websocket.Upgrader{}
	// one call per connection; the gateway stays up but hangs up after
	// each response
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		mu.Lock()
		dials++
		mu.Unlock()
		_, msg, err := c.ReadMessage()
		if err != nil {
			_ = c.Close()
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("bad request: %v", err)
			return
		}
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"ok":true}`)}
		b, _ := json.Marshal(resp)
		_ = c.WriteMessage(websocket.TextMessage, b)
		_ = c.Close()
	}))
	defer srv.Close()

	ad := NewRestoreAdapter(wsURL(t, srv))
	if err := ad.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ad.Close()

	if err := ad.Restore(context.Background(), nil, true, wsSession{serial: "udid-1"}); err != nil {
		t.Fatalf("first restore: %v", err)
	}
	if err := ad.Restore(context.Background(), nil, true, wsSession{serial: "udid-1"}); err != nil {
		t.Fatalf("restore after dropped connection: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if dials < 2 {
		t.Fatalf("expected a redial after the drop, saw %d connections", dials)
	}
}

func TestRestoreAdapterClosedStaysClosed(t *testing.T) {
	srv := newGateway(t, func(rpcRequest) rpcResponse {
		return rpcResponse{Result: json.RawMessage(`{"ok":true}`)}
	})
	defer srv.Close()

	ad := NewRestoreAdapter(wsURL(t, srv))
	if err := ad.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := ad.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := ad.Restore(context.Background(), nil, false, wsSession{})
	if !errors.Is(err, gestaltmgr.ErrNotConnected) {
		t.Fatalf("closed adapter must not redial, got %v", err)
	}
}

func TestRestoreAdapterDialFailure(t *testing.T) {
	ad := NewRestoreAdapter("ws://127.0.0.1:1/unused")
	err := ad.Restore(context.Background(), nil, false, wsSession{})
	if err == nil {
		t.Fatalf("expected dial error")
	}
}
