// Package runtime contains adapters to the external device capabilities:
// discovery and session over the local usbmux bridge, and the restore
// gateway channel. The byte-level device protocols live behind these
// services and are not reimplemented here.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/stepherg/gestaltmgr"
)

// MuxAdapter talks to the local usbmux bridge over HTTP. It implements both
// gestaltmgr.Discovery and gestaltmgr.SessionOpener.
type MuxAdapter struct {
	baseURL string
	client  *http.Client
}

// MuxOptions configures a new adapter.
type MuxOptions struct {
	BaseURL        string
	Client         *http.Client
	RequestTimeout time.Duration
}

func NewMuxAdapter(o MuxOptions) (*MuxAdapter, error) {
	if o.BaseURL == "" {
		return nil, fmt.Errorf("mux adapter: BaseURL required")
	}
	c := o.Client
	if c == nil {
		timeout := o.RequestTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		c = &http.Client{Timeout: timeout}
	}
	return &MuxAdapter{baseURL: trimRightSlash(o.BaseURL), client: c}, nil
}

type muxDevicesResponse struct {
	Devices []struct {
		Serial string `json:"serial"`
		IsUSB  bool   `json:"isUsb"`
	} `json:"devices"`
}

// ListDevices fetches the bridge's current device list.
func (m *MuxAdapter) ListDevices(ctx context.Context) ([]gestaltmgr.DiscoveredDevice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/api/v1/devices", nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := mapStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	var parsed muxDevicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	out := make([]gestaltmgr.DiscoveredDevice, 0, len(parsed.Devices))
	for _, d := range parsed.Devices {
		if d.Serial == "" {
			continue
		}
		out = append(out, gestaltmgr.DiscoveredDevice{Serial: d.Serial, USB: d.IsUSB})
	}
	return out, nil
}

type muxSessionResponse struct {
	DeviceName     string                 `json:"deviceName"`
	ProductVersion string                 `json:"productVersion"`
	ProductType    string                 `json:"productType"`
	Locale         string                 `json:"locale"`
	AllValues      map[string]interface{} `json:"allValues"`
}

// OpenSession establishes a lockdown session with one device via the bridge
// and returns a handle carrying the device's identification values.
func (m *MuxAdapter) OpenSession(ctx context.Context, serial string) (gestaltmgr.Session, error) {
	endpoint := fmt.Sprintf("%s/api/v1/device/%s/session", m.baseURL, url.PathEscape(serial))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := mapStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	var parsed muxSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &muxSession{
		adapter: m,
		serial:  serial,
		info: gestaltmgr.LockdownInfo{
			DeviceName:     parsed.DeviceName,
			ProductVersion: parsed.ProductVersion,
			ProductType:    parsed.ProductType,
			Locale:         parsed.Locale,
			AllValues:      parsed.AllValues,
		},
	}, nil
}

type muxSession struct {
	adapter *MuxAdapter
	serial  string
	info    gestaltmgr.LockdownInfo
}

func (s *muxSession) Serial() string                { return s.serial }
func (s *muxSession) Info() gestaltmgr.LockdownInfo { return s.info }

// Close releases the bridge-side session. Best effort with a short deadline;
// the bridge reaps abandoned sessions on its own.
func (s *muxSession) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	endpoint := fmt.Sprintf("%s/api/v1/device/%s/session", s.adapter.baseURL, url.PathEscape(s.serial))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := s.adapter.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return mapStatus(resp.StatusCode)
}

func mapStatus(code int) error {
	switch {
	case code == http.StatusOK, code == http.StatusNoContent:
		return nil
	case code == http.StatusNotFound:
		return gestaltmgr.ErrDeviceNotFound
	case code >= 500:
		return gestaltmgr.ErrGatewayUnavailable
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}

func trimRightSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
