// Package httpapi exposes the engine over a local HTTP surface: device
// listing and selection, snapshot registration, and the apply/reset
// pipelines with a websocket progress stream.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stepherg/gestaltmgr"
	"github.com/stepherg/gestaltmgr/manager"
)

// DeviceInfo is one device in the listing response.
type DeviceInfo struct {
	UUID    string `json:"uuid"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Model   string `json:"model"`
	Locale  string `json:"locale,omitempty"`
}

type devicesResponse struct {
	Devices      []DeviceInfo `json:"devices"`
	Count        int          `json:"count"`
	Current      int          `json:"current"`
	CurrentName  string       `json:"currentName"`
	Eligible     bool         `json:"eligible"`
	SnapshotPath string       `json:"snapshotPath,omitempty"`
}

type noticeInfo struct {
	Serial string `json:"serial"`
	Error  string `json:"error"`
}

type resultResponse struct {
	Status      string `json:"status"`
	Category    string `json:"category,omitempty"`
	Remediation string `json:"remediation,omitempty"`
	Error       string `json:"error,omitempty"`
}

func deviceList(m *manager.Manager) devicesResponse {
	reg := m.Registry()
	out := devicesResponse{
		Current:      reg.CurrentIndex(),
		CurrentName:  reg.CurrentName(),
		Eligible:     reg.Eligible(),
		SnapshotPath: reg.GestaltSnapshot(),
	}
	for _, d := range reg.Devices() {
		out.Devices = append(out.Devices, DeviceInfo{
			UUID: d.UUID, Name: d.Name, Version: d.Version, Model: d.Model, Locale: d.Locale,
		})
	}
	out.Count = len(out.Devices)
	return out
}

// DevicesHandler serves the current registry snapshot.
func DevicesHandler(m *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deviceList(m))
	}
}

// RefreshHandler re-runs discovery and returns the new listing plus any
// per-device notices. A notice does not fail the request.
func RefreshHandler(m *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		notices, err := m.Refresh(r.Context())
		if err != nil {
			writeJSON(w, http.StatusBadGateway, resultResponse{Status: "error", Error: err.Error()})
			return
		}
		resp := struct {
			devicesResponse
			Notices []noticeInfo `json:"notices,omitempty"`
		}{devicesResponse: deviceList(m)}
		for _, n := range notices {
			resp.Notices = append(resp.Notices, noticeInfo{Serial: n.Serial, Error: n.Err.Error()})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// SelectHandler changes the current device.
func SelectHandler(m *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Index int `json:"index"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		m.Select(body.Index)
		writeJSON(w, http.StatusOK, deviceList(m))
	}
}

// SnapshotHandler registers a gestalt snapshot path for the current device
// and reports whether it matches the device's model. A mismatch is not an
// error; the caller decides whether to proceed.
func SnapshotHandler(m *manager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		reg := m.Registry()
		matches, err := reg.SnapshotMatchesDevice(body.Path)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, resultResponse{Status: "error", Error: err.Error()})
			return
		}
		if err := reg.SetGestaltSnapshot(body.Path); err != nil {
			writeJSON(w, http.StatusConflict, resultResponse{Status: "error", Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Status  string `json:"status"`
			Matches bool   `json:"matchesDevice"`
		}{Status: "ok", Matches: matches})
	}
}

// ApplyHandler runs the apply pipeline. Progress checkpoints are broadcast
// to the hub; the response carries the terminal outcome.
func ApplyHandler(m *manager.Manager, hub *Hub) http.HandlerFunc {
	return runHandler(hub, func(ctx context.Context, progress gestaltmgr.ProgressFunc) error {
		return m.Apply(ctx, progress)
	})
}

// ResetHandler runs the reset pipeline.
func ResetHandler(m *manager.Manager, hub *Hub) http.HandlerFunc {
	return runHandler(hub, func(ctx context.Context, progress gestaltmgr.ProgressFunc) error {
		return m.Reset(ctx, progress)
	})
}

func runHandler(hub *Hub, run func(context.Context, gestaltmgr.ProgressFunc) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		progress := gestaltmgr.NopProgress
		if hub != nil {
			progress = hub.Broadcast
		}
		err := run(r.Context(), progress)
		if err == nil {
			writeJSON(w, http.StatusOK, resultResponse{Status: "success"})
			return
		}

		var restoreErr *gestaltmgr.RestoreError
		if errors.As(err, &restoreErr) {
			writeJSON(w, http.StatusBadGateway, resultResponse{
				Status:      "failed",
				Category:    string(restoreErr.Category),
				Remediation: restoreErr.Remediation,
				Error:       restoreErr.Error(),
			})
			return
		}
		status := http.StatusInternalServerError
		if errors.Is(err, gestaltmgr.ErrNoDevice) {
			status = http.StatusConflict
		}
		writeJSON(w, status, resultResponse{Status: "failed", Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
