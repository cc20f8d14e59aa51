package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-w215/internal/bridges/w215"
	"github.com/nerrad567/gray-logic-w215/internal/device"
)

// handleListDevices returns the registered devices, optionally filtered by
// ?protocol= and ?health=.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		devices []device.Device
		err     error
	)
	if protocol := r.URL.Query().Get("protocol"); protocol != "" {
		devices, err = s.registry.GetDevicesByProtocol(ctx, device.Protocol(protocol))
	} else {
		devices, err = s.registry.ListDevices(ctx)
	}
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	if health := r.URL.Query().Get("health"); health != "" {
		filtered := devices[:0]
		for _, d := range devices {
			if string(d.HealthStatus) == health {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}
	if devices == nil {
		devices = []device.Device{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// handleDeviceStats returns registry statistics.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStats())
}

// handlePollDevice runs one poll cycle for the device and returns its report.
func (s *Server) handlePollDevice(w http.ResponseWriter, r *http.Request) {
	if s.poller == nil {
		writeUnavailable(w, "poller not configured")
		return
	}
	id := chi.URLParam(r, "id")

	report, err := s.poller.PollDevice(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, w215.ErrCycleInProgress):
		writeConflict(w, "a poll cycle is already running for this device")
	case errors.Is(err, w215.ErrConfiguration):
		if report == nil {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, report)
	default:
		s.logger.Error("polling device", "device_id", id, "error", err)
		writeInternalError(w, "poll failed")
	}
}

// handleLastReport returns the report of the device's latest cycle.
func (s *Server) handleLastReport(w http.ResponseWriter, r *http.Request) {
	if s.poller == nil {
		writeUnavailable(w, "poller not configured")
		return
	}
	id := chi.URLParam(r, "id")

	report, ok := s.poller.LastReport(id)
	if !ok {
		writeNotFound(w, "no poll cycle recorded for this device")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
