package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sweeney/bluelock/internal/bluez"
	"github.com/sweeney/bluelock/internal/logic"
	"github.com/sweeney/bluelock/internal/store"
)

// maxBodyBytes bounds API request bodies.
const maxBodyBytes = 4 << 10

// StartRequest is the body of POST /api/start.
type StartRequest struct {
	TargetID string `json:"target_id"`
	Name     string `json:"name"`
}

// Response is the envelope of the control endpoints.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DevicesResponse is the body of GET /api/devices.
type DevicesResponse struct {
	Devices []bluez.Device `json:"devices"`
}

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	Transitions []store.Transition `json:"transitions"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, Response{Error: err.Error()})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.ctl == nil {
		writeError(w, http.StatusNotImplemented, errors.New("control not available"))
		return
	}

	var req StartRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	req.TargetID = strings.TrimSpace(req.TargetID)
	if req.TargetID == "" {
		writeError(w, http.StatusBadRequest, errors.New("target_id is required"))
		return
	}

	t := store.Target{ID: req.TargetID, Name: req.Name}
	if err := s.ctl.StartTarget(r.Context(), t); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, logic.ErrConfig) {
			code = http.StatusBadRequest
		}
		s.logger.Warn("start failed", "target", t.ID, "error", err)
		writeError(w, code, err)
		return
	}
	s.tracker.SetTargetName(t.Name)
	s.logger.Info("monitoring started via API", "target", t.ID, "name", t.Name)
	writeJSON(w, http.StatusOK, Response{OK: true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.ctl == nil {
		writeError(w, http.StatusNotImplemented, errors.New("control not available"))
		return
	}
	if err := s.ctl.StopMonitoring(r.Context()); err != nil {
		s.logger.Warn("stop failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("monitoring stopped via API")
	writeJSON(w, http.StatusOK, Response{OK: true})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	if s.ctl == nil {
		writeError(w, http.StatusNotImplemented, errors.New("control not available"))
		return
	}
	if err := s.ctl.LockNow(r.Context()); err != nil {
		s.logger.Warn("manual lock failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("manual lock applied")
	writeJSON(w, http.StatusOK, Response{OK: true})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	if s.ctl == nil {
		writeError(w, http.StatusNotImplemented, errors.New("control not available"))
		return
	}
	if err := s.ctl.ForgetTarget(r.Context()); err != nil {
		s.logger.Warn("forget target failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.tracker.SetTargetName("")
	s.logger.Info("target selection cleared via API")
	writeJSON(w, http.StatusOK, Response{OK: true})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeError(w, http.StatusNotImplemented, errors.New("device discovery not available"))
		return
	}
	devices, err := s.devices.Devices(r.Context())
	if err != nil {
		s.logger.Warn("list devices", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if devices == nil {
		devices = []bluez.Device{}
	}
	writeJSON(w, http.StatusOK, DevicesResponse{Devices: devices})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, errors.New("history not available"))
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	transitions, err := s.history.RecentTransitions(limit)
	if err != nil {
		s.logger.Warn("read history", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Transitions: transitions})
}
