package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-irbridge/internal/appliance"
	"github.com/nerrad567/gray-logic-irbridge/internal/audit"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

// accessoryResponse is the JSON view of an accessory.
type accessoryResponse struct {
	Name            string         `json:"name"`
	Type            string         `json:"type"`
	Characteristics []string       `json:"characteristics"`
	State           map[string]any `json:"state"`
}

// characteristicRequest is the body of PUT .../characteristics/{characteristic}.
type characteristicRequest struct {
	Value json.RawMessage `json:"value"`
}

func toAccessoryResponse(acc appliance.Accessory) accessoryResponse {
	return accessoryResponse{
		Name:            acc.Name(),
		Type:            acc.Type(),
		Characteristics: acc.Characteristics(),
		State:           acc.Snapshot(),
	}
}

// handleListAccessories returns every accessory with its cached state.
func (s *Server) handleListAccessories(w http.ResponseWriter, r *http.Request) {
	typeFilter := r.URL.Query().Get("type")

	accessories := s.accessories.List()
	out := make([]accessoryResponse, 0, len(accessories))
	for _, acc := range accessories {
		if typeFilter != "" && acc.Type() != typeFilter {
			continue
		}
		out = append(out, toAccessoryResponse(acc))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessories": out,
		"count":       len(out),
	})
}

// handleGetAccessory returns one accessory.
func (s *Server) handleGetAccessory(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAccessoryResponse(acc))
}

// handleGetCharacteristic reads a characteristic. Sensor-backed values may
// wait for a device answer; the request context bounds that wait.
func (s *Server) handleGetCharacteristic(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	characteristic := chi.URLParam(r, "characteristic")

	value, err := acc.Get(r.Context(), characteristic)
	if err != nil {
		writeAccessoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessory":      acc.Name(),
		"characteristic": characteristic,
		"value":          value,
	})
}

// handleSetCharacteristic changes a characteristic. Transmissions continue
// after the response is written.
func (s *Server) handleSetCharacteristic(w http.ResponseWriter, r *http.Request) {
	acc, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}
	characteristic := chi.URLParam(r, "characteristic")

	var req characteristicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Value) == 0 {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	value, err := decodeJSONValue(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid value")
		return
	}

	err = acc.Set(r.Context(), characteristic, value)
	s.recordAudit(r, acc.Name(), characteristic, value, err)
	if err != nil {
		writeAccessoryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessory":      acc.Name(),
		"characteristic": characteristic,
		"value":          acc.Snapshot()[characteristic],
	})
}

// handleReadingHistory returns stored sensor readings.
// Query: kind=temperature|humidity (default temperature), limit=N.
func (s *Server) handleReadingHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	acc, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}

	kind := sensor.Kind(r.URL.Query().Get("kind"))
	switch kind {
	case "":
		kind = sensor.KindTemperature
	case sensor.KindTemperature, sensor.KindHumidity:
	default:
		writeError(w, http.StatusBadRequest, "kind must be temperature or humidity")
		return
	}

	readings, err := s.history.Readings(r.Context(), acc.Name(), kind, queryLimit(r))
	if err != nil {
		s.logger.Error("reading history query failed", "accessory", acc.Name(), "error", err)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessory": acc.Name(),
		"kind":      kind,
		"readings":  readings,
		"count":     len(readings),
	})
}

// handleChangeHistory returns stored characteristic changes.
func (s *Server) handleChangeHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	acc, ok := s.lookupAccessory(w, r)
	if !ok {
		return
	}

	changes, err := s.history.Changes(r.Context(), acc.Name(), queryLimit(r))
	if err != nil {
		s.logger.Error("change history query failed", "accessory", acc.Name(), "error", err)
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessory": acc.Name(),
		"changes":   changes,
		"count":     len(changes),
	})
}

// handleListAudit returns recorded change requests.
// Query: accessory, source=api|mqtt, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Accessory: q.Get("accessory"),
		Source:    q.Get("source"),
		Limit:     queryLimit(r),
	}
	if filter.Source != "" && filter.Source != audit.SourceAPI && filter.Source != audit.SourceMQTT {
		writeError(w, http.StatusBadRequest, "source must be api or mqtt")
		return
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	page, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// recordAudit stores a change request. Failures are logged; the request
// itself already succeeded or failed on its own.
func (s *Server) recordAudit(r *http.Request, accessory, characteristic string, value any, result error) {
	if s.audit == nil {
		return
	}
	subject, _ := r.Context().Value(ctxKeySubject).(string)
	if _, err := s.audit.Record(r.Context(), accessory, characteristic, value, audit.SourceAPI, subject, result); err != nil {
		s.logger.Warn("recording change request failed", "accessory", accessory, "error", err)
	}
}

func (s *Server) lookupAccessory(w http.ResponseWriter, r *http.Request) (appliance.Accessory, bool) {
	name := chi.URLParam(r, "name")
	acc, err := s.accessories.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "accessory not found: "+name)
		return nil, false
	}
	return acc, true
}

// decodeJSONValue decodes a single JSON value, keeping numbers as
// json.Number.
func decodeJSONValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after value")
	}
	return v, nil
}

// queryLimit reads ?limit=N; zero lets the store choose its default.
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
