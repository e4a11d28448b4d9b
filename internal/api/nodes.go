package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mysensors-gateway/internal/bridges/mysensors"
	"github.com/nerrad567/mysensors-gateway/internal/node"
)

// commandSourceAPI tags commands issued through the HTTP API.
const commandSourceAPI = "api"

// nodeSettingsRequest is the body of PATCH /nodes/{id}. Absent fields keep
// their current value.
type nodeSettingsRequest struct {
	Name    *string                 `json:"name"`
	Sensors []sensorSettingsRequest `json:"sensors"`
}

type sensorSettingsRequest struct {
	ID          int                 `json:"sensor_id"`
	Description *string             `json:"description"`
	Invert      *bool               `json:"invert"`
	Remap       *node.Remap         `json:"remap"`
	History     *node.HistoryPolicy `json:"history"`
}

// sensorStateRequest is the body of PUT /nodes/{id}/sensors/{sid}/state.
type sensorStateRequest struct {
	DataType node.DataType `json:"data_type"`
	Value    string        `json:"value"`
}

// handleListNodes returns every node ordered by id.
func (s *Server) handleListNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := s.gateway.Nodes()
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "count": len(nodes)})
}

// handleClearNodes drops every node from the registry.
func (s *Server) handleClearNodes(w http.ResponseWriter, _ *http.Request) {
	removed := s.gateway.ClearNodes()
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// handleFreeNodeID returns the id the next ID request would be given.
func (s *Server) handleFreeNodeID(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"node_id": s.gateway.FreeNodeID()})
}

// handleGetNode returns one node with its sensors.
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeIDParam(w, r)
	if !ok {
		return
	}

	n, err := s.gateway.Node(id)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// handleUpdateNode applies user-editable settings to a node and its sensors.
func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeIDParam(w, r)
	if !ok {
		return
	}

	var req nodeSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	existing, err := s.gateway.Node(id)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	for _, in := range req.Sensors {
		sensor, found := existing.Sensor(in.ID)
		if !found {
			writeNotFound(w, fmt.Sprintf("node %d has no sensor %d", id, in.ID))
			return
		}
		if in.Description != nil {
			sensor.Description = *in.Description
		}
		if in.Invert != nil {
			sensor.Invert = *in.Invert
		}
		if in.Remap != nil {
			sensor.Remap = *in.Remap
		}
		if in.History != nil {
			if in.History.IntervalSeconds < 0 {
				writeBadRequest(w, "history interval_seconds must not be negative")
				return
			}
			sensor.History = *in.History
		}
	}

	if err := s.gateway.UpdateNodeSettings(existing); err != nil {
		writeGatewayError(w, err)
		return
	}

	updated, err := s.gateway.Node(id)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteNode removes a node by id.
func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeIDParam(w, r)
	if !ok {
		return
	}

	if err := s.gateway.DeleteNode(id); err != nil {
		writeGatewayError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRebootNode asks one node to restart.
func (s *Server) handleRebootNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeIDParam(w, r)
	if !ok {
		return
	}

	if err := s.gateway.SendReboot(r.Context(), id); err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"node_id": id})
}

// handleGetSensor returns one sensor with its stored values.
func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeIDParam(w, r)
	if !ok {
		return
	}
	sid, ok := sensorIDParam(w, r)
	if !ok {
		return
	}

	sensor, err := s.gateway.Sensor(id, sid)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sensor)
}

// handleSetSensorState sends a value to a sensor. The value is in consumer
// units; the sensor's transforms are reversed before it goes on the wire.
func (s *Server) handleSetSensorState(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeIDParam(w, r)
	if !ok {
		return
	}
	sid, ok := sensorIDParam(w, r)
	if !ok {
		return
	}

	var req sensorStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cmd := mysensors.CommandMessage{
		ID:       middlewareRequestID(r),
		NodeID:   id,
		SensorID: sid,
		DataType: req.DataType,
		Value:    req.Value,
		Source:   commandSourceAPI,
	}
	writeAck(w, mysensors.Execute(r.Context(), s.gateway, mysensors.CommandSet, &cmd))
}

// writeAck answers with the acknowledgement of a gateway command.
func writeAck(w http.ResponseWriter, ack mysensors.AckMessage) {
	if ack.Status == mysensors.AckAccepted {
		writeJSON(w, http.StatusAccepted, ack)
		return
	}

	status := http.StatusInternalServerError
	switch ack.Error.Code {
	case mysensors.ErrCodeInvalidCommand, mysensors.ErrCodeInvalidParameters:
		status = http.StatusBadRequest
	case mysensors.ErrCodeUnknownSensor:
		status = http.StatusNotFound
	case mysensors.ErrCodeBusy:
		status = http.StatusConflict
	case mysensors.ErrCodeNotConnected:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, ack)
}

// nodeIDParam parses the {id} URL parameter. It writes a 400 and returns
// false when the id is not a registrable node id.
func nodeIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || !node.ValidNodeID(id) {
		writeBadRequest(w, fmt.Sprintf("invalid node id %q", raw))
		return 0, false
	}
	return id, true
}

// sensorIDParam parses the {sid} URL parameter.
func sensorIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "sid")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 || id > node.NodeSensorID {
		writeBadRequest(w, fmt.Sprintf("invalid sensor id %q", raw))
		return 0, false
	}
	return id, true
}

// middlewareRequestID returns the request ID set by requestIDMiddleware.
func middlewareRequestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyRequestID).(string) //nolint:errcheck // absent outside the middleware chain
	return id
}
