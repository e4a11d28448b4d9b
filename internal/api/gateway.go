package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/mysensors-gateway/internal/bridges/mysensors"
)

// gatewaySettings is the body and response of PUT /gateway/settings.
type gatewaySettings struct {
	AutoAssignID  *bool `json:"auto_assign_id"`
	StoreMessages *bool `json:"store_messages"`
}

// rawMessageRequest is the body of POST /messages.
type rawMessageRequest struct {
	Line string `json:"line"`
}

// handleGatewayInfo returns the connection state and registry size.
func (s *Server) handleGatewayInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.gateway.Info())
}

// handleGatewayStats returns traffic counters.
func (s *Server) handleGatewayStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.gateway.Stats())
}

// handleGatewaySettings toggles runtime switches and returns their values.
func (s *Server) handleGatewaySettings(w http.ResponseWriter, r *http.Request) {
	var req gatewaySettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.AutoAssignID != nil {
		s.gateway.SetAutoAssignID(*req.AutoAssignID)
	}
	if req.StoreMessages != nil {
		s.gateway.SetStoreMessages(*req.StoreMessages)
	}
	s.logger.Info("gateway settings changed",
		"auto_assign_id", s.gateway.AutoAssignID(),
		"store_messages", s.gateway.StoreMessages(),
	)

	auto, store := s.gateway.AutoAssignID(), s.gateway.StoreMessages()
	writeJSON(w, http.StatusOK, gatewaySettings{AutoAssignID: &auto, StoreMessages: &store})
}

// handleRebootAll starts a paced reboot broadcast. The request returns once
// the broadcast is running.
func (s *Server) handleRebootAll(w http.ResponseWriter, r *http.Request) {
	cmd := mysensors.CommandMessage{ID: middlewareRequestID(r), Source: commandSourceAPI}
	writeAck(w, mysensors.Execute(r.Context(), s.gateway, mysensors.CommandRebootAll, &cmd))
}

// handleCancelReboot stops a running reboot broadcast.
func (s *Server) handleCancelReboot(w http.ResponseWriter, _ *http.Request) {
	s.gateway.CancelReboot()
	w.WriteHeader(http.StatusNoContent)
}

// handleListMessages returns the message log, oldest first.
func (s *Server) handleListMessages(w http.ResponseWriter, _ *http.Request) {
	msgs := s.gateway.Messages()
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"count":    len(msgs),
		"enabled":  s.gateway.StoreMessages(),
	})
}

// handleSendRaw writes one serialized frame to the network.
func (s *Server) handleSendRaw(w http.ResponseWriter, r *http.Request) {
	var req rawMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cmd := mysensors.CommandMessage{ID: middlewareRequestID(r), Line: req.Line, Source: commandSourceAPI}
	writeAck(w, mysensors.Execute(r.Context(), s.gateway, mysensors.CommandRaw, &cmd))
}

// handleClearMessages empties the message log.
func (s *Server) handleClearMessages(w http.ResponseWriter, _ *http.Request) {
	s.gateway.ClearMessages()
	w.WriteHeader(http.StatusNoContent)
}
