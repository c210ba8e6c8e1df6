package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"devconnect/internal/middleware"
	"devconnect/internal/models"
	"devconnect/internal/services"

	"github.com/gorilla/mux"
)

// ConnectionHandler handles HTTP requests for the connection workflow:
// issuing, withdrawing and resolving requests, and managing established
// connections.
type ConnectionHandler struct {
	connectionService services.ConnectionService
}

// NewConnectionHandler creates a new ConnectionHandler.
func NewConnectionHandler(cs services.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{connectionService: cs}
}

// ConnectPayload defines the expected JSON body for sending a connection request.
type ConnectPayload struct {
	ReceiverID uint `json:"receiverId"`
}

// parseIDVar extracts and parses a numeric path variable.
func parseIDVar(r *http.Request, name string) (uint, bool) {
	idStr, ok := mux.Vars(r)[name]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// Connect handles POST /api/v1/connections/requests
func (h *ConnectionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	senderID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	var payload ConnectPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.ReceiverID == 0 {
		writeJSONError(w, "缺少接收者ID (receiverId)", http.StatusBadRequest)
		return
	}

	request, err := h.connectionService.Connect(r.Context(), senderID, payload.ReceiverID)
	if err != nil {
		if errors.Is(err, services.ErrConnectSelf) || errors.Is(err, services.ErrReceiverNotFound) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		} else if errors.Is(err, services.ErrAlreadyConnected) || errors.Is(err, services.ErrRequestPending) {
			writeJSONError(w, err.Error(), http.StatusConflict)
		} else {
			log.Printf("Error creating connection request from %d to %d: %v", senderID, payload.ReceiverID, err)
			writeJSONError(w, "发送连接请求失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusCreated, request)
}

// Withdraw handles DELETE /api/v1/connections/requests/{requestID}
func (h *ConnectionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	senderID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	requestID, ok := parseIDVar(r, "requestID")
	if !ok {
		writeJSONError(w, "无效的连接请求ID格式", http.StatusBadRequest)
		return
	}

	if err := h.connectionService.Withdraw(r.Context(), senderID, requestID); err != nil {
		if errors.Is(err, services.ErrRequestNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else if errors.Is(err, services.ErrNotRequestSender) || errors.Is(err, services.ErrRequestNotPending) {
			writeJSONError(w, err.Error(), http.StatusForbidden)
		} else {
			log.Printf("Error withdrawing connection request %d by profile %d: %v", requestID, senderID, err)
			writeJSONError(w, "撤回连接请求失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "连接请求已撤回"})
}

// Accept handles POST /api/v1/connections/requests/{requestID}/accept
func (h *ConnectionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	receiverID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	requestID, ok := parseIDVar(r, "requestID")
	if !ok {
		writeJSONError(w, "无效的连接请求ID格式", http.StatusBadRequest)
		return
	}

	if err := h.connectionService.Accept(r.Context(), receiverID, requestID); err != nil {
		if errors.Is(err, services.ErrRequestNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else if errors.Is(err, services.ErrNotRequestReceiver) || errors.Is(err, services.ErrRequestNotPending) {
			writeJSONError(w, err.Error(), http.StatusForbidden)
		} else {
			log.Printf("Error accepting connection request %d by profile %d: %v", requestID, receiverID, err)
			writeJSONError(w, "处理连接请求失败", http.StatusInternalServerError)
		}
		return
	}
	// 接受后 connections 行由消费端异步物化, 因此返回 202。
	writeJSONResponse(w, http.StatusAccepted, map[string]string{"message": "连接请求已接受"})
}

// Reject handles POST /api/v1/connections/requests/{requestID}/reject
func (h *ConnectionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	receiverID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	requestID, ok := parseIDVar(r, "requestID")
	if !ok {
		writeJSONError(w, "无效的连接请求ID格式", http.StatusBadRequest)
		return
	}

	if err := h.connectionService.Reject(r.Context(), receiverID, requestID); err != nil {
		if errors.Is(err, services.ErrRequestNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else if errors.Is(err, services.ErrNotRequestReceiver) || errors.Is(err, services.ErrRequestNotPending) {
			writeJSONError(w, err.Error(), http.StatusForbidden)
		} else {
			log.Printf("Error rejecting connection request %d by profile %d: %v", requestID, receiverID, err)
			writeJSONError(w, "处理连接请求失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "连接请求已拒绝"})
}

// Status handles GET /api/v1/connections/status/{profileID}
func (h *ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	subjectID, ok := parseIDVar(r, "profileID")
	if !ok {
		writeJSONError(w, "无效的用户ID格式", http.StatusBadRequest)
		return
	}

	status := h.connectionService.ResolveStatus(r.Context(), viewerID, subjectID)
	writeJSONResponse(w, http.StatusOK, status)
}

// ListIncoming handles GET /api/v1/connections/requests/incoming
func (h *ConnectionHandler) ListIncoming(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	requests, err := h.connectionService.ListIncoming(r.Context(), profileID)
	if err != nil {
		log.Printf("Error fetching incoming requests for profile %d: %v", profileID, err)
		writeJSONError(w, "获取收到的连接请求失败", http.StatusInternalServerError)
		return
	}
	if requests == nil {
		requests = []*models.ConnectionRequestWithSender{}
	}
	writeJSONResponse(w, http.StatusOK, requests)
}

// ListOutgoing handles GET /api/v1/connections/requests/outgoing
func (h *ConnectionHandler) ListOutgoing(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	requests, err := h.connectionService.ListOutgoing(r.Context(), profileID)
	if err != nil {
		log.Printf("Error fetching outgoing requests for profile %d: %v", profileID, err)
		writeJSONError(w, "获取发出的连接请求失败", http.StatusInternalServerError)
		return
	}
	if requests == nil {
		requests = []*models.ConnectionRequestWithReceiver{}
	}
	writeJSONResponse(w, http.StatusOK, requests)
}

// ListConnections handles GET /api/v1/connections
func (h *ConnectionHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	connections, err := h.connectionService.ListConnections(r.Context(), profileID)
	if err != nil {
		log.Printf("Error fetching connections for profile %d: %v", profileID, err)
		writeJSONError(w, "获取连接列表失败", http.StatusInternalServerError)
		return
	}
	if connections == nil {
		connections = []*models.ConnectionWithProfile{}
	}
	writeJSONResponse(w, http.StatusOK, connections)
}

// RemoveConnection handles DELETE /api/v1/connections/{connectionID}
func (h *ConnectionHandler) RemoveConnection(w http.ResponseWriter, r *http.Request) {
	profileID, ok := middleware.GetProfileIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	connectionID, ok := parseIDVar(r, "connectionID")
	if !ok {
		writeJSONError(w, "无效的连接ID格式", http.StatusBadRequest)
		return
	}

	if err := h.connectionService.RemoveConnection(r.Context(), profileID, connectionID); err != nil {
		if errors.Is(err, services.ErrConnectionNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else if errors.Is(err, services.ErrNotConnectionParticipant) {
			writeJSONError(w, err.Error(), http.StatusForbidden)
		} else {
			log.Printf("Error removing connection %d by profile %d: %v", connectionID, profileID, err)
			writeJSONError(w, "删除连接失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "连接已删除"})
}
