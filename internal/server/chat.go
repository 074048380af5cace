package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ziadkadry99/auditq/internal/router"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// chatRequest is the incoming WebSocket message format.
type chatRequest struct {
	Type      string `json:"type"` // "query"
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

// chatResponse is the outgoing WebSocket message format.
type chatResponse struct {
	Type      string         `json:"type"` // "result" or "error"
	SessionID string         `json:"session_id"`
	Error     string         `json:"error,omitempty"`
	Result    *router.Result `json:"result,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read", zap.Error(err))
			}
			return
		}

		var req chatRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.sendError(conn, "", "invalid message format")
			continue
		}
		if req.Content == "" {
			s.sendError(conn, req.SessionID, "content is required")
			continue
		}

		switch req.Type {
		case "query", "":
			res, err := s.deps.Pipeline.Handle(r.Context(), router.Request{Query: req.Content, SessionID: req.SessionID})
			if err != nil {
				s.sendError(conn, req.SessionID, err.Error())
				continue
			}
			s.send(conn, chatResponse{Type: "result", SessionID: res.SessionID, Result: res})
		default:
			s.sendError(conn, req.SessionID, "unknown message type: "+req.Type)
		}
	}
}

func (s *Server) send(conn *websocket.Conn, resp chatResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		s.logger.Warn("websocket write", zap.Error(err))
	}
}

func (s *Server) sendError(conn *websocket.Conn, sessionID, message string) {
	s.send(conn, chatResponse{Type: "error", SessionID: sessionID, Error: message})
}
