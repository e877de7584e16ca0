package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xhad/ragbot/pkg/chat"
	"github.com/xhad/ragbot/pkg/zlog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the CORS config
	},
}

// Message is a frame sent to websocket clients.
type Message struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	SessionID string `json:"sessionId,omitempty"`
}

type inbound struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(msg Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.conn.WriteJSON(msg); err != nil {
		zlog.Warn("error sending websocket message", zap.String("type", msg.Type), zap.Error(err))
	}
}

// handleWebSocket serves the chat protocol over a websocket. Messages on one
// connection are answered in order and share a session once one is assigned.
func (s *Server) handleWebSocket(c *gin.Context) {
	id, ok := chatbotID(c)
	if !ok {
		return
	}
	if _, err := s.store.GetChatbot(c.Request.Context(), id); err != nil {
		writeError(c, "open chat socket", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zlog.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}
	ctx := c.Request.Context()
	sessionID := c.Query("sessionId")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zlog.Warn("error reading websocket message", zap.Error(err))
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			ws.send(Message{Type: "error", Content: "invalid message format"})
			continue
		}
		if in.SessionID != "" {
			sessionID = in.SessionID
		}

		ws.send(Message{Type: "status", Content: "Thinking...", SessionID: sessionID})

		resp, err := s.chat.Chat(ctx, id, chat.ChatRequest{Message: in.Message, SessionID: sessionID})
		if err != nil {
			_, msg := statusFor("chat with bot", err)
			zlog.Debug("websocket chat failed", zap.Int64("chatbot_id", id), zap.Error(err))
			ws.send(Message{Type: "error", Content: msg, SessionID: sessionID})
			continue
		}

		sessionID = resp.SessionID
		ws.send(Message{Type: "response", Content: resp.Response, SessionID: sessionID})
	}
}
