package ws

import (
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // guests join from arbitrary devices on the party network
	},
}

// conn adapts a websocket connection to the hub's Subscriber. Writes
// are serialized; gorilla allows one concurrent writer only.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) Send(event string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(event))
}

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// HandleWebSocket is the subscribe operation. The socket is listen-only:
// guests mutate through the HTTP API and receive invalidation pings
// here. The read loop exists to notice the disconnect, which is what
// drives Leave.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	roomCode := strings.ToUpper(c.Param("code"))
	if roomCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room code is required"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "err", err)
		return
	}

	sub := &conn{ws: wsConn}
	h.hub.Join(roomCode, sub)
	defer func() {
		h.hub.Leave(roomCode, sub)
		wsConn.Close()
	}()

	for {
		if _, _, err := wsConn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug("websocket closed", "room", roomCode, "err", err)
			}
			return
		}
	}
}
