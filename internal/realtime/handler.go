package realtime

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	router *Router
	log    *zap.Logger
}

func NewHandler(router *Router, log *zap.Logger) *Handler {
	return &Handler{router: router, log: log}
}

// ServeWs upgrades the request and starts the session pumps. The route is
// behind the auth middleware; identity for presence purposes still arrives
// via the identify event, as the wire contract dictates.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := NewSession(conn, h.log)
	h.router.HandleConnect(s)

	go s.WritePump()
	go s.ReadPump(h.router)
}
