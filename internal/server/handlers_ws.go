package server

import (
	"github.com/gofiber/contrib/websocket"
)

// websocketHandler registers one connection with the hub and blocks until
// it disconnects, grounded on the teacher's gameWebSocketHandler
// (register-then-read-loop), generalized from a single implicit topic to
// the client-driven subscribe protocol internal/hub.Serve implements.
func (s *FiberServer) websocketHandler(conn *websocket.Conn) {
	s.deps.Hub.Serve(conn)
}
