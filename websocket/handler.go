package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleActivityFeed upgrades an admin connection and subscribes it to the
// ledger activity stream. The route sits behind the JWT middleware, so the
// connection is already authenticated by the time it reaches here.
func HandleActivityFeed(c echo.Context, hub *Hub) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{Conn: conn}
	hub.register <- client

	conn.WriteJSON(ActivityEvent{
		Type:    "connected",
		Message: "Ledger activity feed connected",
		At:      time.Now(),
	})

	// Drain the connection; clients don't send anything meaningful, but the
	// read loop is what detects disconnects.
	go func() {
		defer func() {
			hub.unregister <- client
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	return nil
}
