package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"suibison/internal/api"
	"suibison/internal/api/jwt"
	"suibison/internal/bisonapi"
)

const (
	pingPeriod  = 3 * time.Second
	pongTimeout = 9 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type syncMessage struct {
	Target string             `json:"target"`
	Data   *bisonapi.UserData `json:"data"`
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) write(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(pingPeriod))
	return w.conn.WriteMessage(messageType, data)
}

// wsHandler pushes the profile on connect, then relays the user's notification channel.
func wsHandler(rdb *redis.Client, app *api.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.DefaultQuery("token", "")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		userId, _, err := jwt.ValidateToken(app.JwtSecret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		profile, err := app.Ledger.Profile(c, userId)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			Logger.Error("Socket: upgrade failed: " + err.Error())
			return
		}
		defer conn.Close()
		w := &wsConn{conn: conn}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var lastPong atomic.Int64
		lastPong.Store(time.Now().UnixNano())
		conn.SetPongHandler(func(string) error {
			lastPong.Store(time.Now().UnixNano())
			return nil
		})

		data, _ := json.Marshal(syncMessage{Target: bisonapi.MessageTargetSync, Data: profile})
		if err := w.write(websocket.TextMessage, data); err != nil {
			return
		}

		go func() {
			pubsub := rdb.Subscribe(ctx, bisonapi.NotificationChannel(userId))
			defer pubsub.Close()
			ch := pubsub.Channel()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					if err := w.write(websocket.TextMessage, []byte(msg.Payload)); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// The read loop only drains control frames so the pong handler runs.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if time.Since(time.Unix(0, lastPong.Load())) > pongTimeout {
					Logger.Info("Socket: client did not respond to ping, closing connection")
					return
				}
				if err := w.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
