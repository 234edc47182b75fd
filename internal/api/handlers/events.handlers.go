package routes

import (
	"net/http"
	"time"

	"zonewatch/internal/logger"
	"zonewatch/internal/service/proximity"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	subscriberBuf  = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// eventMessage is the wire form of a zone transition on the event stream
type eventMessage struct {
	Kind      proximity.EventKind  `json:"kind"`
	ZoneID    string               `json:"zone_id"`
	SessionID string               `json:"session_id"`
	Latitude  float64              `json:"latitude"`
	Longitude float64              `json:"longitude"`
	Timestamp time.Time            `json:"timestamp"`
	DwellMs   int64                `json:"dwell_ms,omitempty"`
	Reason    proximity.ExitReason `json:"reason,omitempty"`
}

func toMessage(e proximity.Event) eventMessage {
	return eventMessage{
		Kind:      e.Kind,
		ZoneID:    e.Zone.ID,
		SessionID: e.Session.ID,
		Latitude:  e.Fix.Lat,
		Longitude: e.Fix.Lon,
		Timestamp: e.Fix.Timestamp,
		DwellMs:   e.DwellMillis(),
		Reason:    e.Reason,
	}
}

// SetupEventHandlers registers the websocket stream of zone transitions
func SetupEventHandlers(router *gin.RouterGroup, d *Deps) {
	router.GET("/ws/events", d.streamEvents)
}

func (d *Deps) streamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.L().Warn("ws_upgrade_failed", "err", err)
		return
	}

	ctx := c.Request.Context()
	events := d.Bus.Subscribe(ctx, subscriberBuf)
	closed := make(chan struct{})

	// read pump: only pongs and close frames are expected
	go func() {
		defer close(closed)
		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.L().Debug("ws_read_error", "err", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	logger.L().Info("ws_subscriber_connected", "remote", c.ClientIP())
	for {
		select {
		case <-closed:
			return
		case e, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(toMessage(e)); err != nil {
				logger.L().Debug("ws_write_error", "err", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
