// Package wsfeed carries reading batches to presentation clients over
// WebSocket: one hub subscription per connection, one ReadingBatch per
// message.
package wsfeed

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/sufst/intermediate-server/hub"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type wireReading struct {
	SensorID  string  `json:"sensor_id"`
	Value     float64 `json:"value"`
	Timestamp uint32  `json:"timestamp"`
	Valid     bool    `json:"valid"`
}

type wireBatch struct {
	Seq      uint64        `json:"seq"`
	Readings []wireReading `json:"readings"`
}

// Feed is an http.Handler that upgrades each request to a WebSocket and
// streams the hub's deliveries to it.
type Feed struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// New returns a feed serving subscribers of h.
func New(h *hub.Hub) *Feed {
	return &Feed{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("err", err).Error("unable to upgrade feed connection")
		return
	}

	sub := f.hub.Subscribe()
	log.WithField("remote", conn.RemoteAddr()).Info("feed client connected")

	go f.writePump(conn, sub)
	f.readPump(conn, sub)
}

// readPump exists only to detect closure and pong replies; clients do not
// send application messages.
func (f *Feed) readPump(conn *websocket.Conn, sub *hub.Subscriber) {
	defer func() {
		f.hub.Unsubscribe(sub)
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithField("err", err).Debug("feed read closed")
			}
			return
		}
	}
}

func (f *Feed) writePump(conn *websocket.Conn, sub *hub.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		f.hub.Unsubscribe(sub)
		_ = conn.Close()
	}()

	for {
		select {
		case d, ok := <-sub.Deliveries():
			if !ok {
				// hub disconnected us, likely for being too slow
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(marshalDelivery(d)); err != nil {
				log.WithField("err", err).Debug("feed write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func marshalDelivery(d hub.Delivery) wireBatch {
	out := wireBatch{
		Seq:      d.Seq,
		Readings: make([]wireReading, 0, len(d.Batch.Readings)),
	}
	for _, r := range d.Batch.Readings {
		out.Readings = append(out.Readings, wireReading{
			SensorID:  r.SensorID,
			Value:     r.Value,
			Timestamp: r.Timestamp,
			Valid:     r.Valid,
		})
	}
	return out
}
