package voice

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	writeTimeout            = 10 * time.Second
)

// wsConn serializes writes to a websocket shared by the audio pump, the
// heartbeat and control calls.
type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func dialWebsocket(ctx context.Context, url string, header http.Header) (*wsConn, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: defaultHandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

func (c *wsConn) writeJSON(v any) error {
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) writeBinary(data []byte) error {
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// close optionally sends a final frame, then a close handshake.
func (c *wsConn) close(final any) {
	c.closeOnce.Do(func() {
		if final != nil {
			if err := c.writeJSON(final); err != nil {
				log.Printf("[voice] final frame not sent: %v", err)
			}
		}
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}

// readLoop hands every text frame to handle until the socket closes. A normal
// close or a locally closed socket returns nil.
func (c *wsConn) readLoop(handle func(data []byte) error) error {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := handle(data); err != nil {
			return err
		}
	}
}

// runHeartbeat calls send on every tick until ctx ends or send fails.
func runHeartbeat(ctx context.Context, interval time.Duration, send func() error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := send(); err != nil {
				return err
			}
		}
	}
}

// pumpAudio forwards microphone frames while the adapter is unmuted.
func pumpAudio(ctx context.Context, src AudioSource, muted func() bool, send func([]byte) error) error {
	if src == nil {
		return nil
	}
	frames := src.Frames()
	for {
		select {
		case <-ctx.Done():
			return nil
		case pcm := <-frames:
			if muted() {
				continue
			}
			if err := send(pcm); err != nil {
				return err
			}
		}
	}
}
