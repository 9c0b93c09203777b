package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultEndpoint is the public danmu broadcast endpoint, used when
// Connect is given an empty endpoint.
const DefaultEndpoint = "wss://broadcastlv.chat.bilibili.com/sub"

const (
	heartbeatInterval = 30 * time.Second
	joinAckTimeout    = 10 * time.Second
)

var dedeUserIDPattern = regexp.MustCompile(`DedeUserID=(\d+)`)

// Client holds one live danmu connection. Exactly one Client may be open
// per supervisor; the supervisor closes the previous one before dialing a
// new one.
type Client struct {
	roomID int64
	conn   *websocket.Conn
	events chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// UIDFromCookie extracts the account uid the session cookie belongs to.
// The join packet must carry it; a cookie without DedeUserID cannot
// authenticate the stream.
func UIDFromCookie(cookie string) (int64, error) {
	m := dedeUserIDPattern.FindStringSubmatch(cookie)
	if m == nil {
		return 0, fmt.Errorf("DedeUserID not found in cookie")
	}
	uid, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse DedeUserID: %w", err)
	}
	return uid, nil
}

// Connect dials endpoint (empty means DefaultEndpoint) with the session
// cookie, sends the join packet, and resolves only once the server
// acknowledges the join. It does not retry; credential recovery lives in
// the supervisor.
func Connect(ctx context.Context, endpoint string, roomID int64, cookie string) (*Client, error) {
	uid, err := UIDFromCookie(cookie)
	if err != nil {
		return nil, err
	}

	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	header := http.Header{}
	header.Set("Cookie", cookie)
	header.Set("Origin", "https://live.bilibili.com")
	header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial danmu endpoint: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial danmu endpoint: %w", err)
	}

	join, err := json.Marshal(map[string]any{
		"uid":      uid,
		"roomid":   roomID,
		"protover": 3,
		"platform": "web",
		"type":     2,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("marshal join body: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, EncodePacket(OpJoin, join)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send join packet: %w", err)
	}

	// The connect handshake only succeeds once the join is acked.
	if err := awaitJoinAck(conn); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		roomID: roomID,
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	go c.heartbeatLoop()
	slog.Info("danmu stream connected", slog.Int64("room_id", roomID), slog.Int64("uid", uid))
	return c, nil
}

func awaitJoinAck(conn *websocket.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(joinAckTimeout)); err != nil {
		return fmt.Errorf("set join deadline: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await join ack: %w", err)
		}
		pkts, err := DecodePackets(data)
		if err != nil {
			return fmt.Errorf("decode join response: %w", err)
		}
		for _, p := range pkts {
			if p.Op == OpJoinAck {
				return nil
			}
		}
	}
}

// Events delivers translated events in arrival order. The channel closes
// after an EventClosed or EventError terminates the read loop.
func (c *Client) Events() <-chan Event { return c.events }

// RoomID reports the joined room.
func (c *Client) RoomID() int64 { return c.roomID }

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			slog.Debug("danmu conn close", slog.Any("err", err))
		}
	})
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Deliberate close; report it as the stream closing.
				c.events <- Event{Kind: EventClosed}
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.events <- Event{Kind: EventClosed}
				} else {
					c.events <- Event{Kind: EventError, Err: err}
				}
			}
			return
		}
		pkts, err := DecodePackets(data)
		if err != nil {
			// One undecodable packet must not kill the stream.
			slog.Warn("danmu packet decode failed", slog.Any("err", err))
			continue
		}
		for _, p := range pkts {
			if p.Op != OpMessage {
				continue
			}
			if msg, ok := ParseMessageBody(p.Body, c.roomID); ok {
				c.events <- Event{Kind: EventChat, Chat: msg}
			}
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.BinaryMessage, EncodePacket(OpHeartbeat, []byte("[object Object]"))); err != nil {
				slog.Warn("danmu heartbeat failed", slog.Any("err", err))
				return
			}
		}
	}
}
