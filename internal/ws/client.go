// Package ws maintains the outbound socket session to the platform and feeds
// every delivered event to the reconciliation engine in arrival order. The
// engine tolerates duplicates and reordering, so the reconnect policy here
// can stay simple: redial with backoff and let a REST refetch reconcile the
// gap.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatsync/internal/engine"
	"github.com/chatsync/internal/logger"
	"github.com/chatsync/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
	sendBufSize    = 256

	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Client is the platform socket session. Lifecycle is keyed by the
// credentials signal: SetCredentials("") disconnects and stays down,
// SetCredentials(token) (re)establishes the connection.
//
// Implements engine.ReadReceipter.
type Client struct {
	url    string
	engine *engine.Engine

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   chan Frame
}

func NewClient(url string) *Client {
	return &Client{
		url:  url,
		send: make(chan Frame, sendBufSize),
	}
}

// Attach wires the engine after construction; the engine in turn holds this
// client as its ReadReceipter, so neither can be built with the other ready.
func (c *Client) Attach(e *engine.Engine) {
	c.engine = e
}

// SetCredentials applies the has-credentials signal. An empty token tears the
// connection down; a non-empty token dials (replacing any previous session).
func (c *Client) SetCredentials(token string) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.wg.Wait()

	if token == "" || c.url == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, token)
	}()
}

// Close tears the session down and waits for the pumps to exit.
func (c *Client) Close() {
	c.SetCredentials("")
}

func (c *Client) run(ctx context.Context, token string) {
	backoff := initialBackoff
	for {
		conn, err := c.dial(ctx, token)
		if err != nil {
			logger.Errorf("ws: dial %s: %v", c.url, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff
		logger.Infof("ws: connected to %s", c.url)

		c.session(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		logger.Info("ws: connection lost, reconnecting")
	}
}

func (c *Client) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// session runs the read and write pumps for one connection and returns when
// either exits.
func (c *Client) session(ctx context.Context, conn *websocket.Conn) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		c.writePump(sessionCtx, conn)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		c.readPump(sessionCtx, conn)
	}()
	wg.Wait()
	conn.Close()
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("ws: set read deadline: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws: read: %v", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logger.Debugf("ws: bad frame: %v", err)
			continue
		}
		c.dispatch(ctx, frame)
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
				logger.Debugf("ws: close message: %v", err)
			}
			return
		case frame := <-c.send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				logger.Errorf("ws: write: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame to the engine. Events are handed over
// strictly in arrival order; anything unparseable is dropped silently (the
// engine logs at debug).
func (c *Client) dispatch(ctx context.Context, frame Frame) {
	if c.engine == nil {
		return
	}
	switch frame.Type {
	case EventMessageReceive:
		c.engine.OnIncomingMessage(ctx, frame.Payload)
	case EventConversationUpdate:
		c.engine.OnConversationUpdate(ctx, frame.Payload)
	case EventNotificationNew:
		c.engine.OnNotification(ctx, frame.Payload)
	case EventTyping:
		var ev TypingEvent
		if err := json.Unmarshal(frame.Payload, &ev); err == nil && ev.ConversationID != "" {
			c.engine.OnTyping(ev.ConversationID, ev.UserID, ev.IsTyping)
		}
	case EventPresence:
		var ev PresenceEvent
		if err := json.Unmarshal(frame.Payload, &ev); err == nil && ev.ConversationID != "" {
			c.engine.OnPresence(ev.ConversationID, ev.UserID, ev.Online)
		}
	case EventOnlineUsers:
		var ev OnlineUsersEvent
		if err := json.Unmarshal(frame.Payload, &ev); err == nil && ev.ConversationID != "" {
			c.engine.OnOnlineUsers(ev.ConversationID, ev.UserIDs)
		}
	default:
		logger.Debugf("ws: unknown event type %q", frame.Type)
	}
}

func (c *Client) enqueue(frame Frame) {
	select {
	case c.send <- frame:
	default:
		logger.Error("ws: send buffer full, dropping frame")
	}
}

// SendMessage inserts the optimistic placeholder locally and sends the
// message frame. The returned placeholder is what the console renders until
// the confirmed echo replaces it.
func (c *Client) SendMessage(conversationID, body string) model.Message {
	msg := c.engine.PrepareLocalSend(conversationID, body)
	payload, _ := json.Marshal(sendMessagePayload{
		ConversationID: msg.ConversationID,
		Message:        body,
		TempID:         msg.ID,
	})
	c.enqueue(Frame{Type: EventMessageSend, Payload: payload})
	return msg
}

// SendReadReceipt implements engine.ReadReceipter.
func (c *Client) SendReadReceipt(conversationID string) {
	payload, _ := json.Marshal(readReceiptPayload{ConversationID: conversationID})
	c.enqueue(Frame{Type: EventMessageRead, Payload: payload})
}

// SendTyping reports the operator's typing state.
func (c *Client) SendTyping(conversationID string, isTyping bool) {
	payload, _ := json.Marshal(typingSendPayload{ConversationID: conversationID, IsTyping: isTyping})
	c.enqueue(Frame{Type: EventTypingSend, Payload: payload})
}
