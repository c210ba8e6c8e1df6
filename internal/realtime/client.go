package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"devconnect/internal/config"
	"devconnect/internal/devtypes"

	"github.com/gorilla/websocket"
)

// clientCommand 是浏览器端通过 websocket 发送的控制消息。目前只有
// "subscribe" 一种：携带一组事件过滤器，替换该连接当前的订阅。
type clientCommand struct {
	Type    string                 `json:"type"`
	Filters []devtypes.EventFilter `json:"filters"`
}

// wireEvent is what the client receives for every matched change.
type wireEvent struct {
	Type  string               `json:"type"`
	Event devtypes.ChangeEvent `json:"event"`
}

// Client is a middleman between one websocket connection and the hub.
// Each connection holds at most one subscription; a new subscribe
// command replaces the previous one.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Authenticated profile ID for this client.
	ProfileID uint `json:"profileId"`

	mu  sync.Mutex
	sub *Subscription
}

// replaceSubscription swaps the connection's subscription for a new
// one built from filters, and starts forwarding its events onto the
// send channel.
func (c *Client) replaceSubscription(filters []devtypes.EventFilter) {
	c.mu.Lock()
	if c.sub != nil {
		c.sub.Close()
	}
	sub := c.hub.Subscribe(filters...)
	c.sub = sub
	c.mu.Unlock()

	go func() {
		for event := range sub.C {
			payload, err := json.Marshal(wireEvent{Type: "change", Event: event})
			if err != nil {
				log.Printf("错误: 无法序列化变更事件 (客户端: %d): %v", c.ProfileID, err)
				continue
			}
			select {
			case c.send <- payload:
			default:
				// send 队列满说明连接已经跟不上了，丢弃该事件。
				log.Printf("警告: 客户端 %d 发送队列已满，丢弃变更事件", c.ProfileID)
			}
		}
	}()
}

// closeSubscription releases the connection's subscription, if any.
func (c *Client) closeSubscription() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
}

// readPump pumps subscribe commands from the websocket connection to the hub.
func (c *Client) readPump(wsCfg config.WebSocketConfig) {
	// send 通道不关闭: 转发 goroutine 可能还持有它。writePump 在
	// 连接关闭后的下一次写入失败时自行退出。
	defer func() {
		c.closeSubscription()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
		return nil
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket 错误 (客户端: %d): %v", c.ProfileID, err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			log.Printf("警告: 客户端 %d 发送了非文本消息类型: %d", c.ProfileID, messageType)
			continue
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			log.Printf("错误: 无法反序列化来自客户端 %d 的JSON: %v, 原始消息: %s", c.ProfileID, err, string(raw))
			continue
		}

		switch cmd.Type {
		case "subscribe":
			c.replaceSubscription(cmd.Filters)
		case "unsubscribe":
			c.closeSubscription()
		default:
			log.Printf("收到未知类型的控制消息: %s", cmd.Type)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS 处理来自已认证客户端的 websocket 请求。
func ServeWS(hub *Hub, profileID uint, w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("ServeWS - Upgrade失败:", err)
		return
	}
	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		ProfileID: profileID,
	}

	go client.writePump(wsCfg)
	go client.readPump(wsCfg)

	log.Printf("客户端已连接: ProfileID %d", profileID)
}
