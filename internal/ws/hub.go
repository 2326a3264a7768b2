package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/metrics"
	"github.com/Hromosvod-Enjoyers/Kocek/internal/models"

	"github.com/rs/zerolog/log"
)

// Event 是推送给订阅者的一帧数据。
type Event struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message,omitempty"`
}

// Hub 把新消息广播给所有订阅了消息流的连接。
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	online     int32
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run 处理注册、注销与广播，ctx 结束时关闭所有连接。
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return nil
		case c := <-h.register:
			h.clients[c] = true
			atomic.StoreInt32(&h.online, int32(len(h.clients)))
			metrics.WsConnections.Inc()
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// 慢消费者直接断开。
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	atomic.StoreInt32(&h.online, int32(len(h.clients)))
	metrics.WsConnections.Dec()
}

// Publish 广播一条新消息，不阻塞请求路径。
func (h *Hub) Publish(msg models.Message) {
	b, err := json.Marshal(Event{Type: "message", Message: &msg})
	if err != nil {
		log.Error().Err(err).Int64("message_id", msg.ID).Msg("ws marshal")
		return
	}
	select {
	case h.broadcast <- b:
	default:
		log.Warn().Int64("message_id", msg.ID).Msg("ws broadcast queue full")
	}
}

// Online 返回当前订阅连接数。
func (h *Hub) Online() int { return int(atomic.LoadInt32(&h.online)) }
