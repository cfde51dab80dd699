package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mautops/routine-gin/internal/model"
)

// ExecutionEvent 推送给看板的执行状态事件
type ExecutionEvent struct {
	Type           string `json:"type"` // execution.started/paused/resumed/tick/finished
	ExecutionID    string `json:"execution_id"`
	RoutineID      string `json:"routine_id"`
	ExecutorID     string `json:"executor_id"`
	Day            string `json:"day"`
	State          string `json:"state"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	Timestamp      string `json:"timestamp"`
}

// Message 待投递的广播消息
// ExecutorID 非空时只投递给订阅该执行人 (或订阅全部事件) 的客户端
type Message struct {
	ExecutorID string
	Payload    []byte
}

// Hub 管理所有 WebSocket 连接
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	// 广播消息到客户端
	Broadcast chan *Message

	// 注册新客户端
	Register chan *Client

	// 注销客户端
	Unregister chan *Client

	// 互斥锁，保护 clients map
	mu sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Broadcast:  make(chan *Message, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Run 运行 Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()

		case message := <-h.Broadcast:
			// 发送缓冲已满的慢客户端直接摘除;先从 map 删除再关 channel,
			// 之后 ReadPump 触发的 Unregister 查不到该客户端,不会重复 close
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(message) {
					continue
				}
				select {
				case client.Send <- message.Payload:
				default:
					delete(h.clients, client)
					close(client.Send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// PublishExecutionEvent 将执行状态变化广播给订阅的看板客户端
// 实现 service.ExecutionEventPublisher;广播通道满时丢弃,不阻塞状态机
func (h *Hub) PublishExecutionEvent(eventType string, execution *model.ExecutionModel) {
	event := ExecutionEvent{
		Type:           eventType,
		ExecutionID:    execution.ID,
		RoutineID:      execution.RoutineID,
		ExecutorID:     execution.ExecutorID,
		Day:            execution.Day,
		State:          execution.CurrentState(),
		ElapsedSeconds: execution.ElapsedSeconds,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	select {
	case h.Broadcast <- &Message{ExecutorID: execution.ExecutorID, Payload: payload}:
	default:
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
