package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeDeadline = 5 * time.Second

// Client represents one live connection to the relay.
// ConnID 是连接句柄，与用户身份无关；UserID 在 addUser 绑定后才有值。
// 每连接一个发送队列，由唯一的写协程消费，读写互不阻塞。
type Client struct {
	ConnID string
	UserID string // 只在该连接的读协程里写入

	WS Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Conn is the slice of *websocket.Conn the relay needs; tests substitute pipes.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

func NewClient(connID string, ws Conn, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	return &Client{
		ConnID: connID,
		WS:     ws,
		send:   make(chan []byte, sendQueueSize),
	}
}

// Enqueue 非阻塞投递；队列满或连接已收尾时返回 false（投递失败不是错误，
// 注册表清理会兜底）。
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// CloseSend 停止接收新消息并让写协程退出。幂等。
func (c *Client) CloseSend() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

// WritePump drains the send queue onto the socket. Runs as the single
// writer goroutine for this connection.
func (c *Client) WritePump() {
	for data := range c.send {
		_ = c.WS.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := c.WS.WriteMessage(websocket.TextMessage, data); err != nil {
			// 写失败交给读循环的关闭路径统一收尾
			break
		}
	}
	_ = c.WS.Close()
}
