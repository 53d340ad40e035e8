// Package client implements the relay's Go client: REST for requests,
// websocket for server pushes, and the reconciliation state in between.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"MsgRelay/module/message/model"
	"MsgRelay/service/relay"

	"github.com/gorilla/websocket"
)

// Client talks to one relay instance on behalf of one user.
type Client struct {
	BaseURL string // http(s)://host:port
	Token   string // auth-token header value
	UserID  string
	HTTP    *http.Client
	State   *State

	mu sync.Mutex
	ws *websocket.Conn

	// 可选回调：推送应用到 State 之后通知上层（UI 刷新等）
	OnArrived func(msg *model.Message)
	OnDeleted func(messageID string)
	OnOnline  func(users []string)
}

func New(baseURL, token, userID string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		UserID:  userID,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		State:   NewState(userID),
	}
}

// Connect dials the push channel and identifies this user on it.
// 重连后重新 Connect 即可，服务端绑定是 last-connect-wins。
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}

	identify, _ := json.Marshal(&relay.Frame{Type: relay.FrameAddUser, UserID: c.UserID})
	if err := ws.WriteMessage(websocket.TextMessage, identify); err != nil {
		_ = ws.Close()
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()

	go c.readLoop(ws)
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
}

// pushFrame 服务端出站帧的并集。
type pushFrame struct {
	Type      relay.FrameType `json:"type"`
	Message   *model.Message  `json:"message,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	Users     []string        `json:"users,omitempty"`
	Reader    string          `json:"reader,omitempty"`
}

func (c *Client) readLoop(ws *websocket.Conn) {
	defer ws.Close()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var f pushFrame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		switch f.Type {
		case relay.FrameGetMessage:
			if c.State.OnMessageArrived(f.Message) && c.OnArrived != nil {
				c.OnArrived(f.Message)
			}
		case relay.FrameMessageDeleted:
			if c.State.OnMessageDeleted(f.MessageID) && c.OnDeleted != nil {
				c.OnDeleted(f.MessageID)
			}
		case relay.FrameOnlineUsers:
			c.State.OnOnlineUsers(f.Users)
			if c.OnOnline != nil {
				c.OnOnline(f.Users)
			}
		case relay.FrameReadReceipt:
			c.State.OnReadReceipt(f.Reader)
		}
	}
}

// OpenConversation re-fetches the full conversation and makes it active.
func (c *Client) OpenConversation(ctx context.Context, counterpart string) error {
	var history []*model.Message
	err := c.doJSON(ctx, http.MethodGet, "/api/messages/"+counterpart, nil, &history)
	if err != nil {
		return err
	}
	c.State.SwitchConversation(counterpart, history)
	return nil
}

// Send posts to the active counterpart; the server reply is the only
// confirmation and lands at the tail of the view.
func (c *Client) Send(ctx context.Context, content string) (*model.Message, error) {
	counterpart := c.State.ActiveCounterpart()
	if counterpart == "" {
		return nil, fmt.Errorf("no active conversation")
	}

	c.State.OnSendStarted()
	var msg model.Message
	err := c.doJSON(ctx, http.MethodPost, "/api/messages",
		map[string]string{"receiver": counterpart, "content": content}, &msg)
	if err != nil {
		c.State.OnSendFailed()
		return nil, err
	}
	c.State.OnSendConfirmed(&msg)
	return &msg, nil
}

// MarkRead flags everything from the active counterpart as read.
func (c *Client) MarkRead(ctx context.Context) (int64, error) {
	counterpart := c.State.ActiveCounterpart()
	if counterpart == "" {
		return 0, fmt.Errorf("no active conversation")
	}
	var resp struct {
		Success         bool  `json:"success"`
		MessagesUpdated int64 `json:"messagesUpdated"`
	}
	err := c.doJSON(ctx, http.MethodPut, "/api/messages/read/"+counterpart, nil, &resp)
	if err != nil {
		return 0, err
	}
	return resp.MessagesUpdated, nil
}

// Delete removes an own message server-side, then locally.
func (c *Client) Delete(ctx context.Context, messageID string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/api/messages/"+messageID, nil, nil)
	if err != nil {
		return err
	}
	c.State.OnMessageDeleted(messageID)
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("auth-token", c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
