package client

import (
	"sync"

	"MsgRelay/module/message/model"
)

// State 客户端侧的对账层：活动会话 + 在线名单 + 未完成发送计数。
// 本地发送不做乐观插入——等服务端同步响应带回持久化消息再上尾部；
// 推送与响应的竞态由会话视图按ID去重兜底。
type State struct {
	mu      sync.Mutex
	self    string
	active  *Conversation
	online  map[string]struct{}
	pending int // 已发出、还没拿到同步确认的发送数
}

func NewState(self string) *State {
	return &State{
		self:   self,
		online: make(map[string]struct{}),
	}
}

func (s *State) Self() string { return s.self }

// SwitchConversation 切换对端：丢弃内存中的旧视图，用重新拉取的全量
// 会话重建，之后的推送按新对端过滤。
func (s *State) SwitchConversation(counterpart string, history []*model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = NewConversation(counterpart, history)
}

func (s *State) ActiveCounterpart() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.counterpart
}

func (s *State) Messages() []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	return s.active.Messages()
}

// OnSendStarted marks a send in flight. Nothing is appended yet.
func (s *State) OnSendStarted() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
}

// OnSendConfirmed appends the persisted echo returned by the server.
func (s *State) OnSendConfirmed(msg *model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending > 0 {
		s.pending--
	}
	if msg == nil || s.active == nil {
		return
	}
	if msg.Receiver == s.active.counterpart {
		s.active.Append(msg)
	}
}

// OnSendFailed clears the in-flight marker without touching the view.
func (s *State) OnSendFailed() {
	s.mu.Lock()
	if s.pending > 0 {
		s.pending--
	}
	s.mu.Unlock()
}

// OnMessageArrived applies a pushed message; only the active conversation
// keeps messages in memory, everything else is re-fetched on switch.
func (s *State) OnMessageArrived(msg *model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg == nil || s.active == nil {
		return false
	}
	if msg.Sender != s.active.counterpart || msg.Receiver != s.self {
		return false
	}
	return s.active.Append(msg)
}

// OnMessageDeleted removes the message if loaded; silent no-op otherwise.
func (s *State) OnMessageDeleted(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return false
	}
	return s.active.Remove(messageID)
}

// OnReadReceipt 对端读掉了我发的消息：把视图里自己发的都置已读。
func (s *State) OnReadReceipt(reader string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.counterpart != reader {
		return
	}
	s.active.MarkOwnRead(s.self)
}

// OnOnlineUsers replaces the full presence set. UI 指示用，
// 绝不用来决定要不要发送。
func (s *State) OnOnlineUsers(users []string) {
	set := make(map[string]struct{}, len(users))
	for _, u := range users {
		set[u] = struct{}{}
	}
	s.mu.Lock()
	s.online = set
	s.mu.Unlock()
}

func (s *State) IsOnline(user string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[user]
	return ok
}

func (s *State) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.online))
	for u := range s.online {
		out = append(out, u)
	}
	return out
}

func (s *State) PendingSends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
