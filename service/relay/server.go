package relay

import (
	"context"
	"strings"
	"time"

	"MsgRelay/logger"
	"MsgRelay/module/message"
	"MsgRelay/module/message/model"
	"MsgRelay/service/storage"
	"MsgRelay/tools/errs"
	"MsgRelay/tools/ids"
	"MsgRelay/tools/safe"
)

type Config struct {
	NodeID        string
	SendQueue     int           // 每连接发送队列长度
	FanoutWorkers int
	FanoutQueue   int
	PresenceTTL   time.Duration // redis 镜像 TTL
}

func (c *Config) norm() {
	if c.NodeID == "" {
		c.NodeID = "relay_1"
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = 4
	}
	if c.FanoutQueue <= 0 {
		c.FanoutQueue = 1024
	}
	if c.PresenceTTL <= 0 {
		c.PresenceTTL = 120 * time.Second
	}
}

// Server 中继核心：接收连接级事件（connect/identify/send/delete/markRead/
// disconnect），维护在线注册表，经存储落库后做定向推送或全量广播。
// 落库先于推送：推出去的消息一定有持久化记录；推送失败不回滚存储。
type Server struct {
	conf  Config
	store message.Store
	reg   *Registry
	fan   *Fanout
	disp  *Dispatcher
}

func NewServer(store message.Store, conf Config) *Server {
	conf.norm()
	s := &Server{
		conf:  conf,
		store: store,
		fan:   NewFanout(conf.FanoutWorkers, conf.FanoutQueue),
		disp:  NewDispatcher(),
	}
	s.reg = NewRegistry(s.broadcastPresence)
	s.registerHandlers()
	return s
}

func (s *Server) Registry() *Registry     { return s.reg }
func (s *Server) Dispatcher() *Dispatcher { return s.disp }
func (s *Server) Store() message.Store    { return s.store }

func (s *Server) Close() {
	s.fan.Close()
}

// Connect 为新 socket 分配连接句柄并启动写协程；此时连接还是匿名的。
func (s *Server) Connect(ws Conn) *Client {
	c := NewClient(ids.GenerateString(), ws, s.conf.SendQueue)
	s.reg.AddConn(c)
	safe.Go(c.WritePump)
	logger.Debugf("conn open conn=%s", c.ConnID)
	return c
}

// Identify 把用户身份绑定到连接；重复绑定/换连接直接覆盖。
func (s *Server) Identify(c *Client, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errs.ErrValidationFailed.WithDetail("empty user identity")
	}
	c.UserID = userID
	s.reg.Identify(userID, c)
	logger.Infof("user online user=%s conn=%s", userID, c.ConnID)

	if storage.Enabled() {
		ttl := s.conf.PresenceTTL
		safe.Go(func() {
			if err := storage.PresenceOnline(userID, s.conf.NodeID, ttl); err != nil {
				logger.Debugf("presence mirror online failed user=%s err=%v", userID, err)
			}
		})
	}
	return nil
}

// Send 校验、落库、然后（仅当接收方在线时）定向推送。
// 返回的持久化消息就是发送方的唯一确认；推送通道上不会有发送方回显。
func (s *Server) Send(ctx context.Context, sender, receiver, content string) (*model.Message, error) {
	if sender == "" {
		return nil, errs.ErrNotAuthenticated
	}
	receiver = strings.TrimSpace(receiver)
	if receiver == "" {
		return nil, errs.ErrValidationFailed.WithDetail("receiver is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, errs.ErrValidationFailed.WithDetail("message content cannot be empty")
	}
	if receiver == sender {
		return nil, errs.ErrValidationFailed.WithDetail("sender and receiver must differ")
	}

	msg, err := s.store.Create(ctx, sender, receiver, content)
	if err != nil {
		logger.Errorf("store create failed sender=%s err=%v", sender, err)
		return nil, errs.ErrStoreUnavailable.WithDetail(err.Error())
	}

	if rc := s.reg.Lookup(receiver); rc != nil {
		s.fan.Deliver(rc, BuildMessageArrived(msg))
	}
	return msg, nil
}

// MarkRead 批量把 counterpart->reader 的未读消息置已读，幂等。
// 有实际更新时给原发送方（在线的话）推一条已读回执。
func (s *Server) MarkRead(ctx context.Context, reader, counterpart string) (int64, error) {
	if reader == "" {
		return 0, errs.ErrNotAuthenticated
	}
	counterpart = strings.TrimSpace(counterpart)
	if counterpart == "" {
		return 0, errs.ErrValidationFailed.WithDetail("counterpart is required")
	}

	n, err := s.store.MarkReadBatch(ctx, counterpart, reader)
	if err != nil {
		return 0, errs.ErrStoreUnavailable.WithDetail(err.Error())
	}
	if n > 0 {
		if cc := s.reg.Lookup(counterpart); cc != nil {
			s.fan.Deliver(cc, BuildReadReceipt(reader))
		}
	}
	return n, nil
}

// Delete 仅发送方可删；删除成功后（接收方在线的话）推送 messageDeleted，
// 只带消息ID不带内容。
func (s *Server) Delete(ctx context.Context, requester, messageID string) error {
	if requester == "" {
		return errs.ErrNotAuthenticated
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return errs.ErrValidationFailed.WithDetail("messageId is required")
	}

	msg, err := s.store.FindByID(ctx, messageID)
	if err != nil {
		return errs.ErrStoreUnavailable.WithDetail(err.Error())
	}
	if msg == nil {
		return errs.ErrNotFound.WithDetail("message not found")
	}
	if msg.Sender != requester {
		return errs.ErrNotAuthorized.WithDetail("not authorized to delete this message")
	}

	ok, err := s.store.DeleteByID(ctx, messageID)
	if err != nil {
		return errs.ErrStoreUnavailable.WithDetail(err.Error())
	}
	if !ok {
		return errs.ErrNotFound.WithDetail("message already gone")
	}

	if rc := s.reg.Lookup(msg.Receiver); rc != nil {
		s.fan.Deliver(rc, BuildMessageDeleted(messageID))
	}
	return nil
}

// Conversation 拉全量会话（REST 路径用；客户端切换会话时重新拉取）。
func (s *Server) Conversation(ctx context.Context, a, b string) ([]*model.Message, error) {
	if a == "" {
		return nil, errs.ErrNotAuthenticated
	}
	b = strings.TrimSpace(b)
	if b == "" {
		return nil, errs.ErrValidationFailed.WithDetail("counterpart is required")
	}
	msgs, err := s.store.FindConversation(ctx, a, b)
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WithDetail(err.Error())
	}
	return msgs, nil
}

// Disconnect 传输层关闭后的统一收尾；对同一连接恰好生效一次，
// 之后该连接不再可寻址。
func (s *Server) Disconnect(c *Client) {
	userID, removed := s.reg.Remove(c.ConnID)
	c.CloseSend()
	if removed {
		logger.Infof("user offline user=%s conn=%s", userID, c.ConnID)
		if storage.Enabled() {
			// removed==true 说明没有更新的连接顶掉过该绑定，镜像可以清
			safe.Go(func() {
				if err := storage.PresenceOffline(userID); err != nil {
					logger.Debugf("presence mirror offline failed user=%s err=%v", userID, err)
				}
			})
		}
	} else {
		logger.Debugf("conn closed conn=%s", c.ConnID)
	}
}

// broadcastPresence 把完整在线名单推给所有存活连接（含匿名连接）。
func (s *Server) broadcastPresence() {
	s.fan.Broadcast(s.reg.AllConns(), BuildOnlineUsers(s.reg.Snapshot()))
}
