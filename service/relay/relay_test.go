package relay

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"MsgRelay/module/message"
	"MsgRelay/tools/errs"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- 测试用连接 ----

type fakeConn struct {
	writes    chan []byte
	readCh    chan []byte
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		writes: make(chan []byte, 64),
		readCh: make(chan []byte),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.readCh
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, data, nil
}

func (f *fakeConn) WriteMessage(mt int, data []byte) error {
	select {
	case f.writes <- data:
	default:
	}
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.readCh) })
	return nil
}

// recvFrame 等待指定类型的帧，途中允许出现其它帧（广播等）。
func recvFrame(t *testing.T, fc *fakeConn, want FrameType) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-fc.writes:
			var m map[string]any
			require.NoError(t, json.Unmarshal(data, &m))
			if m["type"] == string(want) {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s frame", want)
			return nil
		}
	}
}

func expectSilence(t *testing.T, fc *fakeConn, within time.Duration) {
	t.Helper()
	select {
	case data := <-fc.writes:
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(within):
	}
}

func drain(fc *fakeConn) {
	for {
		select {
		case <-fc.writes:
		default:
			return
		}
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	// 单 worker 让投递顺序确定
	s := NewServer(message.NewMemStore(), Config{FanoutWorkers: 1, FanoutQueue: 256, SendQueue: 32})
	t.Cleanup(s.Close)
	return s
}

func connect(s *Server) (*Client, *fakeConn) {
	fc := newFakeConn()
	return s.Connect(fc), fc
}

// ---- 在线广播 ----

func TestIdentifyBroadcastsToAllConnections(t *testing.T) {
	s := newTestServer(t)

	c1, f1 := connect(s)
	c2, f2 := connect(s)
	_, f3 := connect(s)

	require.NoError(t, s.Identify(c1, "A"))
	require.NoError(t, s.Identify(c2, "B"))
	for _, fc := range []*fakeConn{f1, f2, f3} {
		recvFrame(t, fc, FrameOnlineUsers)
	}
	drainAll(f1, f2, f3)

	// 第三条连接绑定：原有三条连接各收到恰好一次全量名单
	c3, _ := connect(s)
	require.NoError(t, s.Identify(c3, "C"))
	for _, fc := range []*fakeConn{f1, f2, f3} {
		m := recvFrame(t, fc, FrameOnlineUsers)
		assert.ElementsMatch(t, []any{"A", "B", "C"}, m["users"].([]any))
		expectSilence(t, fc, 150*time.Millisecond)
	}
}

func TestDisconnectBroadcastsUpdatedSet(t *testing.T) {
	s := newTestServer(t)

	ca, fa := connect(s)
	cb, fb := connect(s)
	require.NoError(t, s.Identify(ca, "A"))
	require.NoError(t, s.Identify(cb, "B"))
	recvFrame(t, fa, FrameOnlineUsers)
	drainAll(fa, fb)

	s.Disconnect(cb)

	m := recvFrame(t, fa, FrameOnlineUsers)
	assert.Equal(t, []any{"A"}, m["users"].([]any))
	expectSilence(t, fa, 150*time.Millisecond)
}

// ---- 发送 ----

func TestSendPersistsThenPushes(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	ca, fa := connect(s)
	cb, fb := connect(s)
	require.NoError(t, s.Identify(ca, "A"))
	require.NoError(t, s.Identify(cb, "B"))
	drainAll(fa, fb)

	msg, err := s.Send(ctx, "A", "B", "hello")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.False(t, msg.ID.IsZero())
	assert.False(t, msg.Timestamp.IsZero())
	assert.False(t, msg.Read)

	// 落库校验：回查会话恰好一条
	conv, err := s.Store().FindConversation(ctx, "A", "B")
	require.NoError(t, err)
	require.Len(t, conv, 1)
	assert.Equal(t, "hello", conv[0].Content)

	// 接收方拿到推送，内容完整
	push := recvFrame(t, fb, FrameGetMessage)
	pm := push["message"].(map[string]any)
	assert.Equal(t, "hello", pm["content"])
	assert.Equal(t, "A", pm["sender"])
	assert.Equal(t, "B", pm["receiver"])

	// 发送方的确认只有同步返回值，推送通道上不回显
	expectSilence(t, fa, 150*time.Millisecond)
}

func TestSendToOfflineReceiverIsStoreOnly(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	ca, _ := connect(s)
	require.NoError(t, s.Identify(ca, "A"))

	msg, err := s.Send(ctx, "A", "B", "offline delivery")
	require.NoError(t, err)
	require.NotNil(t, msg)

	conv, _ := s.Store().FindConversation(ctx, "A", "B")
	assert.Len(t, conv, 1, "persist succeeds regardless of receiver presence")
}

func TestSendValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		sender   string
		receiver string
		content  string
		wantErr  *errs.CodeError
	}{
		{"empty content", "A", "B", "   ", errs.ErrValidationFailed},
		{"empty receiver", "A", "", "hi", errs.ErrValidationFailed},
		{"self send", "A", "A", "hi", errs.ErrValidationFailed},
		{"anonymous sender", "", "B", "hi", errs.ErrNotAuthenticated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := s.Send(ctx, tc.sender, tc.receiver, tc.content)
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	conv, _ := s.Store().FindConversation(ctx, "A", "B")
	assert.Empty(t, conv, "rejected sends must not create messages")
}

// ---- 已读 ----

func TestMarkReadIdempotentWithReceipt(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	ca, fa := connect(s)
	cb, _ := connect(s)
	require.NoError(t, s.Identify(ca, "A"))
	require.NoError(t, s.Identify(cb, "B"))

	_, err := s.Send(ctx, "A", "B", "one")
	require.NoError(t, err)
	_, err = s.Send(ctx, "A", "B", "two")
	require.NoError(t, err)
	drainAll(fa)

	n, err := s.MarkRead(ctx, "B", "A")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// 原发送方收到已读回执
	m := recvFrame(t, fa, FrameReadReceipt)
	assert.Equal(t, "B", m["reader"])

	// 再来一次：0 条更新，不再推回执
	n, err = s.MarkRead(ctx, "B", "A")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	expectSilence(t, fa, 150*time.Millisecond)

	conv, _ := s.Store().FindConversation(ctx, "A", "B")
	for _, msg := range conv {
		assert.True(t, msg.Read)
	}
}

// ---- 删除 ----

func TestDeleteAuthorization(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	ca, _ := connect(s)
	cb, fb := connect(s)
	require.NoError(t, s.Identify(ca, "A"))
	require.NoError(t, s.Identify(cb, "B"))

	msg, err := s.Send(ctx, "A", "B", "to be deleted")
	require.NoError(t, err)
	recvFrame(t, fb, FrameGetMessage)
	drainAll(fb)

	// 非发送者删除：拒绝，消息不动
	err = s.Delete(ctx, "B", msg.ID.Hex())
	assert.ErrorIs(t, err, errs.ErrNotAuthorized)
	got, _ := s.Store().FindByID(ctx, msg.ID.Hex())
	require.NotNil(t, got, "unauthorized delete must not remove the message")

	// 不存在的ID：NotFound
	err = s.Delete(ctx, "A", "000000000000000000000000")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	// 发送者删除：成功，接收方收到只带ID的通知
	require.NoError(t, s.Delete(ctx, "A", msg.ID.Hex()))
	m := recvFrame(t, fb, FrameMessageDeleted)
	assert.Equal(t, msg.ID.Hex(), m["messageId"])
	_, hasContent := m["content"]
	assert.False(t, hasContent)

	got, _ = s.Store().FindByID(ctx, msg.ID.Hex())
	assert.Nil(t, got)
}

// ---- 连接状态机（WS 帧路径） ----

func TestMutatingFramesRejectedBeforeIdentify(t *testing.T) {
	s := newTestServer(t)

	c, fc := connect(s) // 从未 addUser

	err := s.Dispatcher().Dispatch(&Context{S: s}, &Frame{
		Type: FrameSendMessage, Receiver: "B", Content: "hi", AckID: "a1",
	}, c)
	require.NoError(t, err)

	ack := recvFrame(t, fc, FrameAck)
	assert.Equal(t, false, ack["ok"])
	assert.EqualValues(t, errs.CodeNotAuthenticated, ack["code"])
	assert.Equal(t, "a1", ack["ackId"])

	conv, _ := s.Store().FindConversation(context.Background(), "", "B")
	assert.Empty(t, conv, "no message may be created")
}

func TestSendFrameAckCarriesPersistedMessage(t *testing.T) {
	s := newTestServer(t)

	ca, fa := connect(s)
	cb, fb := connect(s)
	require.NoError(t, s.Identify(ca, "A"))
	require.NoError(t, s.Identify(cb, "B"))
	drainAll(fa, fb)

	err := s.Dispatcher().Dispatch(&Context{S: s}, &Frame{
		Type: FrameSendMessage, Receiver: "B", Content: "via ws", AckID: "s1",
	}, ca)
	require.NoError(t, err)

	ack := recvFrame(t, fa, FrameAck)
	assert.Equal(t, true, ack["ok"])
	assert.Equal(t, "s1", ack["ackId"])
	am := ack["message"].(map[string]any)
	assert.Equal(t, "via ws", am["content"])

	push := recvFrame(t, fb, FrameGetMessage)
	assert.Equal(t, "via ws", push["message"].(map[string]any)["content"])
}

func TestAddUserFrameRejectsEmptyIdentity(t *testing.T) {
	s := newTestServer(t)
	c, fc := connect(s)

	err := s.Dispatcher().Dispatch(&Context{S: s}, &Frame{Type: FrameAddUser, UserID: "  ", AckID: "i1"}, c)
	require.NoError(t, err)

	ack := recvFrame(t, fc, FrameAck)
	assert.Equal(t, false, ack["ok"])
	assert.EqualValues(t, errs.CodeValidationFailed, ack["code"])
	assert.Empty(t, s.Registry().Snapshot())
}

// ---- last-connect-wins 的推送寻址 ----

func TestPushTargetsNewestConnection(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	cb, _ := connect(s)
	require.NoError(t, s.Identify(cb, "B"))

	oldConn, oldFC := connect(s)
	require.NoError(t, s.Identify(oldConn, "A"))
	newConn, newFC := connect(s)
	require.NoError(t, s.Identify(newConn, "A")) // 顶掉旧连接

	assert.Equal(t, []string{"A", "B"}, s.Registry().Snapshot())
	drainAll(oldFC, newFC)

	_, err := s.Send(ctx, "B", "A", "to newest")
	require.NoError(t, err)

	recvFrame(t, newFC, FrameGetMessage)
	expectSilence(t, oldFC, 150*time.Millisecond)
}

// ---- 端到端 ----

func TestEndToEndConversationFlow(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	ca, fa := connect(s)
	cb, fb := connect(s)
	require.NoError(t, s.Identify(ca, "A"))
	require.NoError(t, s.Identify(cb, "B"))
	drainAll(fa, fb)

	// A -> B "hi"：B 先收到推送
	msg, err := s.Send(ctx, "A", "B", "hi")
	require.NoError(t, err)
	push := recvFrame(t, fb, FrameGetMessage)
	assert.Equal(t, "hi", push["message"].(map[string]any)["content"])

	// B 标记已读
	n, err := s.MarkRead(ctx, "B", "A")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	stored, _ := s.Store().FindByID(ctx, msg.ID.Hex())
	require.NotNil(t, stored)
	assert.True(t, stored.Read)

	// A 删除，B 收到 messageDeleted
	require.NoError(t, s.Delete(ctx, "A", msg.ID.Hex()))
	del := recvFrame(t, fb, FrameMessageDeleted)
	assert.Equal(t, msg.ID.Hex(), del["messageId"])
}

func drainAll(fcs ...*fakeConn) {
	// 给异步广播一点时间先到队列，再统一清空
	time.Sleep(50 * time.Millisecond)
	for _, fc := range fcs {
		drain(fc)
	}
}
