package relay

import (
	"context"
	"time"

	"MsgRelay/tools/errs"
)

const handleTimeout = 5 * time.Second

// WS 入站帧的处理器。所有变更类事件在 addUser 之前一律拒绝
// （连接状态机：匿名 -> 已绑定 -> 断开）。
func (s *Server) registerHandlers() {
	s.disp.Register(FrameAddUser, handleAddUser)
	s.disp.Register(FrameSendMessage, handleSendMessage)
	s.disp.Register(FrameDeleteMessage, handleDeleteMessage)
	s.disp.Register(FrameMarkRead, handleMarkRead)
}

func handleAddUser(ctx *Context, f *Frame, c *Client) error {
	if err := ctx.S.Identify(c, f.UserID); err != nil {
		// identify 正常情况下不需要直接回执（广播即隐式 ack），
		// 但拒绝时要让客户端知道绑定没有生效
		ctx.S.fan.Deliver(c, BuildAck(ackError(f.AckID, err)))
	}
	return nil
}

func handleSendMessage(ctx *Context, f *Frame, c *Client) error {
	tctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	msg, err := ctx.S.Send(tctx, c.UserID, f.Receiver, f.Content)
	if err != nil {
		ctx.S.fan.Deliver(c, BuildAck(ackError(f.AckID, err)))
		return nil
	}
	ctx.S.fan.Deliver(c, BuildAck(&AckFrame{AckID: f.AckID, OK: true, Message: msg}))
	return nil
}

func handleDeleteMessage(ctx *Context, f *Frame, c *Client) error {
	tctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if err := ctx.S.Delete(tctx, c.UserID, f.MessageID); err != nil {
		ctx.S.fan.Deliver(c, BuildAck(ackError(f.AckID, err)))
		return nil
	}
	ctx.S.fan.Deliver(c, BuildAck(&AckFrame{AckID: f.AckID, OK: true}))
	return nil
}

func handleMarkRead(ctx *Context, f *Frame, c *Client) error {
	tctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	n, err := ctx.S.MarkRead(tctx, c.UserID, f.Counterpart)
	if err != nil {
		ctx.S.fan.Deliver(c, BuildAck(ackError(f.AckID, err)))
		return nil
	}
	ctx.S.fan.Deliver(c, BuildAck(&AckFrame{AckID: f.AckID, OK: true, Updated: n}))
	return nil
}

func ackError(ackID string, err error) *AckFrame {
	return &AckFrame{
		AckID: ackID,
		OK:    false,
		Code:  errs.CodeOf(err),
		Error: err.Error(),
	}
}
