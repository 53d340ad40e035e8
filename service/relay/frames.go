package relay

import (
	"encoding/json"
	"fmt"

	"MsgRelay/module/message/model"
)

// 线协议沿用既有前端的事件名：入站 addUser/sendMessage/deleteMessage/markRead，
// 出站 getMessage/messageDeleted/getOnlineUsers/readReceipt/ack。
// 所有帧都是一个带 type 的 JSON 对象。

type FrameType string

const (
	// client -> server
	FrameAddUser       FrameType = "addUser"
	FrameSendMessage   FrameType = "sendMessage"
	FrameDeleteMessage FrameType = "deleteMessage"
	FrameMarkRead      FrameType = "markRead"

	// server -> client
	FrameGetMessage     FrameType = "getMessage"
	FrameMessageDeleted FrameType = "messageDeleted"
	FrameOnlineUsers    FrameType = "getOnlineUsers"
	FrameReadReceipt    FrameType = "readReceipt"
	FrameAck            FrameType = "ack"
)

// Frame 入站帧。字段按类型取用，未用字段为空。
type Frame struct {
	Type FrameType `json:"type"`

	UserID      string `json:"userId,omitempty"`      // addUser
	Receiver    string `json:"receiver,omitempty"`    // sendMessage
	Content     string `json:"content,omitempty"`     // sendMessage
	MessageID   string `json:"messageId,omitempty"`   // deleteMessage
	Counterpart string `json:"counterpart,omitempty"` // markRead

	AckID string `json:"ackId,omitempty"` // 回执关联ID，原样回传
}

func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("frame missing type")
	}
	return f, nil
}

// ---- 服务端出站帧 ----

type messageArrivedFrame struct {
	Type    FrameType      `json:"type"`
	Message *model.Message `json:"message"`
}

type messageDeletedFrame struct {
	Type      FrameType `json:"type"`
	MessageID string    `json:"messageId"`
}

type onlineUsersFrame struct {
	Type  FrameType `json:"type"`
	Users []string  `json:"users"`
}

type readReceiptFrame struct {
	Type   FrameType `json:"type"`
	Reader string    `json:"reader"` // 谁读了你发的消息
}

// AckFrame is the synchronous reply to an inbound WS request frame.
type AckFrame struct {
	Type  FrameType `json:"type"`
	AckID string    `json:"ackId,omitempty"`
	OK    bool      `json:"ok"`
	Code  int       `json:"code,omitempty"`
	Error string    `json:"error,omitempty"`

	Message *model.Message `json:"message,omitempty"` // sendMessage 的回执
	Updated int64          `json:"updated,omitempty"` // markRead 的回执
}

func BuildMessageArrived(msg *model.Message) []byte {
	data, _ := json.Marshal(&messageArrivedFrame{Type: FrameGetMessage, Message: msg})
	return data
}

func BuildMessageDeleted(messageID string) []byte {
	data, _ := json.Marshal(&messageDeletedFrame{Type: FrameMessageDeleted, MessageID: messageID})
	return data
}

func BuildOnlineUsers(users []string) []byte {
	if users == nil {
		users = []string{}
	}
	data, _ := json.Marshal(&onlineUsersFrame{Type: FrameOnlineUsers, Users: users})
	return data
}

func BuildReadReceipt(reader string) []byte {
	data, _ := json.Marshal(&readReceiptFrame{Type: FrameReadReceipt, Reader: reader})
	return data
}

func BuildAck(ack *AckFrame) []byte {
	ack.Type = FrameAck
	data, _ := json.Marshal(ack)
	return data
}
