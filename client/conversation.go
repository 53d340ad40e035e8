package client

import (
	"MsgRelay/module/message/model"
)

// Conversation 与单个对端的有序、去重后的消息视图。
// 去重键是持久化ID：同一条消息可能同时从「发送确认」和「推送」两条路到达，
// 集合判重保证只进一次；到达顺序即显示顺序（推送晚于各自的落库）。
type Conversation struct {
	counterpart string
	msgs        []*model.Message
	seen        map[string]struct{}
}

func NewConversation(counterpart string, history []*model.Message) *Conversation {
	v := &Conversation{
		counterpart: counterpart,
		msgs:        make([]*model.Message, 0, len(history)),
		seen:        make(map[string]struct{}, len(history)),
	}
	for _, m := range history {
		v.Append(m)
	}
	return v
}

func (v *Conversation) Counterpart() string { return v.counterpart }

// Append adds the message at the tail unless its id is already present.
func (v *Conversation) Append(msg *model.Message) bool {
	if msg == nil {
		return false
	}
	id := msg.ID.Hex()
	if _, dup := v.seen[id]; dup {
		return false
	}
	v.seen[id] = struct{}{}
	v.msgs = append(v.msgs, msg)
	return true
}

// Remove drops the message with the given id; no-op when absent.
func (v *Conversation) Remove(messageID string) bool {
	if _, ok := v.seen[messageID]; !ok {
		return false
	}
	delete(v.seen, messageID)
	for i, m := range v.msgs {
		if m.ID.Hex() == messageID {
			v.msgs = append(v.msgs[:i], v.msgs[i+1:]...)
			break
		}
	}
	return true
}

// MarkOwnRead flips read=true on every message sent by self (已读回执到达时).
func (v *Conversation) MarkOwnRead(self string) {
	for _, m := range v.msgs {
		if m.Sender == self {
			m.Read = true
		}
	}
}

// Messages returns a copy of the ordered view.
func (v *Conversation) Messages() []*model.Message {
	out := make([]*model.Message, len(v.msgs))
	copy(out, v.msgs)
	return out
}

func (v *Conversation) Len() int { return len(v.msgs) }
