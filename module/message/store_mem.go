package message

import (
	"context"
	"sort"
	"sync"
	"time"

	"MsgRelay/module/message/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemStore 内存实现：开发模式与单测用，语义与 MongoStore 对齐。
type MemStore struct {
	mu   sync.RWMutex
	msgs map[string]*model.Message
}

func NewMemStore() *MemStore {
	return &MemStore{msgs: make(map[string]*model.Message)}
}

func (s *MemStore) Create(ctx context.Context, sender, receiver, content string) (*model.Message, error) {
	msg := &model.Message{
		ID:        primitive.NewObjectID(),
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Timestamp: time.Now(),
		Read:      false,
	}
	s.mu.Lock()
	s.msgs[msg.ID.Hex()] = msg
	s.mu.Unlock()
	return msg, nil
}

func (s *MemStore) FindByID(ctx context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.msgs[id]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (s *MemStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.msgs[id]; !ok {
		return false, nil
	}
	delete(s.msgs, id)
	return true, nil
}

func (s *MemStore) MarkReadBatch(ctx context.Context, sender, receiver string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.msgs {
		if m.Sender == sender && m.Receiver == receiver && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (s *MemStore) FindConversation(ctx context.Context, a, b string) ([]*model.Message, error) {
	s.mu.RLock()
	out := make([]*model.Message, 0)
	for _, m := range s.msgs {
		if (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a) {
			cp := *m
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID.Hex() < out[j].ID.Hex()
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}
