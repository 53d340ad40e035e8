package message

import (
	"context"
	"time"

	"MsgRelay/module/message/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store 持久化消息存储。absent 一律以 (nil, nil) / (false, nil) 表达，
// error 只代表存储本身不可用。
type Store interface {
	// Create persists a new unread message; id and timestamp are assigned here.
	Create(ctx context.Context, sender, receiver, content string) (*model.Message, error)
	// FindByID returns the message or nil if absent.
	FindByID(ctx context.Context, id string) (*model.Message, error)
	// DeleteByID reports whether a message was actually removed.
	DeleteByID(ctx context.Context, id string) (bool, error)
	// MarkReadBatch flips read=false -> true for sender->receiver and
	// returns the number of updated messages. Idempotent.
	MarkReadBatch(ctx context.Context, sender, receiver string) (int64, error)
	// FindConversation returns all messages between a and b, timestamp ascending.
	FindConversation(ctx context.Context, a, b string) ([]*model.Message, error)
}

// MongoStore 生产实现，单集合。
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(model.MessageTableName)}
}

func (s *MongoStore) Create(ctx context.Context, sender, receiver, content string) (*model.Message, error) {
	msg := &model.Message{
		ID:        primitive.NewObjectID(),
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Timestamp: time.Now(),
		Read:      false,
	}
	if _, err := s.coll.InsertOne(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*model.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil // 非法ID等价于不存在
	}
	var msg model.Message
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MongoStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) MarkReadBatch(ctx context.Context, sender, receiver string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"sender": sender, "receiver": receiver, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) FindConversation(ctx context.Context, a, b string) ([]*model.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender": a, "receiver": b},
		bson.M{"sender": b, "receiver": a},
	}}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*model.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
