package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const MessageTableName = "messages" // 集合名

// Message 单聊消息主体。内容落库后不再变更，只有 read 标记和删除两种后续操作。
// json 字段名与既有前端约定保持一致（_id / timestamp）。
type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Sender    string             `bson:"sender" json:"sender"`     // 发送者ID
	Receiver  string             `bson:"receiver" json:"receiver"` // 接收者ID
	Content   string             `bson:"content" json:"content"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"` // 落库时间
	Read      bool               `bson:"read" json:"read"`
}
