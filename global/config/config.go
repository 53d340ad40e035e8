package config

import (
	"os"
	"strconv"
	"time"

	"MsgRelay/logger"
	"MsgRelay/tools/ids"
)

const NodeTypeRelay = "msgRelay" // 单进程网关+中继

var Global = AppConfig{
	NodeType: NodeTypeRelay,
	NodeId:   "relay_1",
	Port:     5000,

	MongoURI:      "mongodb://127.0.0.1:27017",
	MongoDatabase: "inotebook",

	RedisAddr:     "", // 为空则不启用 presence 镜像
	RedisPassword: "",
	RedisDB:       0,
	PresenceTTL:   120 * time.Second,

	JwtSecret: "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=",

	FanoutWorkers: 4,
	FanoutQueue:   1024,
	SendQueue:     256,
}

type AppConfig struct {
	NodeType string
	NodeId   string
	Port     int

	MongoURI      string
	MongoDatabase string
	MemoryStore   bool // true: 不连 mongo，用内存存储（开发/测试）

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration

	JwtSecret string

	FanoutWorkers int
	FanoutQueue   int
	SendQueue     int // 每连接发送队列长度
}

// Load applies environment overrides and seeds the id generator.
func Load() {
	if v := os.Getenv("RELAY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			Global.Port = p
		}
	}
	if v := os.Getenv("RELAY_MONGO_URI"); v != "" {
		Global.MongoURI = v
	}
	if v := os.Getenv("RELAY_MONGO_DB"); v != "" {
		Global.MongoDatabase = v
	}
	if v := os.Getenv("RELAY_REDIS_ADDR"); v != "" {
		Global.RedisAddr = v
	}
	if v := os.Getenv("RELAY_REDIS_PASSWORD"); v != "" {
		Global.RedisPassword = v
	}
	if v := os.Getenv("RELAY_JWT_SECRET"); v != "" {
		Global.JwtSecret = v
	}
	if os.Getenv("RELAY_MEMORY_STORE") != "" {
		Global.MemoryStore = true
	}

	ids.SetNodeID(1)
	logger.Infof("config loaded node=%s port=%d memStore=%v", Global.NodeId, Global.Port, Global.MemoryStore)
}

func GetJwtSecret() []byte {
	return []byte(Global.JwtSecret)
}
