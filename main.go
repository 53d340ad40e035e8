package main

import (
	"context"
	"fmt"
	"time"

	"MsgRelay/data/mongoutil"
	"MsgRelay/global/config"
	"MsgRelay/logger"
	msghandler "MsgRelay/module/message/handler"
	"MsgRelay/service/relay"
	"MsgRelay/service/storage"

	"MsgRelay/middleware/security"
	"MsgRelay/module/message"

	"github.com/gin-gonic/gin"
)

func main() {
	config.Load()
	cfg := config.Global

	store := buildStore(cfg)

	if cfg.RedisAddr != "" {
		err := storage.InitRedis(storage.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			// 镜像是可选的，连不上降级继续跑
			logger.Warnf("redis presence mirror disabled: %v", err)
		}
	}

	srv := relay.NewServer(store, relay.Config{
		NodeID:        cfg.NodeId,
		SendQueue:     cfg.SendQueue,
		FanoutWorkers: cfg.FanoutWorkers,
		FanoutQueue:   cfg.FanoutQueue,
		PresenceTTL:   cfg.PresenceTTL,
	})
	defer srv.Close()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.String(200, "msg relay up, node %s", cfg.NodeId)
	})
	r.GET("/ws", srv.HandleWS)

	auth := security.Middleware(security.DefaultOptions(config.GetJwtSecret()))
	msghandler.New(srv).Register(r, auth)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Infof("msg relay listening at %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Errorf("server exited: %v", err)
	}
}

func buildStore(cfg config.AppConfig) message.Store {
	if cfg.MemoryStore {
		logger.Warn("using in-memory message store (messages are not durable)")
		return message.NewMemStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{
		Uri:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
	})
	if err != nil {
		logger.Errorf("mongo unavailable: %v", err)
		panic(err)
	}
	return message.NewMongoStore(cli.GetDB())
}
