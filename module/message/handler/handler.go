package handler

import (
	"errors"
	"net/http"

	mw "MsgRelay/middleware/security"
	"MsgRelay/module/message/model"
	"MsgRelay/service/relay"
	"MsgRelay/tools/errs"

	"github.com/gin-gonic/gin"
)

// REST 消息路由，与既有前端的 API 形状保持一致。
// 发送/删除/已读都走中继核心，REST 请求同样会触发对端的实时推送。
type Handler struct {
	relay *relay.Server
}

func New(s *relay.Server) *Handler {
	return &Handler{relay: s}
}

func (h *Handler) Register(r *gin.Engine, auth gin.HandlerFunc) {
	g := r.Group("/api/messages", auth)
	g.GET("/:userId", h.GetConversation)
	g.POST("", h.SendMessage)
	g.PUT("/read/:userId", h.MarkRead)
	g.DELETE("/:messageId", h.DeleteMessage)
}

// GetConversation - GET /api/messages/:userId
func (h *Handler) GetConversation(c *gin.Context) {
	msgs, err := h.relay.Conversation(c.Request.Context(), mw.UserID(c), c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	if msgs == nil {
		// 空会话回 [] 而不是 null
		msgs = []*model.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

type sendRequest struct {
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
}

// SendMessage - POST /api/messages
// 同步响应体就是发送方的唯一确认（带 id 和 timestamp 的持久化消息）。
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	msg, err := h.relay.Send(c.Request.Context(), mw.UserID(c), req.Receiver, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// MarkRead - PUT /api/messages/read/:userId
func (h *Handler) MarkRead(c *gin.Context) {
	n, err := h.relay.MarkRead(c.Request.Context(), mw.UserID(c), c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messagesUpdated": n})
}

// DeleteMessage - DELETE /api/messages/:messageId
func (h *Handler) DeleteMessage(c *gin.Context) {
	if err := h.relay.Delete(c.Request.Context(), mw.UserID(c), c.Param("messageId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Message deleted successfully"})
}

func writeError(c *gin.Context, err error) {
	var ce *errs.CodeError
	if !errors.As(err, &ce) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	switch ce.Code {
	case errs.CodeValidationFailed:
		c.JSON(http.StatusBadRequest, gin.H{"error": ce.Msg, "detail": ce.Detail})
	case errs.CodeNotAuthenticated:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Please authenticate using a valid token"})
	case errs.CodeNotAuthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Not authorized to delete this message"})
	case errs.CodeNotFound:
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Message not found"})
	case errs.CodeStoreUnavailable:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}
