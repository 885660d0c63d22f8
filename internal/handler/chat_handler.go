package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mrecall/internal/model"
	"github.com/xxxsen/mrecall/internal/pkg/errcode"
	"github.com/xxxsen/mrecall/internal/pkg/response"
	"github.com/xxxsen/mrecall/internal/service"
)

type ChatHandler struct {
	chat      *service.ChatService
	retrieval *service.RetrievalService
}

func NewChatHandler(chat *service.ChatService, retrieval *service.RetrievalService) *ChatHandler {
	return &ChatHandler{chat: chat, retrieval: retrieval}
}

type chatRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	TopK   int    `json:"top_k"`
}

type searchResponse struct {
	Items []*model.Candidate `json:"items"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	userID := resolveUserID(c, req.UserID)
	if userID == "" || strings.TrimSpace(req.Query) == "" {
		response.Error(c, errcode.ErrInvalid, "user_id and query are required")
		return
	}
	res, err := h.chat.Chat(c.Request.Context(), userID, req.Query, req.TopK)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *ChatHandler) Search(c *gin.Context) {
	userID := resolveUserID(c, c.Query("user_id"))
	query := c.Query("q")
	if userID == "" || strings.TrimSpace(query) == "" {
		response.Error(c, errcode.ErrInvalid, "user_id and q are required")
		return
	}
	topK, _ := strconv.Atoi(c.Query("top_k"))
	items, err := h.retrieval.Search(c.Request.Context(), userID, query, topK)
	if err != nil {
		handleError(c, err)
		return
	}
	if items == nil {
		items = []*model.Candidate{}
	}
	response.Success(c, searchResponse{Items: items})
}
