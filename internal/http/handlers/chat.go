package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	chatrepo "github.com/yungbote/reelnotes-backend/internal/data/repos/chat"
	"github.com/yungbote/reelnotes-backend/internal/modules/chat"
	"github.com/yungbote/reelnotes-backend/internal/platform/dbctx"
	"github.com/yungbote/reelnotes-backend/internal/platform/logger"
)

type ChatHandler struct {
	log      *logger.Logger
	deps     chat.Deps
	messages chatrepo.ChatMessageRepo
}

func NewChatHandler(baseLog *logger.Logger, deps chat.Deps, messages chatrepo.ChatMessageRepo) *ChatHandler {
	return &ChatHandler{
		log:      baseLog.With("handler", "ChatHandler"),
		deps:     deps,
		messages: messages,
	}
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
	// Version pins the document version the message runs against; omit for
	// head.
	Version int `json:"version"`
}

// POST /api/jobs/:id/chat
func (h *ChatHandler) Post(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	out, err := chat.Handle(c.Request.Context(), h.deps, chat.Input{
		JobID:   jobID,
		Version: req.Version,
		Message: req.Message,
	})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, out)
}

// GET /api/jobs/:id/chat
func (h *ChatHandler) History(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	msgs, err := h.messages.ListByJob(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"messages": msgs})
}
