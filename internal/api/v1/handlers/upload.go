package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nak1ro/micro-scribe-sub003/internal/api/middleware"
	"github.com/nak1ro/micro-scribe-sub003/internal/api/v1/dto"
	"github.com/nak1ro/micro-scribe-sub003/internal/apperr"
	"github.com/nak1ro/micro-scribe-sub003/internal/storage"
	"github.com/nak1ro/micro-scribe-sub003/internal/upload"
)

// UploadHandler exposes the upload session lifecycle over HTTP.
type UploadHandler struct {
	manager *upload.Manager
}

func NewUploadHandler(manager *upload.Manager) *UploadHandler {
	return &UploadHandler{manager: manager}
}

// Initiate handles POST /uploads
func (h *UploadHandler) Initiate(c *gin.Context) {
	var req dto.InitiateUploadRequest
	if err := middleware.ValidateRequest(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}

	result, err := h.manager.Initiate(c.Request.Context(), middleware.UserID(c), upload.InitiateRequest{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.InitiateUploadResponse{
		SessionID: result.Session.ID,
		Status:    string(result.Session.Status),
		ExpiresAt: result.Session.ExpiresAt,
		UploadURL: result.UploadURL,
		PartSize:  result.PartSize,
		PartCount: result.PartCount,
	})
}

// PresignPart handles POST /uploads/:id/parts/:number
func (h *UploadHandler) PresignPart(c *gin.Context) {
	partNumber, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		middleware.HandleError(c, apperr.Validation("part number must be an integer"))
		return
	}

	url, err := h.manager.PresignPart(c.Request.Context(), middleware.UserID(c), c.Param("id"), partNumber)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.PresignPartResponse{
		PartNumber: partNumber,
		URL:        url,
	})
}

// Complete handles POST /uploads/:id/complete
func (h *UploadHandler) Complete(c *gin.Context) {
	var req dto.CompleteUploadRequest
	if err := middleware.ValidateRequest(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}

	parts := make([]storage.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, storage.Part{Number: p.PartNumber, ETag: p.ETag})
	}

	session, err := h.manager.Complete(c.Request.Context(), middleware.UserID(c), c.Param("id"), parts)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SessionFromModel(session))
}

// Get handles GET /uploads/:id
func (h *UploadHandler) Get(c *gin.Context) {
	session, err := h.manager.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SessionFromModel(session))
}

// Abort handles DELETE /uploads/:id
func (h *UploadHandler) Abort(c *gin.Context) {
	session, err := h.manager.Abort(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SessionFromModel(session))
}
