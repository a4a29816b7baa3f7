package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nak1ro/micro-scribe-sub003/internal/api/middleware"
	"github.com/nak1ro/micro-scribe-sub003/internal/api/v1/dto"
	"github.com/nak1ro/micro-scribe-sub003/internal/export"
	"github.com/nak1ro/micro-scribe-sub003/internal/model"
	"github.com/nak1ro/micro-scribe-sub003/internal/transcribe"
	"github.com/nak1ro/micro-scribe-sub003/internal/translate"
)

// JobHandler exposes transcription jobs over HTTP.
type JobHandler struct {
	orchestrator *transcribe.Orchestrator
	translator   *translate.Runner
	exporter     *export.Service
}

func NewJobHandler(orchestrator *transcribe.Orchestrator, translator *translate.Runner, exporter *export.Service) *JobHandler {
	return &JobHandler{
		orchestrator: orchestrator,
		translator:   translator,
		exporter:     exporter,
	}
}

// Create handles POST /jobs
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := middleware.ValidateRequest(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}

	job, err := h.orchestrator.StartJob(c.Request.Context(), middleware.UserID(c), transcribe.StartJobRequest{
		SessionID:    req.UploadSessionID,
		MediaID:      req.MediaID,
		Quality:      model.Quality(req.Quality),
		LanguageHint: req.LanguageHint,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.JobFromModel(job))
}

// Get handles GET /jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	job, err := h.orchestrator.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.JobFromModel(job))
}

// Cancel handles POST /jobs/:id/cancel
func (h *JobHandler) Cancel(c *gin.Context) {
	job, err := h.orchestrator.Cancel(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.JobFromModel(job))
}

// Translate handles POST /jobs/:id/translate
func (h *JobHandler) Translate(c *gin.Context) {
	var req dto.TranslateJobRequest
	if err := middleware.ValidateRequest(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}

	job, err := h.translator.Start(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.TargetLanguage)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.JobFromModel(job))
}

// Export handles GET /jobs/:id/export?format=txt|srt|vtt|xlsx
func (h *JobHandler) Export(c *gin.Context) {
	file, err := h.exporter.Export(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Query("format"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
