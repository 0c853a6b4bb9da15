package controllers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nocvalidator/backend/internal/config"
	"github.com/nocvalidator/backend/internal/logger"
	"github.com/nocvalidator/backend/internal/services"
)

// DocumentController accepts document uploads, exposes job status to
// pollers and lists archived validation records.
type DocumentController struct {
	registry *services.JobRegistry
	pipeline *services.ProcessingPipeline
	records  *services.RecordStore
	cfg      *config.ValidationConfig
}

func NewDocumentController(registry *services.JobRegistry, pipeline *services.ProcessingPipeline, records *services.RecordStore, cfg *config.ValidationConfig) *DocumentController {
	return &DocumentController{
		registry: registry,
		pipeline: pipeline,
		records:  records,
		cfg:      cfg,
	}
}

// Upload handles POST /documents/upload. The document arrives as multipart
// form data; processing happens asynchronously and the response carries the
// job id to poll.
func (dc *DocumentController) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No document uploaded"})
		return
	}

	if strings.ToLower(filepath.Ext(fileHeader.Filename)) != ".pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only PDF documents are supported"})
		return
	}

	maxBytes := int64(dc.cfg.MaxFileSizeMB * 1024 * 1024)
	if fileHeader.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("Document exceeds the %.0f MB limit", dc.cfg.MaxFileSizeMB),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read document"})
		return
	}
	defer file.Close()

	document, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read document"})
		return
	}

	rules, err := dc.cfg.BuildRules()
	if err != nil {
		logger.Error("Invalid validation rule configuration", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Validation rules are misconfigured"})
		return
	}

	opts := services.PipelineOptions{
		UseApproximation:  parseFormBool(c, "use_approximation", false),
		UseValidation:     parseFormBool(c, "use_validation", true),
		MaxPagesPerChunk:  dc.cfg.MaxPagesPerChunk,
		MaxParallelChunks: dc.cfg.MaxParallelChunks,
		Scoring:           dc.cfg.ScoringConfig(),
		Rules:             rules,
		ApprovalThreshold: dc.cfg.ApprovalThreshold,
		ReviewThreshold:   dc.cfg.ReviewThreshold,
	}

	jobID := dc.registry.Create()
	if err := dc.pipeline.Submit(jobID, document, fileHeader.Filename, opts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start processing"})
		return
	}

	logger.WithJob(jobID).WithField("filename", fileHeader.Filename).Info("Document accepted for validation")
	c.JSON(http.StatusAccepted, gin.H{
		"success":  true,
		"jobId":    jobID,
		"filename": fileHeader.Filename,
		"message":  "Document accepted for processing",
	})
}

// GetJob handles GET /jobs/:jobId and returns the current snapshot.
func (dc *DocumentController) GetJob(c *gin.Context) {
	jobID := c.Param("jobId")

	snapshot, err := dc.registry.Get(jobID)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job"})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// ListRecords handles GET /records with limit/offset paging.
func (dc *DocumentController) ListRecords(c *gin.Context) {
	if dc.records == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Record storage is not configured"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := dc.records.List(limit, offset)
	if err != nil {
		logger.Error("Failed to list validation records", map[string]interface{}{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"records": records,
		"count":   len(records),
	})
}

func parseFormBool(c *gin.Context, key string, fallback bool) bool {
	raw := c.PostForm(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}
