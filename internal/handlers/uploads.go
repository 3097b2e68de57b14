package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"cvbuilder/api/internal/media/sniffer"
	"cvbuilder/api/internal/service"
)

func (h HandlerSet) SaveSession(c *gin.Context) {
	limit := h.cfg.Analytics.MaxSaveBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	if err != nil {
		respondError(c, http.StatusBadRequest, "Failed to read body")
		return
	}

	result, err := h.snapshots.Save(c.Request.Context(), body)
	switch {
	case err == nil:
		respondData(c, result)
	case errors.Is(err, service.ErrPayloadTooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, "Payload too large (max 5MB)")
	case errors.Is(err, service.ErrSessionIDRequired):
		respondError(c, http.StatusBadRequest, "Session ID is required")
	case errors.Is(err, service.ErrInvalidSnapshot):
		respondError(c, http.StatusBadRequest, "Invalid session payload")
	default:
		h.log.Error().Err(err).Msg("save session failed")
		respondError(c, http.StatusInternalServerError, "Failed to save session")
	}
}

func (h HandlerSet) UploadProof(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if declared := sniffer.MimeTypeFromHTTP(http.Header(header.Header)); declared != "" {
		h.log.Debug().Str("declared_type", declared).Str("name", header.Filename).Msg("proof upload")
	}

	result, err := h.snapshots.UploadProof(c.Request.Context(), service.ProofInput{
		SessionID:    c.PostForm("sessionId"),
		CustomerName: c.PostForm("customerName"),
		Phone:        c.PostForm("phone"),
		File:         file,
		Size:         header.Size,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"url":      result.URL,
			"filename": result.Filename,
			"message":  "Payment proof uploaded successfully",
		})
	case errors.Is(err, service.ErrNoFile):
		respondError(c, http.StatusBadRequest, "No file provided")
	case errors.Is(err, service.ErrPayloadTooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, "File too large (max 5MB)")
	case errors.Is(err, service.ErrUnsupportedImage):
		respondError(c, http.StatusUnsupportedMediaType, "Unsupported file type")
	default:
		h.log.Error().Err(err).Msg("proof upload failed")
		respondError(c, http.StatusInternalServerError, "Failed to upload file")
	}
}
