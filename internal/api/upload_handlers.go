package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mojochat/internal/blob"
)

const (
	maxUploadBytes = 5 << 20
	// requests beyond this are cut off before the size check can report on them
	maxUploadRequestBytes = 4 * maxUploadBytes
)

var allowedContentTypes = []string{"image/jpeg", "image/png", "application/pdf"}

func isAllowedContentType(ct string) bool {
	for _, allowed := range allowedContentTypes {
		if ct == allowed {
			return true
		}
	}
	return false
}

// validateUpload returns every violated constraint, in a fixed order.
func validateUpload(size int64, contentType string) []string {
	var problems []string
	if size > maxUploadBytes {
		problems = append(problems, "File size should be less than 5MB")
	}
	if !isAllowedContentType(contentType) {
		problems = append(problems, "File type should be JPEG, PNG, or PDF")
	}
	return problems
}

func (h *Handler) uploadFile(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if c.Request.Body == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body is empty"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadRequestBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File size should be less than 5MB"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to process request"})
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to process request"})
		return
	}

	contentType := blob.DetectContentType(data)
	if problems := validateUpload(int64(len(data)), contentType); len(problems) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": strings.Join(problems, ", ")})
		return
	}

	obj, err := h.blobs.Put(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		h.internalError(c, "upload failed", err)
		return
	}
	c.JSON(http.StatusOK, obj)
}
