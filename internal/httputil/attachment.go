package httputil

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SetAttachmentHeaders marks the response as a binary download named displayName.
// The name is URL-escaped so it can never break out of the header value.
func SetAttachmentHeaders(c *gin.Context, displayName string, size int64) {
	c.Header("Content-Type", "application/octet-stream")
	c.Header(
		"Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, url.PathEscape(displayName)),
	)
	if size >= 0 {
		c.Header("Content-Length", strconv.FormatInt(size, 10))
	}
	c.Header("Cache-Control", "no-store")
}

// AttachmentFilename extracts and unescapes the filename from a Content-Disposition header value.
func AttachmentFilename(contentDisposition string) (string, bool) {
	const prefix = `attachment; filename="`
	if len(contentDisposition) <= len(prefix)+1 ||
		contentDisposition[:len(prefix)] != prefix ||
		contentDisposition[len(contentDisposition)-1] != '"' {
		return "", false
	}

	name, err := url.PathUnescape(contentDisposition[len(prefix) : len(contentDisposition)-1])
	if err != nil {
		return "", false
	}
	return name, true
}
