package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DecompressRequest inflates gzip request bodies. Plain and inflated bodies
// are both capped at limit bytes; a non-positive limit disables the cap.
func DecompressRequest(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := c.Request.Body
		if strings.Contains(c.GetHeader("Content-Encoding"), "gzip") {
			zr, err := gzip.NewReader(body)
			if err != nil {
				c.AbortWithStatus(http.StatusBadRequest)
				return
			}
			defer zr.Close()
			defer body.Close()
			body = io.NopCloser(zr)
			c.Request.Header.Del("Content-Encoding")
		}
		if limit > 0 {
			body = http.MaxBytesReader(c.Writer, body, limit)
		}
		c.Request.Body = body
		c.Next()
	}
}
