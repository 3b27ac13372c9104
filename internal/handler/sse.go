package handler

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
)

// writeSSEData writes raw JSON as one unnamed SSE event and flushes it.
func writeSSEData(c *gin.Context, payload []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

// writeSSEJSON marshals v and writes it with writeSSEData.
func writeSSEJSON(c *gin.Context, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	writeSSEData(c, data)
}

// sseHeaders prepares a streaming response.
func sseHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}
