package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ok writes a successful tool response. HTTP status is always 200 for a
// well-formed tool call — domain failures surface through the ok:false
// envelope, not the status code, so callers only need to branch on the
// envelope's own "ok" field.
func ok(c *gin.Context, payload gin.H) {
	if payload == nil {
		payload = gin.H{}
	}
	payload["ok"] = true
	c.JSON(http.StatusOK, payload)
}

// fail writes a failed tool response with a human-readable message,
// still with HTTP 200 — only transport-level failures (bad JSON, auth,
// routing) use a non-200 status.
func fail(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"ok": false, "error": message})
}

// failErr writes a domain error as a failed tool response whose message is
// the error's own text.
func failErr(c *gin.Context, err error) {
	if err == nil {
		fail(c, "unknown error")
		return
	}
	fail(c, err.Error())
}

// badRequest rejects malformed input before it ever reaches a handler's
// domain logic — a transport-level failure, so it uses a real 4xx status.
func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": message})
}
