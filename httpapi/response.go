package httpapi

import "github.com/gin-gonic/gin"

// ok writes {success: true, ...data} with the given status.
func ok(c *gin.Context, status int, data gin.H) {
	body := gin.H{"success": true}
	for k, v := range data {
		body[k] = v
	}
	c.JSON(status, body)
}

// fail writes the ErrorResponse envelope for the current request.
func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		RequestID: requestID(c),
		Code:      code,
		Message:   message,
	})
}

func requestID(c *gin.Context) string {
	if v, ok := c.Get(contextKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
