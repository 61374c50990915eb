package response

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
)

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": 0, "code": status, "message": message})
}

// OK sends a 200 response. Arrays/slices are wrapped in {data: [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			c.JSON(http.StatusOK, gin.H{"data": data})
			return
		}
	}
	c.JSON(http.StatusOK, data)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) {
	abort(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context) {
	abort(c, http.StatusUnauthorized, "authentication required")
}

// Forbidden sends a 403 error response.
func Forbidden(c *gin.Context) {
	abort(c, http.StatusForbidden, "forbidden")
}

// NotFound sends a 404 error response.
func NotFound(c *gin.Context) {
	abort(c, http.StatusNotFound, "not found")
}

// NotFoundMsg sends a 404 error with a custom message.
func NotFoundMsg(c *gin.Context, message string) {
	abort(c, http.StatusNotFound, message)
}

// MethodNotAllowed sends a 405 error response.
func MethodNotAllowed(c *gin.Context) {
	abort(c, http.StatusMethodNotAllowed, "method not allowed")
}

// TooManyRequests sends a 429 error response.
func TooManyRequests(c *gin.Context) {
	abort(c, http.StatusTooManyRequests, "too many requests")
}

// InternalError sends a 500 error response.
func InternalError(c *gin.Context, err error) {
	abort(c, http.StatusInternalServerError, err.Error())
}

// ServiceUnavailable sends a 503 error response.
func ServiceUnavailable(c *gin.Context, message string) {
	abort(c, http.StatusServiceUnavailable, message)
}
