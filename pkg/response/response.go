package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stratum-app/backend/internal/apperr"
)

// CodeUpgradeRequired marks a 403 caused by the organisation's plan rather than its permissions.
const CodeUpgradeRequired = "upgrade_required"

// Body is the standard API response envelope. Code is a stable machine-readable reason on failures.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func fail(c *gin.Context, status int, code, msg string) {
	c.JSON(status, Body{Error: msg, Code: code})
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, msg string) {
	fail(c, http.StatusBadRequest, string(apperr.KindValidation), msg)
}

// Unauthorized sends 401: no valid session.
func Unauthorized(c *gin.Context, msg string) {
	fail(c, http.StatusUnauthorized, "unauthenticated", msg)
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, msg string) { fail(c, http.StatusForbidden, "forbidden", msg) }

// UpgradeRequired sends 403 for a feature the organisation's tier does not include.
func UpgradeRequired(c *gin.Context, feature string) {
	fail(c, http.StatusForbidden, CodeUpgradeRequired, "upgrade required: "+feature+" is not included in your plan")
}

// NotFound sends 404.
func NotFound(c *gin.Context, msg string) {
	fail(c, http.StatusNotFound, string(apperr.KindNotFound), msg)
}

// Conflict sends 409.
func Conflict(c *gin.Context, msg string) {
	fail(c, http.StatusConflict, string(apperr.KindConflict), msg)
}

// BadGateway sends 502 when Stripe, S3 or SMTP failed.
func BadGateway(c *gin.Context, msg string) {
	fail(c, http.StatusBadGateway, string(apperr.KindCollaborator), msg)
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, msg string) {
	fail(c, http.StatusServiceUnavailable, "unavailable", msg)
}

// Internal sends 500.
func Internal(c *gin.Context, msg string) { fail(c, http.StatusInternalServerError, "internal", msg) }

// Error maps a classified error to its status code. Unclassified errors become a 500 with fallback as message.
// An organisation mismatch is reported as 403, not 401: the session itself is valid.
func Error(c *gin.Context, err error, fallback string) {
	msg := apperr.Message(err, fallback)
	switch kind := apperr.KindOf(err); kind {
	case apperr.KindNotFound:
		NotFound(c, msg)
	case apperr.KindValidation:
		BadRequest(c, msg)
	case apperr.KindUnauthorized:
		fail(c, http.StatusForbidden, string(kind), msg)
	case apperr.KindConflict:
		Conflict(c, msg)
	case apperr.KindCollaborator:
		BadGateway(c, msg)
	default:
		Internal(c, fallback)
	}
}
