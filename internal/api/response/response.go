// Package response maps service errors onto HTTP responses.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/tablechat/internal/domain"
)

// LoginPath is where browsers are sent after the upstream rejects a session
const LoginPath = "/login"

// Status returns the HTTP status for err
func Status(err error) int {
	var (
		verr    *domain.ValidationError
		remote  *domain.RemoteError
		network *domain.NetworkError
	)
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &verr):
		if errors.Is(err, domain.ErrTablePending) {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoWorkspace):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &remote):
		return http.StatusBadGateway
	case errors.As(err, &network):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the user facing text for err
func Message(err error) string {
	var (
		verr   *domain.ValidationError
		remote *domain.RemoteError
	)
	switch {
	case errors.As(err, &verr):
		return verr.Notice
	case errors.Is(err, domain.ErrNoWorkspace):
		return "No database is open"
	case errors.As(err, &remote) && remote.Message != "":
		return remote.Message
	default:
		return err.Error()
	}
}

// Error writes err with notices. Upstream 401s become a login redirect.
func Error(c *gin.Context, err error, notices []domain.Notice) {
	ErrorWith(c, err, notices, nil)
}

// ErrorWith is Error with extra body fields
func ErrorWith(c *gin.Context, err error, notices []domain.Notice, extra gin.H) {
	_ = c.Error(err)
	status := Status(err)
	body := gin.H{}
	for k, v := range extra {
		body[k] = v
	}
	if status == http.StatusUnauthorized {
		body["error"] = "unauthorized"
		body["redirect"] = LoginPath
	} else {
		body["error"] = Message(err)
	}
	body["notices"] = nonNil(notices)
	c.JSON(status, body)
}

// OK writes body with notices
func OK(c *gin.Context, body gin.H, notices []domain.Notice) {
	if body == nil {
		body = gin.H{}
	}
	body["notices"] = nonNil(notices)
	c.JSON(http.StatusOK, body)
}

func nonNil(notices []domain.Notice) []domain.Notice {
	if notices == nil {
		return []domain.Notice{}
	}
	return notices
}
