// Package v1 exposes the assistant over REST and SSE.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lessonloop/assistant/internal/profile"
	aerrors "github.com/lessonloop/assistant/server/internal/errors"
	"github.com/lessonloop/assistant/server/service/chat"
	"github.com/lessonloop/assistant/store"
)

// APIV1Service owns the v1 route group.
type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Chat    *chat.Service
}

func NewAPIV1Service(profile *profile.Profile, store *store.Store, chatService *chat.Service) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Store:   store,
		Chat:    chatService,
	}
}

// Register mounts the v1 routes on the echo instance.
func (s *APIV1Service) Register(e *echo.Echo) {
	g := e.Group("/api/v1")

	g.POST("/sessions", s.startSession)
	g.DELETE("/sessions/:id", s.endSession)
	g.POST("/sessions/:id/messages", s.sendMessage)
	g.POST("/sessions/:id/messages/stream", s.streamMessage)
	g.GET("/sessions/:id/greeting", s.greeting)
	g.GET("/sessions/:id/capabilities", s.sessionCapabilities)

	g.GET("/roles/:role/capabilities", s.capabilities)
	g.GET("/conversations/:uid", s.transcript)
	g.POST("/messages/:uid/feedback", s.submitFeedback)
}

// errorBody is the uniform error payload.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpError maps an AgentError code onto an HTTP status.
func httpError(c echo.Context, err error) error {
	code := aerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case aerrors.ErrCodeInvalidArgument:
		status = http.StatusBadRequest
	case aerrors.ErrCodeSessionNotFound:
		status = http.StatusNotFound
	case aerrors.ErrCodePermissionDenied:
		status = http.StatusForbidden
	case aerrors.ErrCodeConversationEnded:
		status = http.StatusConflict
	case aerrors.ErrCodeRateLimitExceeded:
		status = http.StatusTooManyRequests
	case aerrors.ErrCodeProviderFailed:
		status = http.StatusBadGateway
	case aerrors.ErrCodeProviderUnavailable, aerrors.ErrCodeStoreUnavailable:
		status = http.StatusServiceUnavailable
	case aerrors.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	}
	if code == "" {
		code = "INTERNAL"
	}
	return c.JSON(status, errorBody{Code: string(code), Message: err.Error()})
}
