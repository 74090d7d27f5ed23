package v1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lessonloop/assistant/plugin/platform"
	"github.com/lessonloop/assistant/store"
)

type startSessionRequest struct {
	ActorID string `json:"actorId"`
	Role    string `json:"role"`
	OrgID   string `json:"orgId"`
	Locale  string `json:"locale"`
}

func (s *APIV1Service) startSession(c echo.Context) error {
	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	info, err := s.Chat.StartSession(c.Request().Context(), req.ActorID, platform.Role(req.Role), req.OrgID, req.Locale)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, info)
}

type endSessionRequest struct {
	Reason string `json:"reason"`
}

func (s *APIV1Service) endSession(c echo.Context) error {
	var req endSessionRequest
	// The body is optional on DELETE.
	_ = c.Bind(&req)

	if err := s.Chat.EndSession(c.Request().Context(), c.Param("id"), req.Reason); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (s *APIV1Service) sendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	reply, err := s.Chat.ProcessMessage(c.Request().Context(), c.Param("id"), req.Message)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, reply)
}

// sseEvent is one server-sent stream frame.
type sseEvent struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *APIV1Service) streamMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	ctx := c.Request().Context()
	chunks, err := s.Chat.ProcessMessageStream(ctx, c.Param("id"), req.Message)
	if err != nil {
		return httpError(c, err)
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	for chunk := range chunks {
		event := sseEvent{Content: chunk.Content, Done: chunk.Done}
		if chunk.Err != nil {
			event.Error = chunk.Err.Error()
		}
		if err := writeSSE(resp, event); err != nil {
			// Client went away; the service discards the partial turn via
			// the request context.
			return nil
		}
		if chunk.Done {
			break
		}
	}
	return nil
}

func writeSSE(resp *echo.Response, event sseEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
		return err
	}
	resp.Flush()
	return nil
}

func (s *APIV1Service) greeting(c echo.Context) error {
	info, err := s.Chat.Greeting(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *APIV1Service) sessionCapabilities(c echo.Context) error {
	caps, err := s.Chat.CapabilitiesForSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, caps)
}

func (s *APIV1Service) capabilities(c echo.Context) error {
	caps, err := s.Chat.CapabilitiesForRole(platform.Role(c.Param("role")))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, caps)
}

// transcriptResponse joins the archived header with its messages.
type transcriptResponse struct {
	Conversation *store.Conversation          `json:"conversation"`
	Messages     []*store.ConversationMessage `json:"messages"`
}

func (s *APIV1Service) transcript(c echo.Context) error {
	conv, messages, err := s.Chat.Transcript(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, transcriptResponse{Conversation: conv, Messages: messages})
}

type feedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (s *APIV1Service) submitFeedback(c echo.Context) error {
	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	if err := s.Chat.SubmitFeedback(c.Request().Context(), c.Param("uid"), req.Rating, req.Comment); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
