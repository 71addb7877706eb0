package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/engramlabs/engramd/internal/memory"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

// AddMemoryRequest is the request body for POST /api/v1/memories.
// Importance is a pointer so an explicit 0 is distinguishable from an
// omitted field, which defaults to 0.5.
type AddMemoryRequest struct {
	Content    string                 `json:"content"`
	MemoryType string                 `json:"memory_type,omitempty"`
	Role       string                 `json:"role,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	Importance *float64               `json:"importance,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) handleAddMemory(c echo.Context) error {
	var req AddMemoryRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, v1.NewValidationError("body", "malformed JSON"))
	}

	importance := v1.DefaultImportance
	if req.Importance != nil {
		importance = *req.Importance
	}
	fragment, err := s.registry.Memory().Add(c.Request().Context(), &v1.Fragment{
		Content:    req.Content,
		MemoryType: v1.MemoryType(req.MemoryType),
		Role:       v1.Role(req.Role),
		SessionID:  req.SessionID,
		Tags:       req.Tags,
		Importance: importance,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, fragment)
}

// ListMemoriesResponse is the response body for GET /api/v1/memories.
type ListMemoriesResponse struct {
	Fragments []*v1.Fragment `json:"fragments"`
}

func (s *Server) handleListMemories(c echo.Context) error {
	limit := intQuery(c, "limit", 0)
	offset := intQuery(c, "offset", 0)

	fragments, err := s.registry.Memory().List(c.Request().Context(), c.QueryParam("type"), limit, offset)
	if err != nil {
		return errorResponse(c, err)
	}
	if fragments == nil {
		fragments = []*v1.Fragment{}
	}
	return c.JSON(http.StatusOK, ListMemoriesResponse{Fragments: fragments})
}

// SearchRequest is the request body for POST /api/v1/memories/search.
type SearchRequest struct {
	Query         string   `json:"query"`
	Limit         int      `json:"limit,omitempty"`
	MinScore      float32  `json:"min_score,omitempty"`
	MemoryType    string   `json:"memory_type,omitempty"`
	SessionID     string   `json:"session_id,omitempty"`
	Role          string   `json:"role,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	MinImportance float64  `json:"min_importance,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/memories/search.
type SearchResponse struct {
	Hits []v1.SearchHit `json:"hits"`
}

func (s *Server) handleSearchMemories(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, v1.NewValidationError("body", "malformed JSON"))
	}

	hits, err := s.registry.Memory().Search(c.Request().Context(), req.Query, memory.SearchOptions{
		Limit:         req.Limit,
		MinScore:      req.MinScore,
		MemoryType:    v1.MemoryType(req.MemoryType),
		SessionID:     req.SessionID,
		Role:          v1.Role(req.Role),
		Tags:          req.Tags,
		MinImportance: req.MinImportance,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	if hits == nil {
		hits = []v1.SearchHit{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Hits: hits})
}

func (s *Server) handleGetMemory(c echo.Context) error {
	fragment, err := s.registry.Memory().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, fragment)
}

// UpdateMemoryRequest carries partial updates; absent fields are left
// unchanged.
type UpdateMemoryRequest struct {
	Content    *string                `json:"content,omitempty"`
	MemoryType *string                `json:"memory_type,omitempty"`
	Role       *string                `json:"role,omitempty"`
	SessionID  *string                `json:"session_id,omitempty"`
	Tags       *[]string              `json:"tags,omitempty"`
	Importance *float64               `json:"importance,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) handleUpdateMemory(c echo.Context) error {
	var req UpdateMemoryRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, v1.NewValidationError("body", "malformed JSON"))
	}

	update := memory.UpdateRequest{
		ID:         c.Param("id"),
		Content:    req.Content,
		SessionID:  req.SessionID,
		Tags:       req.Tags,
		Importance: req.Importance,
		Metadata:   req.Metadata,
	}
	if req.MemoryType != nil {
		mt := v1.MemoryType(*req.MemoryType)
		update.MemoryType = &mt
	}
	if req.Role != nil {
		role := v1.Role(*req.Role)
		update.Role = &role
	}

	fragment, err := s.registry.Memory().Update(c.Request().Context(), update)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, fragment)
}

func (s *Server) handleDeleteMemory(c echo.Context) error {
	if err := s.registry.Memory().Delete(c.Request().Context(), c.Param("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.registry.Memory().Stats(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// AppendMessageRequest is the request body for appending to a channel.
type AppendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleAppendMessage(c echo.Context) error {
	var req AppendMessageRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, v1.NewValidationError("body", "malformed JSON"))
	}

	msg, err := s.registry.Channel().Append(c.Request().Context(),
		c.Param("channel"), v1.Role(req.Role), req.Content)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// ChannelHistoryResponse is the response body for channel history.
type ChannelHistoryResponse struct {
	Messages []*v1.ChannelMessage `json:"messages"`
}

func (s *Server) handleChannelHistory(c echo.Context) error {
	limit := intQuery(c, "limit", 0)
	beforeSeq := int64(intQuery(c, "before_seq", 0))

	msgs, err := s.registry.Channel().History(c.Request().Context(),
		c.Param("channel"), limit, beforeSeq)
	if err != nil {
		return errorResponse(c, err)
	}
	if msgs == nil {
		msgs = []*v1.ChannelMessage{}
	}
	return c.JSON(http.StatusOK, ChannelHistoryResponse{Messages: msgs})
}

// ChannelContextResponse holds a rendered conversation transcript.
type ChannelContextResponse struct {
	Context string `json:"context"`
}

func (s *Server) handleChannelContext(c echo.Context) error {
	limit := intQuery(c, "limit", 0)

	rendered, err := s.registry.Channel().HistoryForLLM(c.Request().Context(),
		c.Param("channel"), limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, ChannelContextResponse{Context: rendered})
}

func intQuery(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
