package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/engramlabs/engramd/internal/memory"
	v1 "github.com/engramlabs/engramd/pkg/api/v1"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.registerMemoryTools()
	s.registerChannelTools()
	s.registerStatsTools()
}

// ===== MEMORY TOOLS =====

type memoryAddInput struct {
	Content    string                 `json:"content" jsonschema:"required,Text to remember"`
	MemoryType string                 `json:"memory_type,omitempty" jsonschema:"One of factual preference episodic session (default: factual)"`
	Role       string                 `json:"role,omitempty" jsonschema:"Author role for session fragments"`
	SessionID  string                 `json:"session_id,omitempty" jsonschema:"Session the fragment belongs to"`
	Tags       []string               `json:"tags,omitempty" jsonschema:"Free-form tags, at most 20"`
	Importance *float64               `json:"importance,omitempty" jsonschema:"Weight between 0 and 1 (default: 0.5)"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" jsonschema:"Additional metadata"`
}

type memoryAddOutput struct {
	ID         string `json:"id" jsonschema:"Fragment ID"`
	MemoryType string `json:"memory_type" jsonschema:"Stored memory type"`
	CreatedAt  string `json:"created_at" jsonschema:"Creation timestamp"`
}

type memorySearchInput struct {
	Query         string   `json:"query" jsonschema:"required,Natural language query"`
	Limit         int      `json:"limit,omitempty" jsonschema:"Maximum results (default: 10)"`
	MinScore      float32  `json:"min_score,omitempty" jsonschema:"Drop hits scoring below this similarity"`
	MemoryType    string   `json:"memory_type,omitempty" jsonschema:"Restrict to one memory type"`
	SessionID     string   `json:"session_id,omitempty" jsonschema:"Restrict to one session"`
	Tags          []string `json:"tags,omitempty" jsonschema:"Keep only fragments carrying every listed tag"`
	MinImportance float64  `json:"min_importance,omitempty" jsonschema:"Drop fragments below this importance"`
}

type memorySearchHit struct {
	ID         string  `json:"id" jsonschema:"Fragment ID"`
	Content    string  `json:"content" jsonschema:"Fragment text"`
	Score      float32 `json:"score" jsonschema:"Similarity score"`
	MemoryType string  `json:"memory_type" jsonschema:"Memory type"`
	CreatedAt  string  `json:"created_at" jsonschema:"Creation timestamp"`
}

type memorySearchOutput struct {
	Hits  []memorySearchHit `json:"hits" jsonschema:"Ranked search hits"`
	Count int               `json:"count" jsonschema:"Number of hits returned"`
}

type memoryUpdateInput struct {
	ID         string                 `json:"id" jsonschema:"required,Fragment ID to update"`
	Content    *string                `json:"content,omitempty" jsonschema:"Replacement text"`
	MemoryType *string                `json:"memory_type,omitempty" jsonschema:"Replacement memory type"`
	SessionID  *string                `json:"session_id,omitempty" jsonschema:"Replacement session"`
	Tags       *[]string              `json:"tags,omitempty" jsonschema:"Replacement tags"`
	Importance *float64               `json:"importance,omitempty" jsonschema:"Replacement importance"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" jsonschema:"Replacement metadata"`
}

type memoryUpdateOutput struct {
	ID        string `json:"id" jsonschema:"Fragment ID"`
	UpdatedAt string `json:"updated_at" jsonschema:"Update timestamp"`
}

type memoryDeleteInput struct {
	ID string `json:"id" jsonschema:"required,Fragment ID to delete"`
}

type memoryDeleteOutput struct {
	Deleted bool `json:"deleted" jsonschema:"True when the fragment was removed"`
}

type memoryListInput struct {
	MemoryType string `json:"memory_type,omitempty" jsonschema:"Restrict to one memory type"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum results (default: 10)"`
	Offset     int    `json:"offset,omitempty" jsonschema:"Results to skip for paging"`
}

type memoryListOutput struct {
	Fragments []memorySearchHit `json:"fragments" jsonschema:"Fragments newest first"`
	Count     int               `json:"count" jsonschema:"Number of fragments returned"`
}

func (s *Server) registerMemoryTools() {
	// memory_add
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_add",
		Description: "Store a memory fragment for later semantic recall",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args memoryAddInput) (*mcp.CallToolResult, memoryAddOutput, error) {
		importance := v1.DefaultImportance
		if args.Importance != nil {
			importance = *args.Importance
		}
		fragment, err := s.registry.Memory().Add(s.scopedContext(ctx), &v1.Fragment{
			Content:    args.Content,
			MemoryType: v1.MemoryType(args.MemoryType),
			Role:       v1.Role(args.Role),
			SessionID:  args.SessionID,
			Tags:       args.Tags,
			Importance: importance,
			Metadata:   args.Metadata,
		})
		if err != nil {
			return nil, memoryAddOutput{}, fmt.Errorf("memory add failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Memory stored: %s", fragment.ID)},
			},
		}, memoryAddOutput{
			ID:         fragment.ID,
			MemoryType: string(fragment.MemoryType),
			CreatedAt:  fragment.CreatedAt.Format(time.RFC3339),
		}, nil
	})

	// memory_search
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_search",
		Description: "Search stored memories by semantic similarity",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args memorySearchInput) (*mcp.CallToolResult, memorySearchOutput, error) {
		hits, err := s.registry.Memory().Search(s.scopedContext(ctx), args.Query, memory.SearchOptions{
			Limit:         args.Limit,
			MinScore:      args.MinScore,
			MemoryType:    v1.MemoryType(args.MemoryType),
			SessionID:     args.SessionID,
			Tags:          args.Tags,
			MinImportance: args.MinImportance,
		})
		if err != nil {
			return nil, memorySearchOutput{}, fmt.Errorf("memory search failed: %w", err)
		}

		out := memorySearchOutput{Hits: make([]memorySearchHit, 0, len(hits)), Count: len(hits)}
		for _, h := range hits {
			out.Hits = append(out.Hits, memorySearchHit{
				ID:         h.Fragment.ID,
				Content:    h.Fragment.Content,
				Score:      h.Score,
				MemoryType: string(h.Fragment.MemoryType),
				CreatedAt:  h.Fragment.CreatedAt.Format(time.RFC3339),
			})
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Found %d memories", out.Count)},
			},
		}, out, nil
	})

	// memory_update
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_update",
		Description: "Modify an existing memory fragment; omitted fields are kept",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args memoryUpdateInput) (*mcp.CallToolResult, memoryUpdateOutput, error) {
		update := memory.UpdateRequest{
			ID:         args.ID,
			Content:    args.Content,
			SessionID:  args.SessionID,
			Tags:       args.Tags,
			Importance: args.Importance,
			Metadata:   args.Metadata,
		}
		if args.MemoryType != nil {
			mt := v1.MemoryType(*args.MemoryType)
			update.MemoryType = &mt
		}

		fragment, err := s.registry.Memory().Update(s.scopedContext(ctx), update)
		if err != nil {
			return nil, memoryUpdateOutput{}, fmt.Errorf("memory update failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Memory updated: %s", fragment.ID)},
			},
		}, memoryUpdateOutput{
			ID:        fragment.ID,
			UpdatedAt: fragment.UpdatedAt.Format(time.RFC3339),
		}, nil
	})

	// memory_delete
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_delete",
		Description: "Permanently delete a memory fragment",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args memoryDeleteInput) (*mcp.CallToolResult, memoryDeleteOutput, error) {
		if err := s.registry.Memory().Delete(s.scopedContext(ctx), args.ID); err != nil {
			return nil, memoryDeleteOutput{}, fmt.Errorf("memory delete failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Memory deleted: %s", args.ID)},
			},
		}, memoryDeleteOutput{Deleted: true}, nil
	})

	// memory_list
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "memory_list",
		Description: "List stored memories newest first without a query",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args memoryListInput) (*mcp.CallToolResult, memoryListOutput, error) {
		fragments, err := s.registry.Memory().List(s.scopedContext(ctx), args.MemoryType, args.Limit, args.Offset)
		if err != nil {
			return nil, memoryListOutput{}, fmt.Errorf("memory list failed: %w", err)
		}

		out := memoryListOutput{Fragments: make([]memorySearchHit, 0, len(fragments)), Count: len(fragments)}
		for _, f := range fragments {
			out.Fragments = append(out.Fragments, memorySearchHit{
				ID:         f.ID,
				Content:    f.Content,
				MemoryType: string(f.MemoryType),
				CreatedAt:  f.CreatedAt.Format(time.RFC3339),
			})
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Listed %d memories", out.Count)},
			},
		}, out, nil
	})
}

// ===== CHANNEL TOOLS =====

type messageAddInput struct {
	ChannelID string `json:"channel_id" jsonschema:"required,Channel to append to"`
	Role      string `json:"role" jsonschema:"required,Author role (user assistant system tool)"`
	Content   string `json:"content" jsonschema:"required,Message text"`
}

type messageAddOutput struct {
	ID  string `json:"id" jsonschema:"Message ID"`
	Seq int64  `json:"seq" jsonschema:"Assigned sequence number"`
}

type historyGetInput struct {
	ChannelID string `json:"channel_id" jsonschema:"required,Channel to read"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum messages (default: 50)"`
	BeforeSeq int64  `json:"before_seq,omitempty" jsonschema:"Page backwards from this sequence number exclusive"`
	AsContext bool   `json:"as_context,omitempty" jsonschema:"Return a rendered transcript oldest first instead of structured messages"`
}

type historyMessage struct {
	ID      string `json:"id" jsonschema:"Message ID"`
	Role    string `json:"role" jsonschema:"Author role"`
	Content string `json:"content" jsonschema:"Message text"`
	Seq     int64  `json:"seq" jsonschema:"Sequence number"`
}

type historyGetOutput struct {
	Messages []historyMessage `json:"messages,omitempty" jsonschema:"Messages newest first"`
	Context  string           `json:"context,omitempty" jsonschema:"Rendered transcript when as_context is set"`
	Count    int              `json:"count" jsonschema:"Number of messages returned"`
}

func (s *Server) registerChannelTools() {
	// message_add
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "message_add",
		Description: "Append a message to an ordered channel history",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args messageAddInput) (*mcp.CallToolResult, messageAddOutput, error) {
		msg, err := s.registry.Channel().Append(s.scopedContext(ctx),
			args.ChannelID, v1.Role(args.Role), args.Content)
		if err != nil {
			return nil, messageAddOutput{}, fmt.Errorf("message add failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Message %d appended to %s", msg.Seq, args.ChannelID)},
			},
		}, messageAddOutput{ID: msg.ID, Seq: msg.Seq}, nil
	})

	// history_get
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "history_get",
		Description: "Read a channel's message history",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args historyGetInput) (*mcp.CallToolResult, historyGetOutput, error) {
		sctx := s.scopedContext(ctx)

		if args.AsContext {
			rendered, err := s.registry.Channel().HistoryForLLM(sctx, args.ChannelID, args.Limit)
			if err != nil {
				return nil, historyGetOutput{}, fmt.Errorf("history get failed: %w", err)
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: rendered}},
			}, historyGetOutput{Context: rendered}, nil
		}

		msgs, err := s.registry.Channel().History(sctx, args.ChannelID, args.Limit, args.BeforeSeq)
		if err != nil {
			return nil, historyGetOutput{}, fmt.Errorf("history get failed: %w", err)
		}

		out := historyGetOutput{Messages: make([]historyMessage, 0, len(msgs)), Count: len(msgs)}
		for _, m := range msgs {
			out.Messages = append(out.Messages, historyMessage{
				ID: m.ID, Role: string(m.Role), Content: m.Content, Seq: m.Seq,
			})
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Returned %d messages", out.Count)},
			},
		}, out, nil
	})
}

// ===== STATS TOOLS =====

type statsGetInput struct{}

type statsGetOutput struct {
	TotalFragments int64            `json:"total_fragments" jsonschema:"Total stored fragments"`
	ByType         map[string]int64 `json:"by_type" jsonschema:"Fragment counts per memory type"`
	TotalMessages  int64            `json:"total_messages" jsonschema:"Total channel messages"`
}

func (s *Server) registerStatsTools() {
	// stats_get
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "stats_get",
		Description: "Summarize what is stored for this scope",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args statsGetInput) (*mcp.CallToolResult, statsGetOutput, error) {
		stats, err := s.registry.Memory().Stats(s.scopedContext(ctx))
		if err != nil {
			return nil, statsGetOutput{}, fmt.Errorf("stats failed: %w", err)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("%d fragments, %d messages", stats.TotalFragments, stats.TotalMessages)},
			},
		}, statsGetOutput{
			TotalFragments: stats.TotalFragments,
			ByType:         stats.ByType,
			TotalMessages:  stats.TotalMessages,
		}, nil
	})
}
