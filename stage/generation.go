package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/logging"
	"github.com/hupe1980/convomesh/model"
	"github.com/hupe1980/convomesh/retrieval"
)

const generationInstructions = `You are a customer support assistant. Answer the customer's latest
message helpfully and concisely, grounded in the conversation and any
knowledge base documents provided. When you need facts you do not have,
call the search_knowledge tool before answering.`

const forcedFinalInstructions = `
Do not request any further knowledge lookups. Compose your final answer now
from the conversation and the documents already provided.`

const degradedInstructions = `
The knowledge base is currently unavailable. Compose your best answer from
the conversation context alone and mention that the details could not be
verified against the knowledge base.`

const searchToolName = "search_knowledge"

// GenerationOptions configures the generation stage.
type GenerationOptions struct {
	// MaxIterations caps knowledge lookups within a single turn. Once
	// reached, the next model call is forced to produce the final answer.
	MaxIterations int

	// TopK and SimilarityThreshold shape retrieval queries.
	TopK                int
	SimilarityThreshold float64

	// HistoryWindow bounds prior turns included in the prompt.
	HistoryWindow int

	// Logger observes lookups and degradations.
	Logger logging.Logger
}

// Generation produces the reply text via an iterative retrieve-then-answer
// loop. The loop resumes from the state's persisted iteration count, so a
// restart mid-turn never grants extra lookups.
type Generation struct {
	model     model.Model
	retrieval core.RetrievalService
	opts      GenerationOptions
	log       *logging.PipelineLogger
}

// NewGeneration creates the generation stage.
func NewGeneration(m model.Model, service core.RetrievalService, optFns ...func(o *GenerationOptions)) *Generation {
	opts := GenerationOptions{
		MaxIterations:       3,
		TopK:                5,
		SimilarityThreshold: 0.2,
		HistoryWindow:       20,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Generation{
		model:     m,
		retrieval: service,
		opts:      opts,
		log:       logging.NewPipelineLogger(opts.Logger).WithComponent("generation"),
	}
}

// Name implements core.Stage.
func (g *Generation) Name() core.StageName {
	return core.StageGeneration
}

type searchArgs struct {
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
}

// Execute implements core.Stage.
func (g *Generation) Execute(ctx context.Context, state *core.ConversationState) (*core.StatePatch, error) {
	iterations := state.RetrievalIterations
	degraded := false
	usage := core.TokenUsage{}
	var collected []core.RetrievalResult

	msgs := historyMessages(state, g.opts.HistoryWindow)

	for {
		forced := degraded || iterations >= g.opts.MaxIterations

		req := model.Request{
			Instructions: generationInstructions,
			Messages:     msgs,
		}
		switch {
		case degraded:
			req.Instructions += degradedInstructions
		case forced:
			req.Instructions += forcedFinalInstructions
		default:
			req.Tools = []model.ToolDefinition{searchTool()}
		}

		resp, err := generate(ctx, g.model, req, g.log)
		if err != nil {
			return nil, fmt.Errorf("generation: %w", err)
		}
		usage.Add(tokenUsage(resp))

		if !forced && resp.ToolCall != nil && resp.ToolCall.Name == searchToolName {
			var args searchArgs
			if len(resp.ToolCall.Arguments) > 0 {
				if err := json.Unmarshal(resp.ToolCall.Arguments, &args); err != nil {
					g.log.Warn("unparseable search arguments, falling back to turn content", "error", err)
				}
			}
			if strings.TrimSpace(args.Query) == "" {
				args.Query = state.Content
			}

			msgs = append(msgs, model.Message{Role: model.RoleAssistant, ToolCall: resp.ToolCall})

			start := time.Now()
			results, rerr := g.retrieval.Search(ctx, core.RetrievalQuery{
				Query:               args.Query,
				CategoryFilter:      args.Category,
				TopK:                g.opts.TopK,
				SimilarityThreshold: g.opts.SimilarityThreshold,
			})
			g.log.LogRetrieval(args.Query, len(results), time.Since(start), rerr)

			if rerr != nil {
				// The turn still gets an answer: one more model call with
				// retrieval switched off, flagged as degraded.
				degraded = true
				msgs = append(msgs, toolResponseMessage(resp.ToolCall,
					"knowledge base unavailable"))
				continue
			}

			iterations++
			// Rank locally; service implementations may return hits
			// unordered.
			retrieval.Rank(results)
			collected = append(collected, results...)
			msgs = append(msgs, toolResponseMessage(resp.ToolCall, formatResults(results)))

			continue
		}

		return &core.StatePatch{
			RetrievalIterations: intPtr(iterations),
			RetrievalResults:    collected,
			ResponseText:        strPtr(resp.Text),
			ResponseDegraded:    boolPtr(degraded),
			Usage:               usagePtr(usage),
		}, nil
	}
}

func searchTool() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        searchToolName,
		Description: "Search the product knowledge base for documents relevant to the customer's question.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Natural language search query.",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Optional document category filter.",
				},
			},
			"required": []string{"query"},
		},
	}
}

func toolResponseMessage(tc *model.ToolCall, content string) model.Message {
	return model.Message{
		Role: model.RoleTool,
		ToolResponse: &model.ToolResponse{
			ID:      tc.ID,
			Name:    tc.Name,
			Content: content,
		},
	}
}

func formatResults(results []core.RetrievalResult) string {
	if len(results) == 0 {
		return "No relevant documents found."
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] (%s, similarity %.2f)\n%s\n", i+1, r.DocID, r.Similarity, r.Content)
	}
	return b.String()
}

var _ core.Stage = (*Generation)(nil)
