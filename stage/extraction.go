package stage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hupe1980/convomesh/core"
	"github.com/hupe1980/convomesh/logging"
	"github.com/hupe1980/convomesh/model"
)

const extractionInstructions = `You extract structured lead data from a customer conversation.
Respond with a single JSON object and nothing else. Include ONLY fields the
customer stated explicitly in the conversation; omit everything else. Never
guess or infer a value that was not stated.
Schema:
{"name": string, "email": string, "phone": string, "company": string, "budget": number, "product_interest": string, "timeline": string}`

const recordSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "email": {"type": "string"},
    "phone": {"type": "string"},
    "company": {"type": "string"},
    "budget": {"type": "number", "minimum": 0},
    "product_interest": {"type": "string"},
    "timeline": {"type": "string"}
  },
  "additionalProperties": false
}`

// ExtractionOptions configures the extraction stage.
type ExtractionOptions struct {
	// HistoryWindow bounds prior turns included in the prompt.
	HistoryWindow int

	// Logger observes validation retries.
	Logger logging.Logger
}

// Extraction pulls contact and deal fields out of the conversation. Model
// output is validated against a JSON schema; one corrective retry is made
// on a violation, after which the stage keeps whatever fields decode
// cleanly and marks the record low-confidence.
type Extraction struct {
	model  model.Model
	schema *jsonschema.Schema
	opts   ExtractionOptions
	log    *logging.PipelineLogger
}

// NewExtraction creates the extraction stage.
func NewExtraction(m model.Model, optFns ...func(o *ExtractionOptions)) *Extraction {
	opts := ExtractionOptions{
		HistoryWindow: 20,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Extraction{
		model:  m,
		schema: jsonschema.MustCompileString("record.json", recordSchema),
		opts:   opts,
		log:    logging.NewPipelineLogger(opts.Logger).WithComponent("extraction"),
	}
}

// Name implements core.Stage.
func (e *Extraction) Name() core.StageName {
	return core.StageExtraction
}

// Execute implements core.Stage. Provider transport errors are returned and
// left to the engine's retry policy; schema violations are handled here.
func (e *Extraction) Execute(ctx context.Context, state *core.ConversationState) (*core.StatePatch, error) {
	req := model.Request{
		Instructions: extractionInstructions,
		Messages:     historyMessages(state, e.opts.HistoryWindow),
	}

	usage := core.TokenUsage{}

	resp, err := generate(ctx, e.model, req, e.log)
	if err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}
	usage.Add(tokenUsage(resp))

	record, verr := e.validate(resp.Text)
	if verr != nil {
		e.log.Warn("extraction output invalid, retrying with validation error",
			"conversation_id", state.ConversationID, "error", verr)

		retryReq := req
		retryReq.Messages = append(append([]model.Message{}, req.Messages...),
			model.Message{Role: model.RoleAssistant, Text: resp.Text},
			model.Message{Role: model.RoleUser, Text: fmt.Sprintf(
				"Your previous output failed validation: %v. Respond again with only the corrected JSON object.", verr)},
		)

		resp, err = generate(ctx, e.model, retryReq, e.log)
		if err != nil {
			return nil, fmt.Errorf("extraction retry: %w", err)
		}
		usage.Add(tokenUsage(resp))

		record, verr = e.validate(resp.Text)
		if verr != nil {
			e.log.Warn("extraction still invalid after retry, keeping best-effort fields",
				"conversation_id", state.ConversationID, "error", verr)
			record = bestEffortRecord(resp.Text)
			record.LowConfidence = true
		}
	}

	return &core.StatePatch{
		Record: record,
		Usage:  usagePtr(usage),
	}, nil
}

// validate decodes the completion and checks it against the record schema.
func (e *Extraction) validate(text string) (*core.ExtractedRecord, error) {
	var generic any
	if err := decodeJSON(text, &generic); err != nil {
		return nil, err
	}
	if err := e.schema.Validate(generic); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	var record core.ExtractedRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// bestEffortRecord keeps the fields that individually decode to the right
// type and drops the rest.
func bestEffortRecord(text string) *core.ExtractedRecord {
	record := &core.ExtractedRecord{}

	var fields map[string]json.RawMessage
	if err := decodeJSON(text, &fields); err != nil {
		return record
	}

	str := func(key string) *string {
		var s string
		if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil {
			return &s
		}
		return nil
	}

	record.Name = str("name")
	record.Email = str("email")
	record.Phone = str("phone")
	record.Company = str("company")
	record.ProductInterest = str("product_interest")
	record.Timeline = str("timeline")

	if raw, ok := fields["budget"]; ok {
		var f float64
		if json.Unmarshal(raw, &f) == nil && f >= 0 {
			record.Budget = &f
		}
	}

	return record
}

var _ core.Stage = (*Extraction)(nil)
