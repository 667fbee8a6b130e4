package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/hupe1980/chainkit/internal/util"
	"github.com/hupe1980/chainkit/logging"
)

// Options configures a FunctionTool.
type Options struct {
	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// FunctionTool exposes a plain Go function as a Tool.
//
// Responsibilities:
//   - Holds the JSON schema of the accepted arguments
//   - Validates arguments before execution
//   - Normalizes errors so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	resolved    *jsonschema.Resolved
	fn          func(ctx context.Context, args map[string]any) (any, error)
	logger      logging.Logger
}

var _ Tool = (*FunctionTool)(nil)

// NewFunctionTool constructs a FunctionTool from an explicit schema and
// function. Arguments are checked with util.ValidateParameters, which covers
// required fields and top-level property types.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...func(o *Options),
) *FunctionTool {
	opts := Options{}
	for _, f := range optFns {
		f(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
		logger:      opts.Logger,
	}
}

// NewTypedTool derives the parameter schema from T and decodes arguments
// into T before calling fn. Arguments are validated against the full schema.
//
// Example:
//
//	type ReportArgs struct {
//	  Filename string `json:"filename" jsonschema:"name of the html file"`
//	  HTML     string `json:"html" jsonschema:"html document"`
//	}
//
//	t, err := NewTypedTool("write_report", "Write an HTML report",
//	  func(ctx context.Context, args ReportArgs) (any, error) { ... })
func NewTypedTool[T any](
	name, description string,
	fn func(ctx context.Context, args T) (any, error),
	optFns ...func(o *Options),
) (*FunctionTool, error) {
	schema, resolved, err := util.SchemaFor[T]()
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}

	t := NewFunctionTool(name, description, schema, func(ctx context.Context, args map[string]any) (any, error) {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}

		var typed T
		if err := json.Unmarshal(data, &typed); err != nil {
			return nil, &ToolError{Tool: name, Message: fmt.Sprintf("decode arguments: %v", err), Code: CodeValidation}
		}

		return fn(ctx, typed)
	}, optFns...)
	t.resolved = resolved

	return t, nil
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args then invokes the underlying function.
//
// Error Semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	validation failure              -> *ToolError{Code: "VALIDATION_ERROR"}
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	start := time.Now()

	t.logger.Debug("tool.call.start", "tool", t.name)

	if args == nil {
		args = map[string]any{}
	}

	if err := t.validate(args); err != nil {
		t.logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		var toolErr *ToolError
		if !errors.As(err, &toolErr) {
			toolErr = &ToolError{
				Tool:    t.name,
				Message: err.Error(),
				Code:    CodeExecution,
			}
		}

		t.logCall(time.Since(start), toolErr)

		return nil, toolErr
	}

	t.logCall(time.Since(start), nil)

	return result, nil
}

func (t *FunctionTool) logCall(dur time.Duration, err error) {
	if sl, ok := t.logger.(*logging.StructuredLogger); ok {
		sl.LogToolCall(t.name, dur, err == nil, err)
		return
	}

	if err != nil {
		t.logger.Error("tool.call.error", "tool", t.name, "error", err.Error())
		return
	}

	t.logger.Info("tool.call.success", "tool", t.name, "duration_ms", dur.Milliseconds())
}

func (t *FunctionTool) validate(args map[string]any) error {
	if t.resolved == nil {
		return util.ValidateParameters(args, t.parameters)
	}

	// Validate the JSON form so Go numeric types are treated like decoded JSON.
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return err
	}

	return t.resolved.Validate(instance)
}
