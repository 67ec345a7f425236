package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/memvault/memvault/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/memvault/memvault/internal/mcp"

// Dispatcher routes inbound requests to the tool or resource registry
// and normalizes every outcome into the wire envelope. It owns no state
// beyond references to the two registries, which are constructed once at
// startup and read-only thereafter.
type Dispatcher struct {
	tools     *ToolRegistry
	resources *ResourceRegistry
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
}

// NewDispatcher wires a dispatcher onto the given registries. metrics
// may be nil.
func NewDispatcher(tools *ToolRegistry, resources *ResourceRegistry, logger *slog.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		tools:     tools,
		resources: resources,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer(tracerName),
	}
}

// CallToolRaw parses a raw request body and dispatches it. A body that
// is not a structured argument map yields an invalid_request envelope;
// an empty body dispatches with no arguments.
func (d *Dispatcher) CallToolRaw(ctx context.Context, name string, body []byte) Envelope {
	args := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			e := Fail(Errf(CodeInvalidRequest, "request body is not a JSON object: %v", err))
			d.metrics.recordToolCall(e)
			return e
		}
	}
	return d.CallTool(ctx, name, args)
}

// CallTool resolves name against the tool registry, invokes the handler,
// and wraps the outcome. This is the single convergence point for all
// handler-side failures: any error a handler returns (including
// repository failures) becomes a tool_execution_error envelope carrying
// the failure's message.
func (d *Dispatcher) CallTool(ctx context.Context, name string, args map[string]any) Envelope {
	ctx, span := d.tracer.Start(ctx, "mcp.tool_call",
		trace.WithAttributes(attribute.String("mcp.tool", name)))
	defer span.End()

	env := d.callTool(ctx, name, args)

	if env.Err != nil {
		span.SetAttributes(attribute.String("mcp.error_code", string(env.Err.Code)))
		d.logger.Debug("tool call failed",
			"tool", name,
			"code", env.Err.Code,
			"message", env.Err.Message,
		)
	}
	d.metrics.recordToolCall(env)
	return env
}

func (d *Dispatcher) callTool(ctx context.Context, name string, args map[string]any) Envelope {
	h, ok := d.tools.Get(name)
	if !ok {
		return Fail(Errf(CodeToolNotFound, "unknown tool: %s", name))
	}

	result, err := h(ctx, args)
	if err != nil {
		return Fail(Errf(CodeExecutionError, "%s", err.Error()))
	}
	return Ok(result)
}

// OpenResource resolves path against the resource registry by longest
// prefix and opens the generator's item sequence. All failures here
// happen before the first frame, so they can still be rendered as an
// envelope by the caller.
func (d *Dispatcher) OpenResource(ctx context.Context, path string) (repository.Iterator, *Error) {
	ctx, span := d.tracer.Start(ctx, "mcp.resource_open",
		trace.WithAttributes(attribute.String("mcp.resource_path", path)))
	defer span.End()

	g, ok := d.resources.Resolve(path)
	if !ok {
		span.SetAttributes(attribute.String("mcp.error_code", string(CodeResourceNotFound)))
		return nil, Errf(CodeResourceNotFound, "no resource matches path: %s", path)
	}

	it, err := g(ctx, path)
	if err != nil {
		var derr *Error
		if errors.As(err, &derr) {
			span.SetAttributes(attribute.String("mcp.error_code", string(derr.Code)))
			return nil, derr
		}
		span.SetAttributes(attribute.String("mcp.error_code", string(CodeExecutionError)))
		return nil, Errf(CodeExecutionError, "%s", err.Error())
	}
	return it, nil
}
