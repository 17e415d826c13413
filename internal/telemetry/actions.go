package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/udl-dev/udl/internal/actions"
	"github.com/udl-dev/udl/internal/types"
)

const actionsScopeName = "github.com/udl-dev/udl/actions"

// InstrumentedActions wraps the node lifecycle operations with OTel
// tracing and metrics. Every mutation gets a span and is counted in
// udl.node.* metrics; the node gauge snapshots the store size after
// each mutation. Use WrapActions to create one; when telemetry is
// disabled the instruments are never allocated and calls pass straight
// through.
type InstrumentedActions struct {
	ctx     actions.Context
	enabled bool

	tracer    trace.Tracer
	ops       metric.Int64Counter
	dur       metric.Float64Histogram
	errs      metric.Int64Counter
	nodeGauge metric.Int64Gauge
}

// WrapActions returns the action context decorated with OTel
// instrumentation. When telemetry is disabled the wrapper is a thin
// passthrough with zero overhead.
func WrapActions(actionsCtx actions.Context) *InstrumentedActions {
	ia := &InstrumentedActions{ctx: actionsCtx, enabled: Enabled()}
	if !ia.enabled {
		return ia
	}

	m := Meter(actionsScopeName)
	ia.ops, _ = m.Int64Counter("udl.node.operations",
		metric.WithDescription("Total node actions executed"),
	)
	ia.dur, _ = m.Float64Histogram("udl.node.operation.duration",
		metric.WithDescription("Node action duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	ia.errs, _ = m.Int64Counter("udl.node.errors",
		metric.WithDescription("Total node action errors"),
	)
	ia.nodeGauge, _ = m.Int64Gauge("udl.node.count",
		metric.WithDescription("Current number of nodes in the store"),
	)
	ia.tracer = Tracer(actionsScopeName)
	return ia
}

// Context exposes the wrapped action context for collaborators that
// need the raw collaborators (webhook processors, the loader).
func (ia *InstrumentedActions) Context() actions.Context {
	return ia.ctx
}

// op starts a span and counts the named node action.
func (ia *InstrumentedActions) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("udl.operation", name)}, attrs...)
	ctx, span := ia.tracer.Start(ctx, "actions."+name,
		trace.WithAttributes(all...),
	)
	ia.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration, errors, and the node gauge.
func (ia *InstrumentedActions) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	ia.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ia.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	ia.nodeGauge.Record(ctx, int64(ia.ctx.Store.Size()))
	span.End()
}

// CreateNode runs the create action under a span.
func (ia *InstrumentedActions) CreateNode(ctx context.Context, input *types.Node) (*types.Node, error) {
	if !ia.enabled {
		return actions.CreateNode(ia.ctx, input)
	}
	attrs := []attribute.KeyValue{
		attribute.String("udl.node.type", input.Internal.Type),
		attribute.String("udl.node.id", input.Internal.ID),
	}
	ctx, span, t := ia.op(ctx, "CreateNode", attrs...)
	n, err := actions.CreateNode(ia.ctx, input)
	ia.done(ctx, span, t, err, attrs...)
	return n, err
}

// DeleteNode runs the delete action under a span.
func (ia *InstrumentedActions) DeleteNode(ctx context.Context, ref any, cascade bool) (bool, error) {
	if !ia.enabled {
		return actions.DeleteNode(ia.ctx, ref, cascade)
	}
	attrs := []attribute.KeyValue{attribute.Bool("udl.cascade", cascade)}
	ctx, span, t := ia.op(ctx, "DeleteNode", attrs...)
	ok, err := actions.DeleteNode(ia.ctx, ref, cascade)
	ia.done(ctx, span, t, err, attrs...)
	return ok, err
}

// ExtendNode runs the extend action under a span.
func (ia *InstrumentedActions) ExtendNode(ctx context.Context, id string, patch map[string]any) (*types.Node, error) {
	if !ia.enabled {
		return actions.ExtendNode(ia.ctx, id, patch)
	}
	attrs := []attribute.KeyValue{
		attribute.String("udl.node.id", id),
		attribute.Int("udl.patch.count", len(patch)),
	}
	ctx, span, t := ia.op(ctx, "ExtendNode", attrs...)
	n, err := actions.ExtendNode(ia.ctx, id, patch)
	ia.done(ctx, span, t, err, attrs...)
	return n, err
}
