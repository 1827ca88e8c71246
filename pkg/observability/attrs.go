// Template-operation instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Semantic convention attributes for template operations.
var (
	AttrBlueprintID  = attribute.Key("ctc.blueprint.id")
	AttrTemplateName = attribute.Key("ctc.template.name")
	AttrTemplateID   = attribute.Key("ctc.template.id")
	AttrTemplateType = attribute.Key("ctc.template.type")
	AttrAction       = attribute.Key("ctc.action")
	AttrDiagnostics  = attribute.Key("ctc.parse.diagnostics")
	AttrPolicyCount  = attribute.Key("ctc.policy.count")
)

// ReconcileOperation creates attributes for a reconcile call.
func ReconcileOperation(blueprintID, templateName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBlueprintID.String(blueprintID),
		AttrTemplateName.String(templateName),
	}
}

// ReconcileOutcome creates attributes for a finished reconcile call.
func ReconcileOutcome(blueprintID, templateName, action, ctID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBlueprintID.String(blueprintID),
		AttrTemplateName.String(templateName),
		AttrAction.String(action),
		AttrTemplateID.String(ctID),
	}
}

// ParseOperation creates attributes for a policy graph parse.
func ParseOperation(blueprintID, ctID string, policies, diagnostics int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBlueprintID.String(blueprintID),
		AttrTemplateID.String(ctID),
		AttrPolicyCount.Int(policies),
		AttrDiagnostics.Int(diagnostics),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span when non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
