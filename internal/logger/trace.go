package logger

import "context"

type traceKey struct{}

// TraceContext captures run-scoped identifiers for log correlation.
type TraceContext struct {
	RunID string
	URL   string
}

// ContextWithTrace returns a derived context carrying the provided trace metadata.
func ContextWithTrace(ctx context.Context, trace TraceContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, trace)
}

// TraceFromContext extracts a TraceContext from ctx.
func TraceFromContext(ctx context.Context) TraceContext {
	if ctx == nil {
		return TraceContext{}
	}
	if trace, ok := ctx.Value(traceKey{}).(TraceContext); ok {
		return trace
	}
	return TraceContext{}
}

// WithURL returns a copy of the trace scoped to a single descriptor URL.
func (t TraceContext) WithURL(url string) TraceContext {
	t.URL = url
	return t
}

func traceFieldsFromContext(ctx context.Context) []Field {
	trace := TraceFromContext(ctx)
	return trace.fields()
}

func (t TraceContext) fields() []Field {
	var fields []Field
	if t.RunID != "" {
		fields = append(fields, String("run_id", t.RunID))
	}
	if t.URL != "" {
		fields = append(fields, String("url", t.URL))
	}
	return fields
}
