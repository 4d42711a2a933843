package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// Sets the global tracer provider, so it must not run in parallel
func TestSessionSpansJoinRequestTrace(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newProgressFixture(t)
	outer := mux.NewRouter()
	outer.Use(otelmux.Middleware("questlog-server"))
	outer.PathPrefix("/").Handler(f.router)

	const incomingTrace = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/"+f.userID.String()+"/tasks/1/complete", nil)
	req.Header.Set("traceparent", "00-"+incomingTrace+"-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	outer.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, tp.ForceFlush(context.Background()))

	var requestSpan, sessionSpan *tracetest.SpanStub
	spans := exporter.GetSpans()
	for i := range spans {
		s := &spans[i]
		if s.SpanContext.TraceID().String() != incomingTrace {
			continue
		}
		switch {
		case s.Name == "session.complete":
			sessionSpan = s
		case s.SpanKind == trace.SpanKindServer:
			requestSpan = s
		}
	}
	require.NotNil(t, requestSpan, "request span continues the incoming trace")
	require.NotNil(t, sessionSpan, "session transition is traced")
	assert.Equal(t, requestSpan.SpanContext.SpanID(), sessionSpan.Parent.SpanID())

	var taskAttr string
	for _, kv := range sessionSpan.Attributes {
		if kv.Key == "task_id" {
			taskAttr = kv.Value.AsString()
		}
	}
	assert.Equal(t, "1", taskAttr)
}
