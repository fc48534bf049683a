package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseHeaders(t *testing.T) {
	t.Parallel()
	assert.Nil(t, parseHeaders(""))
	assert.Nil(t, parseHeaders("junk,=x,y="))
	assert.Equal(t, map[string]string{"a": "1", "b": "2=3"}, parseHeaders(" a=1 , b=2=3 "))
}

func TestClampRatio(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 1.0, clampRatio(7))
	assert.Equal(t, 0.25, clampRatio(0.25))
}

func TestStartSpanRecordsErrors(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, end := StartSpan(context.Background(), "index.put")
	end(errors.New("boom"))
	_, end = StartSpan(context.Background(), "index.delete")
	end(nil)

	spans := rec.Ended()
	if assert.Len(t, spans, 2) {
		assert.Equal(t, "index.put", spans[0].Name())
		assert.Equal(t, codes.Error, spans[0].Status().Code)
		assert.NotEqual(t, codes.Error, spans[1].Status().Code)
	}
}
