package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/campushub/api/internal/platform/requestctx"
)

func TestParseCloudTraceHeader(t *testing.T) {
	sc, ok := ParseCloudTraceHeader("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if got := sc.TraceID().String(); got != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", got)
	}
	if got := sc.SpanID().String(); got != "0000000000000001" {
		t.Fatalf("unexpected span id %s", got)
	}
	if !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("expected sampled remote span context")
	}

	for _, bad := range []string{"", "abc", "105445aa7843bc8bf206b12000100000/0", "105445aa7843bc8bf206b12000100000/xyz;o=1", "zz/1"} {
		if _, ok := ParseCloudTraceHeader(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestFormatCloudTraceHeaderRoundTrip(t *testing.T) {
	info := requestctx.TraceInfo{TraceID: "105445aa7843bc8bf206b12000100000", SpanID: "00000000000004d2", Sampled: true}
	header := formatCloudTraceHeader(info)
	if header != "105445aa7843bc8bf206b12000100000/1234;o=1" {
		t.Fatalf("unexpected header %s", header)
	}
	sc, ok := ParseCloudTraceHeader(header)
	if !ok || sc.SpanID().String() != info.SpanID {
		t.Fatalf("expected round trip, got %v %v", sc.SpanID(), ok)
	}
}

func TestRequestLoggerMiddlewareLogsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	handler := InjectLoggerMiddleware(logger)(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/o1/transition", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for 4xx, got %s", entry.Level)
	}
	if status := entry.ContextMap()["status"]; status != int64(http.StatusConflict) {
		t.Fatalf("expected status 409, got %v", status)
	}
}

func TestRecoveryMiddlewareWritesInternalError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal_server_error") {
		t.Fatalf("expected error code in body, got %s", rec.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestCleanStripsControlCharacters(t *testing.T) {
	if got := clean(" a\nb\tc ", 10); got != "abc" {
		t.Fatalf("unexpected cleaned value %q", got)
	}
	if got := clean("abcdef", 3); got != "abc" {
		t.Fatalf("expected truncation, got %q", got)
	}
}
