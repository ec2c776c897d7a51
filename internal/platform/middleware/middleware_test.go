package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	var rid string
	h := RequestID()(func(c echo.Context) error {
		rid, _ = c.Get(RequestIDKey).(string)
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rid == "" {
		t.Error("expected request_id to be generated")
	}
	if rec.Header().Get(RequestIDHeader) != rid {
		t.Errorf("response header %q does not match %q", rec.Header().Get(RequestIDHeader), rid)
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "kiosk-abobo-0001")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error { return nil })
	h(c)

	if got := c.Get(RequestIDKey); got != "kiosk-abobo-0001" {
		t.Errorf("expected caller id, got %v", got)
	}
	if rec.Header().Get(RequestIDHeader) != "kiosk-abobo-0001" {
		t.Errorf("expected caller id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
	c := e.NewContext(req, httptest.NewRecorder())

	RequestID()(func(c echo.Context) error { return nil })(c)
	if rid := c.Get(RequestIDKey).(string); len(rid) != 36 {
		t.Errorf("expected a fresh uuid, got %q", rid)
	}
}

func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log output is not one JSON line: %q", buf.String())
	}
	return line
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/consultations/abc", nil), httptest.NewRecorder())
	c.SetPath("/api/v1/consultations/:id")
	c.Set(RequestIDKey, "rid-1")

	h := Logger(logger)(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if err := h(c); err != nil {
		t.Fatal(err)
	}

	line := logLine(t, &buf)
	if line["level"] != "info" || line["status"] != float64(200) {
		t.Errorf("unexpected level/status: %v", line)
	}
	if line["request_id"] != "rid-1" || line["route"] != "/api/v1/consultations/:id" {
		t.Errorf("unexpected fields: %v", line)
	}
}

func TestLogger_LevelsByStatus(t *testing.T) {
	tests := []struct {
		err   error
		level string
	}{
		{echo.NewHTTPError(http.StatusNotFound, "nope"), "warn"},
		{echo.NewHTTPError(http.StatusBadGateway, "upstream"), "error"},
		{errors.New("plain"), "error"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		e := echo.New()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		h := Logger(zerolog.New(&buf))(func(c echo.Context) error { return tt.err })
		h(c)

		if line := logLine(t, &buf); line["level"] != tt.level {
			t.Errorf("%v: expected level %s, got %v", tt.err, tt.level, line["level"])
		}
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	h := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		panic("classifier exploded")
	})
	err := h(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
	if !strings.Contains(buf.String(), "classifier exploded") {
		t.Errorf("panic value not logged: %s", buf.String())
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	h := Recovery(zerolog.Nop())(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
