package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *Service, *mockRepo, *echo.Echo) {
	svc, repo, _ := newTestService()
	return NewHandler(svc), svc, repo, echo.New()
}

func paramContext(e *echo.Echo, method, body, patientID string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if patientID != "" {
		c.SetParamNames("patient_id")
		c.SetParamValues(patientID)
	}
	return c, rec
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	return he.Code
}

func TestHandler_Create(t *testing.T) {
	h, _, _, e := newTestHandler()

	c, rec := paramContext(e, http.MethodPost, `{"patient_id":"PAT-1","age":5,"gender":"F"}`, "")
	if err := h.Create(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	c, _ = paramContext(e, http.MethodPost, `{"patient_id":"PAT-1"}`, "")
	if code := statusOf(t, h.Create(c)); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}

	c, _ = paramContext(e, http.MethodPost, `{"age":5}`, "")
	if code := statusOf(t, h.Create(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetUpdateDelete(t *testing.T) {
	h, svc, repo, e := newTestHandler()
	svc.Create(context.Background(), &Patient{PatientID: "PAT-1"})

	c, rec := paramContext(e, http.MethodGet, "", "PAT-1")
	if err := h.Get(c); err != nil {
		t.Fatal(err)
	}
	var d map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &d)
	if d["patient_id"] != "PAT-1" {
		t.Errorf("patient fields should be inlined, got %v", d)
	}
	if _, ok := d["consultations"].([]interface{}); !ok {
		t.Errorf("expected consultations array, got %v", d["consultations"])
	}

	c, _ = paramContext(e, http.MethodPut, `{"age":9,"gender":"M"}`, "PAT-1")
	if err := h.Update(c); err != nil {
		t.Fatal(err)
	}
	if *repo.patients["PAT-1"].Age != 9 {
		t.Error("age not updated")
	}

	c, rec = paramContext(e, http.MethodDelete, "", "PAT-1")
	if err := h.Delete(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	c, _ = paramContext(e, http.MethodGet, "", "PAT-1")
	if code := statusOf(t, h.Get(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_List(t *testing.T) {
	h, svc, repo, e := newTestHandler()
	for _, id := range []string{"PAT-1", "PAT-2"} {
		svc.Create(context.Background(), &Patient{PatientID: id})
	}
	repo.severe["PAT-1"] = true

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients?severity=severe", nil)
	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	var out []Patient
	json.Unmarshal(rec.Body.Bytes(), &out)
	if len(out) != 1 || out[0].PatientID != "PAT-1" {
		t.Errorf("unexpected severe list %+v", out)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/patients?limit=abc", nil)
	if code := statusOf(t, h.List(e.NewContext(req, httptest.NewRecorder()))); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}
