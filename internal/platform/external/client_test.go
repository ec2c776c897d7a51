package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Simulation())
	}))
	defer srv.Close()

	patients, err := NewClient(srv.URL, nil).Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patients) != 4 {
		t.Fatalf("expected 4 patients, got %d", len(patients))
	}
	if patients[3].ID != "PAT004" || *patients[3].Age != 4 {
		t.Errorf("unexpected patient %+v", patients[3])
	}
	if patients[3].Symptoms[2] != "convulsions" {
		t.Errorf("expected convulsions, got %v", patients[3].Symptoms)
	}
}

func TestFetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, nil).Fetch(context.Background()); err == nil {
		t.Error("expected error for 502")
	}
}

func TestFetch_NoURL(t *testing.T) {
	if _, err := NewClient("", nil).Fetch(context.Background()); err == nil {
		t.Error("expected error without URL")
	}
}
