// Package external pulls consultation snapshots from a partner system that
// exposes them as JSON over HTTP.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Patient is one entry of the partner payload.
type Patient struct {
	ID          string   `json:"id"`
	Age         *float64 `json:"age,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Symptoms    []string `json:"symptoms"`
	RDTResult   string   `json:"rdtResult"`
}

// Payload is the document served by the partner endpoint.
type Payload struct {
	Patients []Patient `json:"patients"`
}

type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: url, http: hc}
}

// URL is the endpoint the client reads from.
func (c *Client) URL() string { return c.url }

// Fetch downloads the current patient list.
func (c *Client) Fetch(ctx context.Context) ([]Patient, error) {
	if c.url == "" {
		return nil, fmt.Errorf("external source URL is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", c.url, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("external source returned status %d", res.StatusCode)
	}

	var p Payload
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode external payload: %w", err)
	}
	return p.Patients, nil
}

func num(f float64) *float64 { return &f }

// Simulation is the fixed dataset served at the simulation endpoint so the
// sync flow can be exercised without a partner system.
func Simulation() Payload {
	return Payload{Patients: []Patient{
		{ID: "PAT001", Age: num(25), Symptoms: []string{"fever", "headache"}, RDTResult: "positive"},
		{ID: "PAT002", Age: num(10), Symptoms: []string{"fever"}, RDTResult: "negative"},
		{ID: "PAT003", Age: num(45), Symptoms: []string{"fatigue", "muscle_pain"}, RDTResult: "negative"},
		{ID: "PAT004", Age: num(4), Symptoms: []string{"fever", "vomiting", "convulsions"}, RDTResult: "positive"},
	}}
}
