package main

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/palu-ci/palu/internal/config"
	"github.com/palu-ci/palu/internal/domain/consultation"
	"github.com/palu-ci/palu/internal/domain/severity"
	"github.com/palu-ci/palu/internal/platform/webhook"
)

type severeCasePayload struct {
	ConsultationID   string         `json:"consultation_id"`
	PatientID        string         `json:"patient_id"`
	Region           *string        `json:"region,omitempty"`
	District         *string        `json:"district,omitempty"`
	ConsultationDate *time.Time     `json:"consultation_date,omitempty"`
	SeverityLevel    severity.Level `json:"severity_level"`
	Classification   severity.Class `json:"classification"`
	Alerts           []string       `json:"alerts"`
	Treatment        *string        `json:"treatment_recommendation,omitempty"`
}

// severeCaseAlerts forwards severe consultations to the webhook dispatcher.
type severeCaseAlerts struct {
	dispatcher *webhook.Dispatcher
	log        zerolog.Logger
}

func (a severeCaseAlerts) SevereCase(r *consultation.Record) {
	ev, err := webhook.NewEvent(webhook.EventSevereCase, r.ConsultationID, severeCasePayload{
		ConsultationID:   r.ConsultationID,
		PatientID:        r.PatientID,
		Region:           r.Region,
		District:         r.District,
		ConsultationDate: r.ConsultationDate,
		SeverityLevel:    r.SeverityLevel,
		Classification:   r.Classification,
		Alerts:           r.Alerts,
		Treatment:        r.TreatmentRecommendation,
	})
	if err != nil {
		a.log.Error().Err(err).Str("consultation_id", r.ConsultationID).Msg("build severe case event")
		return
	}
	a.dispatcher.Publish(ev)
}

func newDispatcher(cfg *config.Config, logger zerolog.Logger) *webhook.Dispatcher {
	var endpoints []webhook.Endpoint
	for _, u := range cfg.AlertEndpoints() {
		endpoints = append(endpoints, webhook.Endpoint{URL: u, Secret: cfg.AlertWebhookKey})
	}
	return webhook.NewDispatcher(endpoints, logger)
}
