package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/palu-ci/palu/internal/domain/consultation"
	"github.com/palu-ci/palu/internal/platform/db"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
	// RecentConsultations is how many consultations Get attaches.
	RecentConsultations = 20
)

var ErrInvalid = errors.New("invalid patient")

// ConsultationStore is the part of the consultation service the registry
// needs.
type ConsultationStore interface {
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*consultation.Record, int, error)
	DeleteByPatient(ctx context.Context, patientID string) (int64, error)
}

type Service struct {
	repo          Repository
	consultations ConsultationStore
	tx            db.Beginner
	log           zerolog.Logger
}

// NewService wires the registry. tx may be nil, in which case Delete runs
// its two steps without a surrounding transaction.
func NewService(repo Repository, consultations ConsultationStore, tx db.Beginner, log zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		consultations: consultations,
		tx:            tx,
		log:           log.With().Str("component", "patient").Logger(),
	}
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	p.PatientID = strings.TrimSpace(p.PatientID)
	if p.PatientID == "" {
		return fmt.Errorf("%w: patient_id is required", ErrInvalid)
	}
	if err := validate(p); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.log.Info().Str("patient_id", p.PatientID).Msg("patient registered")
	return nil
}

func validate(p *Patient) error {
	if p.Age != nil && (*p.Age < 0 || *p.Age > 130) {
		return fmt.Errorf("%w: age out of range", ErrInvalid)
	}
	if p.Gender != nil {
		g := strings.ToUpper(strings.TrimSpace(*p.Gender))
		switch g {
		case "M", "F", "I":
			p.Gender = &g
		default:
			return fmt.Errorf("%w: gender must be M, F or I", ErrInvalid)
		}
	}
	return nil
}

// Get returns the patient with its most recent consultations.
func (s *Service) Get(ctx context.Context, patientID string) (*Detail, error) {
	p, err := s.repo.GetByPatientID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	recs, _, err := s.consultations.ListByPatient(ctx, patientID, RecentConsultations, 0)
	if err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	if recs == nil {
		recs = []*consultation.Record{}
	}
	return &Detail{Patient: p, Consultations: recs}, nil
}

// Update replaces age and gender.
func (s *Service) Update(ctx context.Context, p *Patient) error {
	if err := validate(p); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

// Delete removes the patient's consultations and then the patient.
func (s *Service) Delete(ctx context.Context, patientID string) error {
	var removed int64
	err := s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByPatientID(ctx, patientID); err != nil {
			return err
		}
		n, err := s.consultations.DeleteByPatient(ctx, patientID)
		if err != nil {
			return fmt.Errorf("delete consultations: %w", err)
		}
		removed = n
		return s.repo.Delete(ctx, patientID)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("patient_id", patientID).Int64("consultations", removed).Msg("patient deleted")
	return nil
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return db.WithTx(ctx, s.tx, fn)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Patient, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	out, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Patient{}
	}
	return out, nil
}
