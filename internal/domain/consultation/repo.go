package consultation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("consultation not found")
	ErrAlreadyExists = errors.New("consultation already exists")
)

// Repository defines the persistence interface for consultation records.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByConsultationID(ctx context.Context, consultationID string) (*Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByPatient(ctx context.Context, patientID string) (int64, error)
	List(ctx context.Context, limit, offset int) ([]*Record, int, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Record, int, error)
	// Recent returns the newest records first.
	Recent(ctx context.Context, limit int) ([]*Record, error)
}
