package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/palu-ci/palu/internal/domain/consultation"
)

// Patient maps to the patient table.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID string    `db:"patient_id" json:"patient_id"`
	Age       *int      `db:"age" json:"age,omitempty"`
	Gender    *string   `db:"gender" json:"gender,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Detail is a patient with its most recent consultations.
type Detail struct {
	*Patient
	Consultations []*consultation.Record `json:"consultations"`
}

// ListFilter narrows List results.
type ListFilter struct {
	// SevereOnly keeps patients with at least one severe consultation.
	SevereOnly bool
	Limit      int
}
