package consultation

import (
	"time"

	"github.com/google/uuid"

	"github.com/palu-ci/palu/internal/domain/severity"
)

// Source types recorded on every consultation.
const (
	SourceKiosk       = "kiosque"
	SourceBatchImport = "batch_import"
	SourcePDF         = "pdf"
	SourceMarkdown    = "markdown"
	SourceAPI         = "api"
	SourcePatient     = "patient"
)

// Data quality markers.
const (
	QualityValid    = "valide"
	QualityInReview = "en revue"
)

const OutcomeDeath = "décès"

// Record maps to the consultation table: one flat row per consultation, as
// collected by every intake surface, with the severity verdict attached.
type Record struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ConsultationID string    `db:"consultation_id" json:"consultation_id"`
	PatientID      string    `db:"patient_id" json:"patient_id"`
	AgeYears       *float64  `db:"age_years" json:"age_years,omitempty"`
	AgeMonths      *float64  `db:"age_months" json:"age_months,omitempty"`
	Gender         *string   `db:"gender" json:"gender,omitempty"`

	Region           *string    `db:"region" json:"region,omitempty"`
	District         *string    `db:"district" json:"district,omitempty"`
	Commune          *string    `db:"commune" json:"commune,omitempty"`
	GPSLatitude      *float64   `db:"gps_latitude" json:"gps_latitude,omitempty"`
	GPSLongitude     *float64   `db:"gps_longitude" json:"gps_longitude,omitempty"`
	ConsultationDate *time.Time `db:"consultation_date" json:"consultation_date,omitempty"`
	ConsultationTime *string    `db:"consultation_time" json:"consultation_time,omitempty"`

	Fever                 bool     `db:"fever" json:"fever"`
	FeverTempC            *float64 `db:"fever_temp_c" json:"fever_temp_c,omitempty"`
	FeverDays             *float64 `db:"fever_days" json:"fever_days,omitempty"`
	Headache              bool     `db:"headache" json:"headache"`
	NauseaVomiting        bool     `db:"nausea_vomiting" json:"nausea_vomiting"`
	Fatigue               bool     `db:"fatigue" json:"fatigue"`
	JointPain             bool     `db:"joint_pain" json:"joint_pain"`
	Chills                bool     `db:"chills" json:"chills"`
	Diarrhea              bool     `db:"diarrhea" json:"diarrhea"`
	ImpairedConsciousness bool     `db:"impaired_consciousness" json:"impaired_consciousness"`
	Convulsions           bool     `db:"convulsions" json:"convulsions"`
	Anemia                bool     `db:"anemia" json:"anemia"`

	TemperatureC    *float64 `db:"temperature_c" json:"temperature_c,omitempty"`
	HeartRate       *float64 `db:"heart_rate" json:"heart_rate,omitempty"`
	RespiratoryRate *float64 `db:"respiratory_rate" json:"respiratory_rate,omitempty"`
	BPSystolic      *float64 `db:"bp_systolic" json:"bp_systolic,omitempty"`
	BPDiastolic     *float64 `db:"bp_diastolic" json:"bp_diastolic,omitempty"`
	SpO2Pct         *float64 `db:"spo2_pct" json:"spo2_pct,omitempty"`

	RDTResult         *string  `db:"rdt_result" json:"rdt_result,omitempty"`
	MalariaPositive   bool     `db:"malaria_positive" json:"malaria_positive"`
	ParasitemiaPct    *float64 `db:"parasitemia_pct" json:"parasitemia_pct,omitempty"`
	PlasmodiumSpecies *string  `db:"plasmodium_species" json:"plasmodium_species,omitempty"`
	HemoglobinGDl     *float64 `db:"hemoglobin_g_dl" json:"hemoglobin_g_dl,omitempty"`

	Season           *string  `db:"season" json:"season,omitempty"`
	PriorEpisodes30d *float64 `db:"prior_episodes_30d" json:"prior_episodes_30d,omitempty"`
	CommunityHistory bool     `db:"community_history" json:"community_history"`
	Vulnerable       bool     `db:"vulnerable" json:"vulnerable"`
	Comorbidities    []string `db:"comorbidities" json:"comorbidities"`

	TreatmentName      *string  `db:"treatment_name" json:"treatment_name,omitempty"`
	TreatmentDose      *string  `db:"treatment_dose" json:"treatment_dose,omitempty"`
	TreatmentDays      *float64 `db:"treatment_days" json:"treatment_days,omitempty"`
	TreatmentAdherence bool     `db:"treatment_adherence" json:"treatment_adherence"`

	OutcomeStatus *string `db:"outcome_status" json:"outcome_status,omitempty"`
	OutcomeDeath  bool    `db:"outcome_death" json:"outcome_death"`

	SourceType        string  `db:"source_type" json:"source_type"`
	DataQualityStatus *string `db:"data_quality_status" json:"data_quality_status,omitempty"`
	Notes             *string `db:"notes" json:"notes,omitempty"`

	IsSevere                bool           `db:"is_severe" json:"is_severe"`
	SeverityLevel           severity.Level `db:"severity_level" json:"severity_level"`
	Classification          severity.Class `db:"classification" json:"classification"`
	Alerts                  []string       `db:"alerts" json:"alerts"`
	TreatmentRecommendation *string        `db:"treatment_recommendation" json:"treatment_recommendation,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Verdict is the classifier output returned alongside a stored record.
type Verdict struct {
	severity.Result
	Treatment string `json:"treatment"`
}

// PatientSummary is one row of the dashboard list: the most recent
// consultation of each patient among the latest consultations.
type PatientSummary struct {
	PatientID            string     `json:"patient_id"`
	Age                  *float64   `json:"age,omitempty"`
	Gender               *string    `json:"gender,omitempty"`
	District             *string    `json:"district,omitempty"`
	LastConsultationDate *time.Time `json:"last_consultation_date,omitempty"`
	Consultations        []*Record  `json:"consultations"`
}

// ImportSummary reports the outcome of a batch import.
type ImportSummary struct {
	Count  int         `json:"count"`
	Errors int         `json:"errors"`
	IDs    []uuid.UUID `json:"ids"`
}

// SelfReport is a symptom declaration submitted by a patient through the
// portal.
type SelfReport struct {
	Name         string   `json:"name"`
	Email        string   `json:"email,omitempty"`
	Symptoms     []string `json:"symptoms"`
	Duration     string   `json:"duration,omitempty"`
	SelfSeverity string   `json:"severity,omitempty"`
	Age          *float64 `json:"age,omitempty"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
}
