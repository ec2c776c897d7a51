package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/palu-ci/palu/internal/domain/severity"
	"github.com/palu-ci/palu/internal/platform/extraction"
	"github.com/palu-ci/palu/internal/platform/external"
	"github.com/palu-ci/palu/internal/platform/spreadsheet"
)

// SummaryWindow is how many of the newest consultations the patient
// summaries are built from.
const SummaryWindow = 50

var (
	ErrInvalid             = errors.New("invalid consultation")
	ErrSourceNotConfigured = errors.New("external source is not configured")
)

// Extractor turns free text into structured consultation fields.
type Extractor interface {
	Extract(ctx context.Context, text string) (*extraction.Result, error)
	Ping(ctx context.Context) (*extraction.PingResult, error)
}

// ExternalSource lists patients held by a partner system.
type ExternalSource interface {
	Fetch(ctx context.Context) ([]external.Patient, error)
}

// Recorder receives intake and classification events for metrics.
type Recorder interface {
	Classified(level, classification string)
	Ingested(source, outcome string)
	Extracted(d time.Duration, err error)
}

// AlertPublisher is told about every stored consultation flagged severe.
type AlertPublisher interface {
	SevereCase(r *Record)
}

type nopRecorder struct{}

func (nopRecorder) Classified(string, string)      {}
func (nopRecorder) Ingested(string, string)        {}
func (nopRecorder) Extracted(time.Duration, error) {}

type Service struct {
	repo      Repository
	extractor Extractor
	source    ExternalSource
	metrics   Recorder
	alerts    AlertPublisher
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		metrics: nopRecorder{},
		log:     log.With().Str("component", "consultation").Logger(),
		now:     time.Now,
	}
}

// SetExtractor attaches the document extraction client.
func (s *Service) SetExtractor(x Extractor) { s.extractor = x }

// SetExternalSource attaches the partner system client.
func (s *Service) SetExternalSource(src ExternalSource) { s.source = src }

// SetRecorder attaches a metrics recorder.
func (s *Service) SetRecorder(r Recorder) {
	if r != nil {
		s.metrics = r
	}
}

// SetAlertPublisher attaches the severe case notifier.
func (s *Service) SetAlertPublisher(p AlertPublisher) { s.alerts = p }

// Classify computes the verdict for a record without storing anything.
func (s *Service) Classify(r *Record) Verdict {
	res := severity.Classify(ToClassificationInput(r))
	return Verdict{
		Result:    res,
		Treatment: severity.RecommendTreatment(res, TreatmentAge(r)),
	}
}

// Create fills in intake defaults, attaches the severity verdict and stores
// the record.
func (s *Service) Create(ctx context.Context, r *Record) error {
	r.PatientID = strings.TrimSpace(r.PatientID)
	if r.PatientID == "" {
		s.metrics.Ingested(sourceOrKiosk(r.SourceType), "rejected")
		return fmt.Errorf("%w: patient_id is required", ErrInvalid)
	}

	if r.ConsultationID == "" {
		r.ConsultationID = "CONS_" + uuid.NewString()
	}
	r.SourceType = sourceOrKiosk(r.SourceType)
	if r.Gender == nil && r.SourceType == SourceKiosk {
		g := "F"
		r.Gender = &g
	}
	if r.ConsultationDate == nil {
		now := s.now()
		r.ConsultationDate = &now
	}
	if r.RDTResult != nil && IsPositiveRDT(*r.RDTResult) {
		r.MalariaPositive = true
	}
	if r.OutcomeStatus != nil && strings.EqualFold(strings.TrimSpace(*r.OutcomeStatus), OutcomeDeath) {
		r.OutcomeDeath = true
	}
	if r.Comorbidities == nil {
		r.Comorbidities = []string{}
	}

	v := s.Classify(r)
	r.IsSevere = v.IsSevere
	r.SeverityLevel = v.SeverityLevel
	r.Classification = v.Classification
	r.Alerts = v.Alerts
	r.TreatmentRecommendation = &v.Treatment

	if err := s.repo.Create(ctx, r); err != nil {
		s.metrics.Ingested(r.SourceType, "rejected")
		return err
	}

	s.metrics.Ingested(r.SourceType, "stored")
	s.metrics.Classified(string(r.SeverityLevel), string(r.Classification))
	s.log.Info().
		Str("consultation_id", r.ConsultationID).
		Str("patient_id", r.PatientID).
		Str("source", r.SourceType).
		Str("severity_level", string(r.SeverityLevel)).
		Bool("is_severe", r.IsSevere).
		Msg("consultation recorded")
	if r.IsSevere && s.alerts != nil {
		s.alerts.SevereCase(r)
	}
	return nil
}

func sourceOrKiosk(src string) string {
	if src == "" {
		return SourceKiosk
	}
	return src
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByConsultationID(ctx context.Context, consultationID string) (*Record, error) {
	return s.repo.GetByConsultationID(ctx, consultationID)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Record, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// DeleteByPatient removes every consultation of a patient.
func (s *Service) DeleteByPatient(ctx context.Context, patientID string) (int64, error) {
	return s.repo.DeleteByPatient(ctx, patientID)
}

// Summaries groups the newest consultations by patient. Patients are ordered
// by their latest consultation; the demographic fields come from it.
func (s *Service) Summaries(ctx context.Context) ([]*PatientSummary, error) {
	recent, err := s.repo.Recent(ctx, SummaryWindow)
	if err != nil {
		return nil, err
	}

	out := []*PatientSummary{}
	byPatient := make(map[string]*PatientSummary)
	for _, r := range recent {
		sum, ok := byPatient[r.PatientID]
		if !ok {
			sum = &PatientSummary{
				PatientID:            r.PatientID,
				Age:                  r.AgeYears,
				Gender:               r.Gender,
				District:             r.District,
				LastConsultationDate: r.ConsultationDate,
			}
			byPatient[r.PatientID] = sum
			out = append(out, sum)
		}
		sum.Consultations = append(sum.Consultations, r)
	}
	return out, nil
}

// Import stores one record per spreadsheet row. Rows that cannot be mapped
// or stored are counted and skipped.
func (s *Service) Import(ctx context.Context, rows []spreadsheet.Row) (*ImportSummary, error) {
	sum := &ImportSummary{IDs: []uuid.UUID{}}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		r, err := RecordFromRow(row)
		if err != nil {
			sum.Errors++
			s.metrics.Ingested(SourceBatchImport, "rejected")
			s.log.Warn().Err(err).Int("row", i+2).Msg("import row skipped")
			continue
		}
		r.ConsultationID = "IMPORT_" + uuid.NewString()
		if r.PatientID == "" {
			r.PatientID = "PAT_" + uuid.NewString()[:8]
		}

		if err := s.Create(ctx, r); err != nil {
			sum.Errors++
			s.log.Warn().Err(err).Int("row", i+2).Msg("import row not stored")
			continue
		}
		sum.Count++
		sum.IDs = append(sum.IDs, r.ID)
	}

	s.log.Info().Int("count", sum.Count).Int("errors", sum.Errors).Msg("batch import finished")
	return sum, nil
}

// CreateFromExtraction sends text through the extractor and stores the
// resulting record for review. source is SourcePDF or SourceMarkdown.
func (s *Service) CreateFromExtraction(ctx context.Context, text, source string) (*Record, error) {
	if s.extractor == nil {
		return nil, extraction.ErrNotConfigured
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalid)
	}

	start := s.now()
	res, err := s.extractor.Extract(ctx, text)
	s.metrics.Extracted(s.now().Sub(start), err)
	if err != nil {
		return nil, err
	}

	r, err := recordFromFields(res.Fields)
	if err != nil {
		return nil, err
	}
	r.SourceType = source
	quality := QualityInReview
	r.DataQualityStatus = &quality
	if strings.TrimSpace(r.PatientID) == "" {
		r.PatientID = "PAT_IMPORT_" + strconv.FormatInt(s.now().UnixMilli(), 10)
	}

	if err := s.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// recordFromFields decodes extractor output. Identity and verdict columns are
// assigned here and by Create, never taken from the model output.
func recordFromFields(fields json.RawMessage) (*Record, error) {
	var doc struct {
		Record
		ConsultationDate *string `json:"consultation_date"`
	}
	if err := json.Unmarshal(fields, &doc); err != nil {
		return nil, &extraction.InvalidJSONError{Raw: string(fields), Err: err}
	}

	r := doc.Record
	r.ID = uuid.Nil
	r.ConsultationID = ""
	r.IsSevere = false
	r.SeverityLevel = ""
	r.Classification = ""
	r.Alerts = nil
	r.TreatmentRecommendation = nil
	r.ConsultationDate = nil
	if doc.ConsultationDate != nil && *doc.ConsultationDate != "" {
		if d, err := ParseDate(*doc.ConsultationDate); err == nil {
			r.ConsultationDate = &d
		}
	}
	return &r, nil
}

// CheckExtraction probes the extraction backend.
func (s *Service) CheckExtraction(ctx context.Context) (*extraction.PingResult, error) {
	if s.extractor == nil {
		return nil, extraction.ErrNotConfigured
	}
	return s.extractor.Ping(ctx)
}

// SyncExternal pulls the partner patient list and stores one consultation
// per patient.
func (s *Service) SyncExternal(ctx context.Context) (*ImportSummary, error) {
	if s.source == nil {
		return nil, ErrSourceNotConfigured
	}
	patients, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch external patients: %w", err)
	}

	sum := &ImportSummary{IDs: []uuid.UUID{}}
	for _, p := range patients {
		r := RecordFromExternal(p)
		if err := s.Create(ctx, r); err != nil {
			sum.Errors++
			s.log.Warn().Err(err).Str("patient_id", p.ID).Msg("external patient not stored")
			continue
		}
		sum.Count++
		sum.IDs = append(sum.IDs, r.ID)
	}

	s.log.Info().Int("count", sum.Count).Int("errors", sum.Errors).Msg("external sync finished")
	return sum, nil
}

// RecordFromExternal maps a partner patient entry to a record.
func RecordFromExternal(p external.Patient) *Record {
	r := &Record{
		PatientID:    p.ID,
		AgeYears:     p.Age,
		TemperatureC: p.Temperature,
		SourceType:   SourceAPI,
	}
	if p.RDTResult != "" {
		rdt := p.RDTResult
		r.RDTResult = &rdt
	}
	if unknown := ApplySymptomTags(r, p.Symptoms); len(unknown) > 0 {
		notes := "other symptoms: " + strings.Join(unknown, ", ")
		r.Notes = &notes
	}
	quality := QualityValid
	r.DataQualityStatus = &quality
	return r
}

// SelfReport stores a patient portal declaration for clinician review.
func (s *Service) SelfReport(ctx context.Context, sr SelfReport) (*Record, error) {
	r, err := RecordFromSelfReport(sr)
	if err != nil {
		s.metrics.Ingested(SourcePatient, "rejected")
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	r.PatientID = "PAT_" + uuid.NewString()[:8]
	if err := s.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}
