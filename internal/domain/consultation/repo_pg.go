package consultation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/palu-ci/palu/internal/domain/severity"
	"github.com/palu-ci/palu/internal/platform/db"
)

const uniqueViolation = "23505"

const recordColumns = `id, consultation_id, patient_id, age_years, age_months, gender,
	region, district, commune, gps_latitude, gps_longitude, consultation_date, consultation_time,
	fever, fever_temp_c, fever_days, headache, nausea_vomiting, fatigue, joint_pain, chills, diarrhea,
	impaired_consciousness, convulsions,
	temperature_c, heart_rate, respiratory_rate, bp_systolic, bp_diastolic, spo2_pct,
	rdt_result, malaria_positive, parasitemia_pct, plasmodium_species, hemoglobin_g_dl,
	season, prior_episodes_30d, community_history, vulnerable, comorbidities,
	treatment_name, treatment_dose, treatment_days, treatment_adherence,
	outcome_status, outcome_death, source_type, data_quality_status, notes,
	is_severe, severity_level, classification, alerts, treatment_recommendation,
	created_at, updated_at, anemia`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	if rec.Comorbidities == nil {
		rec.Comorbidities = []string{}
	}
	if rec.Alerts == nil {
		rec.Alerts = []string{}
	}

	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultation (
			id, consultation_id, patient_id, age_years, age_months, gender,
			region, district, commune, gps_latitude, gps_longitude, consultation_date, consultation_time,
			fever, fever_temp_c, fever_days, headache, nausea_vomiting, fatigue, joint_pain, chills, diarrhea,
			impaired_consciousness, convulsions,
			temperature_c, heart_rate, respiratory_rate, bp_systolic, bp_diastolic, spo2_pct,
			rdt_result, malaria_positive, parasitemia_pct, plasmodium_species, hemoglobin_g_dl,
			season, prior_episodes_30d, community_history, vulnerable, comorbidities,
			treatment_name, treatment_dose, treatment_days, treatment_adherence,
			outcome_status, outcome_death, source_type, data_quality_status, notes,
			is_severe, severity_level, classification, alerts, treatment_recommendation,
			anemia
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22,
			$23, $24,
			$25, $26, $27, $28, $29, $30,
			$31, $32, $33, $34, $35,
			$36, $37, $38, $39, $40,
			$41, $42, $43, $44,
			$45, $46, $47, $48, $49,
			$50, $51, $52, $53, $54,
			$55
		) RETURNING created_at, updated_at`,
		rec.ID, rec.ConsultationID, rec.PatientID, rec.AgeYears, rec.AgeMonths, rec.Gender,
		rec.Region, rec.District, rec.Commune, rec.GPSLatitude, rec.GPSLongitude, rec.ConsultationDate, rec.ConsultationTime,
		rec.Fever, rec.FeverTempC, rec.FeverDays, rec.Headache, rec.NauseaVomiting, rec.Fatigue, rec.JointPain, rec.Chills, rec.Diarrhea,
		rec.ImpairedConsciousness, rec.Convulsions,
		rec.TemperatureC, rec.HeartRate, rec.RespiratoryRate, rec.BPSystolic, rec.BPDiastolic, rec.SpO2Pct,
		rec.RDTResult, rec.MalariaPositive, rec.ParasitemiaPct, rec.PlasmodiumSpecies, rec.HemoglobinGDl,
		rec.Season, rec.PriorEpisodes30d, rec.CommunityHistory, rec.Vulnerable, rec.Comorbidities,
		rec.TreatmentName, rec.TreatmentDose, rec.TreatmentDays, rec.TreatmentAdherence,
		rec.OutcomeStatus, rec.OutcomeDeath, rec.SourceType, rec.DataQualityStatus, rec.Notes,
		rec.IsSevere, string(rec.SeverityLevel), string(rec.Classification), rec.Alerts, rec.TreatmentRecommendation,
		rec.Anemia,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.ConsultationID)
		}
		return fmt.Errorf("insert consultation: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordColumns+` FROM consultation WHERE id = $1`, id))
}

func (r *repoPG) GetByConsultationID(ctx context.Context, consultationID string) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordColumns+` FROM consultation WHERE consultation_id = $1`, consultationID))
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM consultation WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) DeleteByPatient(ctx context.Context, patientID string) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM consultation WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM consultation`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordColumns+` FROM consultation ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := collect(rows)
	return out, total, err
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Record, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM consultation WHERE patient_id = $1`, patientID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+recordColumns+` FROM consultation
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := collect(rows)
	return out, total, err
}

func (r *repoPG) Recent(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordColumns+` FROM consultation ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*Record, error) {
	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec          Record
		level, class string
	)
	err := row.Scan(
		&rec.ID, &rec.ConsultationID, &rec.PatientID, &rec.AgeYears, &rec.AgeMonths, &rec.Gender,
		&rec.Region, &rec.District, &rec.Commune, &rec.GPSLatitude, &rec.GPSLongitude, &rec.ConsultationDate, &rec.ConsultationTime,
		&rec.Fever, &rec.FeverTempC, &rec.FeverDays, &rec.Headache, &rec.NauseaVomiting, &rec.Fatigue, &rec.JointPain, &rec.Chills, &rec.Diarrhea,
		&rec.ImpairedConsciousness, &rec.Convulsions,
		&rec.TemperatureC, &rec.HeartRate, &rec.RespiratoryRate, &rec.BPSystolic, &rec.BPDiastolic, &rec.SpO2Pct,
		&rec.RDTResult, &rec.MalariaPositive, &rec.ParasitemiaPct, &rec.PlasmodiumSpecies, &rec.HemoglobinGDl,
		&rec.Season, &rec.PriorEpisodes30d, &rec.CommunityHistory, &rec.Vulnerable, &rec.Comorbidities,
		&rec.TreatmentName, &rec.TreatmentDose, &rec.TreatmentDays, &rec.TreatmentAdherence,
		&rec.OutcomeStatus, &rec.OutcomeDeath, &rec.SourceType, &rec.DataQualityStatus, &rec.Notes,
		&rec.IsSevere, &level, &class, &rec.Alerts, &rec.TreatmentRecommendation,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.Anemia,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.SeverityLevel = severity.Level(level)
	rec.Classification = severity.Class(class)
	if rec.Alerts == nil {
		rec.Alerts = []string{}
	}
	return &rec, nil
}
