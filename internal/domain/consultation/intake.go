package consultation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/palu-ci/palu/internal/domain/severity"
)

// Caller defaults applied before classification.
const (
	DefaultAge          = 0.0
	DefaultTemperature  = 37.0
	DefaultTreatmentAge = 5.0
)

// ToClassificationInput builds the classifier input from a record, filling in
// the defaults for missing age and temperature.
func ToClassificationInput(r *Record) severity.Input {
	in := severity.Input{
		Age:         DefaultAge,
		Temperature: DefaultTemperature,
		Symptoms:    Symptoms(r),
		RDT:         severity.ParseRDT(deref(r.RDTResult)),
	}
	if r.AgeYears != nil && *r.AgeYears != 0 {
		in.Age = *r.AgeYears
	}
	if r.TemperatureC != nil && *r.TemperatureC != 0 {
		in.Temperature = *r.TemperatureC
	}
	return in
}

// TreatmentAge is the age used for the treatment recommendation. A missing
// age is treated as five years, which selects the adult regimen.
func TreatmentAge(r *Record) float64 {
	if r.AgeYears != nil && *r.AgeYears != 0 {
		return *r.AgeYears
	}
	return DefaultTreatmentAge
}

// Symptoms lists the symptom tags set on the record, in a fixed order.
func Symptoms(r *Record) []severity.Symptom {
	var out []severity.Symptom
	flags := []struct {
		set bool
		tag severity.Symptom
	}{
		{r.Fever, severity.Fever},
		{r.Headache, severity.Headache},
		{r.NauseaVomiting, severity.Vomiting},
		{r.Fatigue, severity.Fatigue},
		{r.ImpairedConsciousness, severity.ImpairedConsciousness},
		{r.Convulsions, severity.Convulsions},
		{r.Anemia, severity.Anemia},
		{r.JointPain, severity.JointPain},
		{r.Chills, severity.Chills},
		{r.Diarrhea, severity.Diarrhea},
	}
	for _, f := range flags {
		if f.set {
			out = append(out, f.tag)
		}
	}
	return out
}

// ApplySymptomTags sets the record's symptom flags from tag strings such as
// those sent by the patient portal or an external source. Tags with no
// matching flag are returned.
func ApplySymptomTags(r *Record, tags []string) []string {
	var unknown []string
	for _, raw := range tags {
		tag, _ := severity.ParseSymptom(raw)
		switch tag {
		case severity.Fever:
			r.Fever = true
		case severity.Headache:
			r.Headache = true
		case severity.Vomiting, "nausea":
			r.NauseaVomiting = true
		case severity.Fatigue:
			r.Fatigue = true
		case severity.JointPain, "muscle_pain":
			r.JointPain = true
		case severity.Chills:
			r.Chills = true
		case severity.Diarrhea:
			r.Diarrhea = true
		case severity.ImpairedConsciousness, severity.Coma:
			r.ImpairedConsciousness = true
		case severity.Convulsions:
			r.Convulsions = true
		case severity.Anemia, "anaemia":
			r.Anemia = true
		default:
			unknown = append(unknown, raw)
		}
	}
	return unknown
}

var symptomKeywords = []struct {
	keywords []string
	set      func(r *Record)
}{
	{[]string{"fievre", "fièvre"}, func(r *Record) { r.Fever = true }},
	{[]string{"cephalees", "céphalées"}, func(r *Record) { r.Headache = true }},
	{[]string{"nausees", "nausées", "vomissements"}, func(r *Record) { r.NauseaVomiting = true }},
	{[]string{"fatigue"}, func(r *Record) { r.Fatigue = true }},
	{[]string{"douleurs", "articulaire"}, func(r *Record) { r.JointPain = true }},
	{[]string{"frissons"}, func(r *Record) { r.Chills = true }},
	{[]string{"diarhee", "diarrhée"}, func(r *Record) { r.Diarrhea = true }},
	{[]string{"conscience", "coma"}, func(r *Record) { r.ImpairedConsciousness = true }},
	{[]string{"convulsion"}, func(r *Record) { r.Convulsions = true }},
	{[]string{"anemie", "anémie"}, func(r *Record) { r.Anemia = true }},
}

// ApplySymptomText sets symptom flags from a free-text cell like
// "Fièvre, céphalées, vomissements" by keyword containment.
func ApplySymptomText(r *Record, text string) {
	s := strings.ToLower(text)
	if s == "" {
		return
	}
	for _, k := range symptomKeywords {
		for _, kw := range k.keywords {
			if strings.Contains(s, kw) {
				k.set(r)
				break
			}
		}
	}
}

// IsPositiveRDT reports whether a raw RDT string reads as positive.
func IsPositiveRDT(raw string) bool {
	return severity.ParseRDT(raw) == severity.RDTPositive
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
}

// ParseDate accepts the date formats found in spreadsheets and extracted
// documents.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// column returns the first non-empty value among the given header names.
// Header lookup is case-insensitive.
func column(row map[string]string, names ...string) string {
	for _, n := range names {
		for k, v := range row {
			if strings.EqualFold(strings.TrimSpace(k), n) {
				if v = strings.TrimSpace(v); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func parseNumber(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &f
}

// RecordFromRow maps one spreadsheet row, keyed by header, to a record.
// Unparseable numbers become nil; an unparseable date is an error.
func RecordFromRow(row map[string]string) (*Record, error) {
	r := &Record{
		PatientID:  column(row, "patientId", "patient_id"),
		SourceType: SourceBatchImport,
	}

	if age := parseNumber(column(row, "age", "ageYears")); age != nil {
		whole := float64(int(*age))
		r.AgeYears = &whole
	}

	gender := column(row, "gender", "sexe")
	if gender == "" {
		gender = "I"
	}
	r.Gender = &gender

	r.TemperatureC = parseNumber(column(row, "temperature", "temperatureC"))
	ApplySymptomText(r, column(row, "symptoms", "symptomes"))

	rdt := column(row, "rdtResult", "resultat_tdr")
	if rdt == "" {
		rdt = "inconnu"
	}
	r.RDTResult = &rdt

	if v := column(row, "traitement", "treatment"); v != "" {
		r.TreatmentName = &v
	}
	if v := column(row, "outcome"); v != "" {
		r.OutcomeStatus = &v
	}
	if v := column(row, "dateConsultation", "date"); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			return nil, err
		}
		r.ConsultationDate = &d
	}

	quality := QualityValid
	r.DataQualityStatus = &quality
	return r, nil
}

// RecordFromSelfReport turns a portal declaration into a record. The
// declaration details that have no column are kept in the notes.
func RecordFromSelfReport(sr SelfReport) (*Record, error) {
	if strings.TrimSpace(sr.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	if len(sr.Symptoms) == 0 {
		return nil, fmt.Errorf("at least one symptom is required")
	}

	r := &Record{
		SourceType:   SourcePatient,
		AgeYears:     sr.Age,
		TemperatureC: sr.TemperatureC,
	}
	unknown := ApplySymptomTags(r, sr.Symptoms)

	var b strings.Builder
	fmt.Fprintf(&b, "self-report from %s", strings.TrimSpace(sr.Name))
	if sr.Email != "" {
		fmt.Fprintf(&b, " <%s>", sr.Email)
	}
	if sr.Duration != "" {
		fmt.Fprintf(&b, "; duration: %s", sr.Duration)
	}
	if sr.SelfSeverity != "" {
		fmt.Fprintf(&b, "; self-assessed severity: %s", sr.SelfSeverity)
	}
	if len(unknown) > 0 {
		fmt.Fprintf(&b, "; other symptoms: %s", strings.Join(unknown, ", "))
	}
	notes := b.String()
	r.Notes = &notes

	quality := QualityInReview
	r.DataQualityStatus = &quality
	return r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
