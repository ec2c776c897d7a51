package severity

import "strings"

// Symptom is a recognised symptom tag. Unknown tags are carried through but
// never match a rule.
type Symptom string

const (
	Fever                 Symptom = "fever"
	Vomiting              Symptom = "vomiting"
	Headache              Symptom = "headache"
	Fatigue               Symptom = "fatigue"
	Chills                Symptom = "chills"
	Diarrhea              Symptom = "diarrhea"
	JointPain             Symptom = "joint_pain"
	ImpairedConsciousness Symptom = "impaired_consciousness"
	Convulsions           Symptom = "convulsions"
	Coma                  Symptom = "coma"
	Anemia                Symptom = "anemia"
)

// KnownSymptoms lists every tag the rules understand.
var KnownSymptoms = []Symptom{
	Fever, Vomiting, Headache, Fatigue, Chills, Diarrhea,
	JointPain, ImpairedConsciousness, Convulsions, Coma, Anemia,
}

// ParseSymptom normalises a tag (case, surrounding space). ok is false when
// the tag is not one of KnownSymptoms; the normalised value is still returned.
func ParseSymptom(s string) (Symptom, bool) {
	sym := Symptom(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range KnownSymptoms {
		if k == sym {
			return sym, true
		}
	}
	return sym, false
}

// RDTResult is the outcome of a malaria rapid diagnostic test.
type RDTResult string

const (
	RDTPositive     RDTResult = "positive"
	RDTNegative     RDTResult = "negative"
	RDTInconclusive RDTResult = "inconclusive"
)

// ParseRDT accepts the English and French spellings used by the intake
// surfaces. Anything unrecognised, including the empty string, is
// inconclusive.
func ParseRDT(s string) RDTResult {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "positif", "pos", "+":
		return RDTPositive
	case "negative", "négatif", "negatif", "neg", "-":
		return RDTNegative
	default:
		return RDTInconclusive
	}
}

// Level is the three-step triage bucket.
type Level string

const (
	Mild     Level = "mild"
	Moderate Level = "moderate"
	Severe   Level = "severe"
)

// Rank orders levels: mild < moderate < severe. Unknown levels rank below mild.
func (l Level) Rank() int {
	switch l {
	case Mild:
		return 1
	case Moderate:
		return 2
	case Severe:
		return 3
	}
	return 0
}

// Class is the coarse uncomplicated/severe bucket.
type Class string

const (
	Uncomplicated Class = "uncomplicated"
	SevereMalaria Class = "severe"
)

// Input is the consultation snapshot the classifier works on. Callers supply
// defaults for missing values before calling Classify.
type Input struct {
	Age         float64   `json:"age"`
	Temperature float64   `json:"temperature"`
	Symptoms    []Symptom `json:"symptoms"`
	RDT         RDTResult `json:"rdt_result"`
}

// Result is the verdict returned by Classify.
type Result struct {
	IsSevere       bool     `json:"is_severe"`
	SeverityLevel  Level    `json:"severity_level"`
	Classification Class    `json:"classification"`
	Alerts         []string `json:"alerts"`
}

func (in Input) hasAny(set ...Symptom) bool {
	for _, s := range in.Symptoms {
		for _, want := range set {
			if s == want {
				return true
			}
		}
	}
	return false
}
