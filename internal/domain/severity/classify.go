// Package severity classifies malaria consultations into WHO-style severity
// buckets and derives a first-line treatment recommendation.
//
// Classification is a fold over an ordered list of rules. Each rule has a
// predicate and an effect on the accumulated Result; every matching rule
// fires, in order, and no rule ever lowers the severity level.
package severity

import (
	"fmt"
	"strconv"
)

const (
	AlertDangerSign      = "CONVULSIONS/ALTERED CONSCIOUSNESS — EMERGENCY TREATMENT REQUIRED"
	AlertYoungChild      = "CHILD < 5 years with elevated temperature — CLOSE MONITORING"
	AlertRDTPositive     = "RDT POSITIVE — malaria confirmed"
	AlertRDTInconclusive = "RDT INCONCLUSIVE — repeat test or alternative diagnostics"

	hyperthermiaAlertFormat = "CRITICAL HYPERTHERMIA (%s°C) — HOSPITALIZATION REQUIRED"
)

const (
	HyperthermiaThreshold  = 40.0
	YoungChildAge          = 5.0
	YoungChildTemperature  = 39.5
	ModerateFeverThreshold = 39.0
)

var (
	dangerSigns      = []Symptom{Convulsions, Coma, ImpairedConsciousness}
	moderateSymptoms = []Symptom{Vomiting, Anemia, Headache}
)

// Rule is one step of the classification fold.
type Rule struct {
	Name string
	// Match reports whether the rule fires. It sees the accumulator so far.
	Match func(in Input, acc *Result) bool
	// Apply mutates the accumulator. Only called when Match is true.
	Apply func(in Input, acc *Result)
}

var rules = []Rule{
	{
		Name:  "danger_sign",
		Match: func(in Input, _ *Result) bool { return in.hasAny(dangerSigns...) },
		Apply: func(_ Input, acc *Result) {
			acc.IsSevere = true
			acc.SeverityLevel = Severe
			acc.Classification = SevereMalaria
			acc.Alerts = append(acc.Alerts, AlertDangerSign)
		},
	},
	{
		Name:  "hyperthermia",
		Match: func(in Input, _ *Result) bool { return in.Temperature > HyperthermiaThreshold },
		Apply: func(in Input, acc *Result) {
			acc.IsSevere = true
			// mild jumps straight to severe.
			if acc.SeverityLevel == Mild {
				acc.SeverityLevel = Severe
			}
			acc.Alerts = append(acc.Alerts, HyperthermiaAlert(in.Temperature))
		},
	},
	{
		Name: "young_child",
		Match: func(in Input, _ *Result) bool {
			return in.Age < YoungChildAge && in.Temperature > YoungChildTemperature
		},
		Apply: func(_ Input, acc *Result) {
			acc.IsSevere = true
			if acc.SeverityLevel == Mild {
				acc.SeverityLevel = Moderate
			}
			acc.Alerts = append(acc.Alerts, AlertYoungChild)
		},
	},
	{
		Name: "moderate_symptoms",
		Match: func(in Input, acc *Result) bool {
			return in.hasAny(moderateSymptoms...) && !acc.IsSevere && in.Temperature > ModerateFeverThreshold
		},
		Apply: func(_ Input, acc *Result) {
			acc.SeverityLevel = Moderate
		},
	},
	{
		Name:  "rdt",
		Match: func(in Input, _ *Result) bool { return in.RDT == RDTPositive || in.RDT == RDTInconclusive },
		Apply: func(in Input, acc *Result) {
			if in.RDT == RDTPositive {
				acc.Alerts = append(acc.Alerts, AlertRDTPositive)
				return
			}
			acc.Alerts = append(acc.Alerts, AlertRDTInconclusive)
		},
	},
}

// Rules returns the classification rules in evaluation order. The returned
// slice is a copy.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Classify evaluates every rule against in and returns the accumulated verdict.
func Classify(in Input) Result {
	return Fold(in, rules)
}

// Fold runs the given rules in order starting from the mild/uncomplicated
// baseline.
func Fold(in Input, rs []Rule) Result {
	acc := Result{
		SeverityLevel:  Mild,
		Classification: Uncomplicated,
		Alerts:         []string{},
	}
	for _, r := range rs {
		if r.Match(in, &acc) {
			r.Apply(in, &acc)
		}
	}
	return acc
}

// HyperthermiaAlert formats the critical temperature alert with the shortest
// decimal representation of t (40.5 stays "40.5", 41 prints as "41").
func HyperthermiaAlert(t float64) string {
	return fmt.Sprintf(hyperthermiaAlertFormat, strconv.FormatFloat(t, 'f', -1, 64))
}
