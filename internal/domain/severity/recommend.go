package severity

const (
	TreatmentSevereReferral = "URGENT HOSPITAL REFERRAL — Parenteral ACT (IV or IM artesunate)"
	TreatmentPediatricACT   = "Pediatric ACT — IM artemether or IV artesunate (weight-dependent)"
	TreatmentAdultACT       = "Adult ACT — IV artesunate or IM artemether — mandatory follow-up"
)

// RecommendTreatment maps a verdict and the patient's age to a first-line
// treatment. Only the coarse classification and the age are consulted.
func RecommendTreatment(r Result, age float64) string {
	if r.Classification == SevereMalaria {
		return TreatmentSevereReferral
	}
	if age < YoungChildAge {
		return TreatmentPediatricACT
	}
	return TreatmentAdultACT
}
