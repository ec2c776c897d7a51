package severity

import "testing"

func TestRecommendTreatment(t *testing.T) {
	tests := []struct {
		name string
		r    Result
		age  float64
		want string
	}{
		{"severe adult", Result{Classification: SevereMalaria, SeverityLevel: Severe}, 40, TreatmentSevereReferral},
		{"severe child", Result{Classification: SevereMalaria, SeverityLevel: Severe}, 1, TreatmentSevereReferral},
		{"severe class ignores level", Result{Classification: SevereMalaria, SeverityLevel: Mild}, 30, TreatmentSevereReferral},
		{"uncomplicated child", Result{Classification: Uncomplicated, SeverityLevel: Moderate, IsSevere: true}, 4, TreatmentPediatricACT},
		{"uncomplicated at five", Result{Classification: Uncomplicated}, 5, TreatmentAdultACT},
		{"uncomplicated adult with alerts", Result{Classification: Uncomplicated, SeverityLevel: Severe, IsSevere: true, Alerts: []string{"x"}}, 30, TreatmentAdultACT},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecommendTreatment(tt.r, tt.age); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
