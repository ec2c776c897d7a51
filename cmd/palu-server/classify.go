package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/palu-ci/palu/internal/domain/severity"
)

type classifyOutput struct {
	severity.Result
	Treatment string `json:"treatment_recommendation"`
}

func classifyCmd() *cobra.Command {
	var (
		age         float64
		temperature float64
		symptoms    []string
		rdt         string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a single case without touching the database",
		Example: `  palu-server classify --age 3 --temperature 39.8 --symptom vomiting --rdt positive
  palu-server classify --age 30 --temperature 40.5 --symptom convulsions --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := severity.Input{
				Age:         age,
				Temperature: temperature,
				Symptoms:    []severity.Symptom{},
				RDT:         severity.ParseRDT(rdt),
			}
			for _, raw := range symptoms {
				for _, part := range strings.Split(raw, ",") {
					if strings.TrimSpace(part) == "" {
						continue
					}
					sym, ok := severity.ParseSymptom(part)
					if !ok {
						return fmt.Errorf("unknown symptom %q", part)
					}
					in.Symptoms = append(in.Symptoms, sym)
				}
			}

			res := severity.Classify(in)
			out := classifyOutput{Result: res, Treatment: severity.RecommendTreatment(res, age)}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			printVerdict(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().Float64Var(&age, "age", 0, "Age in years")
	cmd.Flags().Float64Var(&temperature, "temperature", 37, "Body temperature in °C")
	cmd.Flags().StringArrayVar(&symptoms, "symptom", nil, "Symptom tag, repeatable or comma separated")
	cmd.Flags().StringVar(&rdt, "rdt", "", "Rapid diagnostic test result (positive, negative, inconclusive)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the verdict as JSON")
	return cmd
}

func printVerdict(w io.Writer, out classifyOutput) {
	fmt.Fprintf(w, "Severity:       %s\n", out.SeverityLevel)
	fmt.Fprintf(w, "Classification: %s\n", out.Classification)
	fmt.Fprintf(w, "Severe:         %t\n", out.IsSevere)
	fmt.Fprintf(w, "Treatment:      %s\n", out.Treatment)
	if len(out.Alerts) == 0 {
		return
	}
	fmt.Fprintln(w, "Alerts:")
	for _, a := range out.Alerts {
		fmt.Fprintf(w, "  - %s\n", a)
	}
}
