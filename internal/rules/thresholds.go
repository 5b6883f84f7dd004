// Package rules evaluates accepted readings against silo threshold
// configuration and light-level transitions, producing alert drafts.
package rules

import (
	"fmt"

	"procodus.dev/silowatch/internal/silo"
)

// Draft is a candidate alert produced by a rule. The pipeline persists
// drafts as alerts and hands them to the notification dispatcher.
type Draft struct {
	Level   silo.Severity
	Message string
	Value   map[string]any
}

// EvaluateThresholds checks the reading against the silo's configured
// numeric limits. A check runs only when both the limit and the reading
// value are present and fires on strict excess; missing data never alerts.
// A reading breaching multiple metrics yields one draft per metric.
func EvaluateThresholds(s *silo.Silo, r *silo.Reading) []Draft {
	var drafts []Draft

	checks := []struct {
		metric string
		limit  *float64
		value  *float64
	}{
		{"temperature", s.MaxTemperature, r.Temperature},
		{"humidity", s.MaxHumidity, r.Humidity},
		{"gas", s.MaxGas, r.Gas},
	}

	for _, c := range checks {
		if c.limit == nil || c.value == nil {
			continue
		}
		if *c.value > *c.limit {
			drafts = append(drafts, Draft{
				Level:   silo.SeverityCritical,
				Message: fmt.Sprintf("%s %v exceeds configured limit %v", c.metric, *c.value, *c.limit),
				Value: map[string]any{
					c.metric: *c.value,
					"limit":  *c.limit,
				},
			})
		}
	}

	return drafts
}
