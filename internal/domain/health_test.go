package domain

import "testing"

func TestOverallHealth(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]HealthCheck
		want   HealthStatus
	}{
		{"no checks", nil, HealthStatusOK},
		{"all ok", map[string]HealthCheck{"postgres": {Status: HealthStatusOK, Required: true}}, HealthStatusOK},
		{"optional down", map[string]HealthCheck{
			"postgres": {Status: HealthStatusOK, Required: true},
			"redis":    {Status: HealthStatusError},
		}, HealthStatusDegraded},
		{"required down", map[string]HealthCheck{
			"postgres": {Status: HealthStatusError, Required: true},
			"redis":    {Status: HealthStatusError},
		}, HealthStatusError},
	}
	for _, tc := range cases {
		if got := OverallHealth(tc.checks); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}
