package sync

import "testing"

func TestReportSummary(t *testing.T) {
	cases := []struct {
		name   string
		report Report
		want   string
	}{
		{"empty", Report{}, "nothing to sync"},
		{"auth", Report{Applied: 2, AuthRequired: true}, "authentication required"},
		{"applied only", Report{Applied: 3}, "3 applied"},
		{"mixed", Report{Applied: 2, Deferred: 1, Retrying: 1}, "2 applied, 1 waiting on parent, 1 retrying"},
		{"failed", Report{Failures: []Failure{{Reason: ReasonExhausted}}}, "0 applied, 1 failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.report.Summary(); got != tc.want {
				t.Fatalf("summary: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestReportEmpty(t *testing.T) {
	if !(&Report{Passes: 1}).Empty() {
		t.Fatal("report with only passes should be empty")
	}
	if (&Report{Retrying: 1}).Empty() {
		t.Fatal("report with retries is not empty")
	}
	if (&Report{AuthRequired: true}).Empty() {
		t.Fatal("auth-halted report is not empty")
	}
}
