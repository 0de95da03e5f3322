package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"reportweaver/internal/errors"
	"reportweaver/internal/state"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", &UsageError{Message: "unknown flag"}, ExitUsage},
		{"wrapped usage", errors.Wrap(&UsageError{Message: "bad"}, "run"), ExitUsage},
		{"marked config", errors.Mark(errors.New("parallelism must be >= 0"), errors.ErrInvalidConfig), ExitConfig},
		{"config error", &state.ConfigError{Code: "InvalidConfig", Cause: errors.New("x")}, ExitConfig},
		{"anything else", errors.New("disk full"), ExitInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestOutcomeFor(t *testing.T) {
	tests := []struct {
		name    string
		f       facts
		outcome state.Outcome
		code    int
	}{
		{"clean", facts{}, state.OutcomeSuccess, ExitSuccess},
		{"skipped", facts{skipped: 1}, state.OutcomePartial, ExitPartial},
		{"optional failed", facts{optionalFailed: 2}, state.OutcomePartial, ExitPartial},
		{"anchor missing", facts{anchorMissing: 1}, state.OutcomePartial, ExitPartial},
		{"empty prose", facts{emptyProse: 1}, state.OutcomePartial, ExitPartial},
		{"verify gap", facts{verifyGap: true}, state.OutcomePartial, ExitPartial},
		{"required failed", facts{requiredFailed: 1, skipped: 3}, state.OutcomeFailed, ExitFailed},
		{"unmapped", facts{unmapped: 1}, state.OutcomeFailed, ExitFailed},
		{"patch fatal", facts{patchFatal: true, verifyGap: true}, state.OutcomeFailed, ExitFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, code := outcomeFor(tt.f)
			assert.Equal(t, tt.outcome, outcome)
			assert.Equal(t, tt.code, code)
		})
	}
}
