package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"nightly snapshot", "5 0 * * *", false},
		{"every five minutes", "*/5 * * * *", false},
		{"sunday midnight", "0 0 * * 0", false},
		{"list and range", "0,30 9-17 * * 1-5", false},
		{"too few fields", "5 0 * *", true},
		{"minute out of range", "61 0 * * *", true},
		{"bad step", "*/0 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCronExpression(tt.expr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCronExpression_Next(t *testing.T) {
	ce, err := ParseCronExpression("5 0 * * *")
	require.NoError(t, err)

	// Just before the daily slot fires the same day.
	after := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 5, 0, 0, time.UTC), ce.Next(after))

	// Just after the slot rolls over to the next day.
	after = time.Date(2025, 6, 10, 0, 5, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 11, 0, 5, 0, 0, time.UTC), ce.Next(after))
}

func TestIntervalSchedule_Next(t *testing.T) {
	s := NewIntervalSchedule(time.Hour)

	after := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, after.Add(time.Hour), s.Next(after))
}
