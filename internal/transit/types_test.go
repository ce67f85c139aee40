package transit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlertIsActive(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	end := start.Add(time.Hour)

	tests := []struct {
		name string
		end  *time.Time
		now  time.Time
		want bool
	}{
		{"before start", &end, start.Add(-time.Second), false},
		{"at start", &end, start, true},
		{"inside window", &end, start.Add(30 * time.Minute), true},
		{"at end is exclusive", &end, end, false},
		{"after end", &end, end.Add(time.Second), false},
		{"open ended", nil, start.Add(1000 * time.Hour), true},
		{"open ended before start", nil, start.Add(-time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Alert{ID: "a", Start: start, End: tt.end}
			assert.Equal(t, tt.want, a.IsActive(tt.now))
		})
	}
}

func TestActiveAlerts(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	past := now.Add(-time.Minute)
	alerts := []Alert{
		{ID: "running", Start: now.Add(-time.Hour)},
		{ID: "over", Start: now.Add(-time.Hour), End: &past},
		{ID: "future", Start: now.Add(time.Hour)},
	}

	got := ActiveAlerts(alerts, now)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "running", got[0].ID)
	}
}

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, c.Valid(), "category %q", c)
	}
	assert.False(t, Category("").Valid())
	assert.False(t, Category("tram").Valid())
}
