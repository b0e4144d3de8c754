package session

import (
	"testing"
)

func TestShouldRemind(t *testing.T) {
	cfg := ReminderConfig{
		SuggestedDurationMinutes: 30,
		SuggestedTurns:           30,
		ReminderIntervalTurns:    3,
	}

	tests := []struct {
		name     string
		duration int
		turns    int
		want     bool
	}{
		{"both budgets under", 100, 5, false},
		{"duration over, turns at limit", 1801, 30, false},
		{"duration at limit, turns over", 1800, 31, false},
		{"first overtime turn", 1801, 31, true},
		{"second overtime turn", 1801, 32, false},
		{"third overtime turn", 1801, 33, false},
		{"interval repeats", 1801, 34, true},
		{"far overtime on cycle", 1801, 37, true},
		{"far overtime off cycle", 1801, 38, false},
		{"turns deep over but duration under", 1799, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldRemind(tt.duration, tt.turns, cfg)
			if got != tt.want {
				t.Errorf("ShouldRemind(%d, %d) = %v, want %v", tt.duration, tt.turns, got, tt.want)
			}
		})
	}
}

func TestShouldRemindSmallBudgets(t *testing.T) {
	cfg := ReminderConfig{
		SuggestedDurationMinutes: 1,
		SuggestedTurns:           2,
		ReminderIntervalTurns:    2,
	}

	// Overtime turns 1, 3, 5... are odd offsets from the budget.
	if !ShouldRemind(61, 3, cfg) {
		t.Error("Expected reminder on first overtime turn")
	}
	if ShouldRemind(61, 4, cfg) {
		t.Error("Expected no reminder on even overtime offset")
	}
	if !ShouldRemind(61, 5, cfg) {
		t.Error("Expected reminder on next cycle")
	}
}
