// Package session implements the counseling session lifecycle: the
// open/closed state machine, turn and duration counters, and the
// overtime reminder policy.
package session

// ReminderConfig carries the overtime reminder tunables. Callers bound
// the values (duration 1-120 minutes, turns 1-200, interval 1-10).
type ReminderConfig struct {
	SuggestedDurationMinutes int
	SuggestedTurns           int
	ReminderIntervalTurns    int
}

// ShouldRemind decides whether this turn gets a wrap-up reminder.
//
// Both budgets must be exhausted before any reminder: the session has
// to be over the suggested duration and past the suggested turn count.
// After that, reminders fire on the 1st overtime turn and every
// interval turns thereafter, so the client is nudged periodically
// instead of on every message.
func ShouldRemind(activeDurationSeconds, turnCount int, cfg ReminderConfig) bool {
	if activeDurationSeconds <= cfg.SuggestedDurationMinutes*60 {
		return false
	}
	if turnCount <= cfg.SuggestedTurns {
		return false
	}
	overtimeTurns := turnCount - cfg.SuggestedTurns
	return overtimeTurns%cfg.ReminderIntervalTurns == 1
}
