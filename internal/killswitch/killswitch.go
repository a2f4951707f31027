// Package killswitch implements the flatten-all + bot-status transition
// (spec.md §4.7): enumerate every OPEN position, close it, set botStatus,
// record haltMetadata, and emit a CRITICAL alert. Resume semantics differ by
// kind and are enforced by the caller (the engine checks DAILY auto-resume
// on every tick; WEEKLY/STOPPED require an explicit operator call).
//
// Grounded on the teacher's emergency-stop/flatten path in trader.go
// (liquidate-all-then-halt on a hard stop condition) and the GlobalExposure-
// Guard release pattern in predator_engine.go (yohannesjx-sniperterminal).
package killswitch

import (
	"context"
	"errors"
	"time"

	"spotengine/internal/domain"
)

// Closer closes one open position for reason and returns an error if the
// closing order could not be submitted/filled. The engine supplies this,
// since closing requires the execution router and guardrail chain
// (isClosing=true) that this package does not itself depend on.
type Closer func(ctx context.Context, p *domain.Position, reason domain.CloseReason) error

// Alerter records a notification; the engine wires this to the alert
// service (spec.md §4.7 step 4 "Emit a CRITICAL alert").
type Alerter func(level domain.AlertLevel, alertType, message string)

// Execute runs the kill-switch procedure for kind against user's state
// (spec.md §4.7). open is the user's currently OPEN positions.
func Execute(ctx context.Context, state *domain.BotState, cfg *domain.HaltMetadata, status *domain.BotStatus, open []*domain.Position, kind domain.KillSwitchKind, reason string, justification string, close Closer, alert Alerter, now time.Time) int {
	flattened := 0
	for _, p := range open {
		if err := close(ctx, p, domain.CloseKillSwitch); err == nil {
			flattened++
		}
	}

	*status = statusFor(kind)
	*cfg = domain.HaltMetadata{
		Reason:             reason,
		Timestamp:          now,
		Justification:      justification,
		PositionsFlattened: flattened,
	}

	alert(domain.AlertCritical, string(kind), "kill-switch triggered: "+reason)
	return flattened
}

// statusFor maps a kill-switch kind onto the botStatus it sets (spec.md
// §4.7 step 2). CIRCUIT_BREAKER and MAX_DRAWDOWN are manual-equivalent
// stops: the spec names them as triggers but gives them no dedicated
// botStatus value, so they map to STOPPED like MANUAL.
func statusFor(kind domain.KillSwitchKind) domain.BotStatus {
	switch kind {
	case domain.KillDaily:
		return domain.StatusHaltedDaily
	case domain.KillWeekly:
		return domain.StatusHaltedWeekly
	default:
		return domain.StatusStopped
	}
}

// MaybeAutoResumeDaily implements HALTED_DAILY's auto-resume: the pipeline
// checks on every tick and performs the transition itself once
// sessionStartDate has rolled (spec.md §4.7 "Resume semantics").
func MaybeAutoResumeDaily(status *domain.BotStatus, rolledSession bool) bool {
	if *status == domain.StatusHaltedDaily && rolledSession {
		*status = domain.StatusActive
		return true
	}
	return false
}

// Resume performs an explicit operator resume for HALTED_WEEKLY or STOPPED,
// which never auto-resume (spec.md §4.7 "Resume semantics"). justification
// is required and recorded into haltMetadata for the audit trail.
func Resume(status *domain.BotStatus, cfg *domain.HaltMetadata, justification string, now time.Time) error {
	if *status != domain.StatusHaltedWeekly && *status != domain.StatusStopped {
		return nil
	}
	if justification == "" {
		return errors.New("killswitch: resume requires a justification")
	}
	cfg.Justification = justification
	cfg.Timestamp = now
	*status = domain.StatusActive
	return nil
}
