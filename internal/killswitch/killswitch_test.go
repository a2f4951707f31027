package killswitch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spotengine/internal/domain"
)

func TestExecuteClosesEveryOpenPositionAndHalts(t *testing.T) {
	state := &domain.BotState{}
	meta := &domain.HaltMetadata{}
	status := domain.StatusActive
	open := []*domain.Position{{ID: "p1"}, {ID: "p2"}}

	var closed []string
	var alerted []string
	closer := func(ctx context.Context, p *domain.Position, reason domain.CloseReason) error {
		require.Equal(t, domain.CloseKillSwitch, reason)
		closed = append(closed, p.ID)
		return nil
	}
	alerter := func(level domain.AlertLevel, alertType, message string) {
		require.Equal(t, domain.AlertCritical, level)
		alerted = append(alerted, alertType)
	}

	now := time.Now()
	flattened := Execute(context.Background(), state, meta, &status, open, domain.KillDaily, "daily stop breached", "", closer, alerter, now)

	require.Equal(t, 2, flattened)
	require.ElementsMatch(t, []string{"p1", "p2"}, closed)
	require.Equal(t, []string{"DAILY"}, alerted)
	require.Equal(t, domain.StatusHaltedDaily, status)
	require.Equal(t, "daily stop breached", meta.Reason)
	require.Equal(t, 2, meta.PositionsFlattened)
}

func TestExecuteCountsOnlySuccessfulCloses(t *testing.T) {
	state := &domain.BotState{}
	meta := &domain.HaltMetadata{}
	status := domain.StatusActive
	open := []*domain.Position{{ID: "p1"}, {ID: "p2"}}

	closer := func(ctx context.Context, p *domain.Position, reason domain.CloseReason) error {
		if p.ID == "p2" {
			return context.DeadlineExceeded
		}
		return nil
	}
	flattened := Execute(context.Background(), state, meta, &status, open, domain.KillWeekly, "weekly stop breached", "", closer, func(domain.AlertLevel, string, string) {}, time.Now())
	require.Equal(t, 1, flattened)
}

func TestStatusForMapsKindsToDistinctStatuses(t *testing.T) {
	require.Equal(t, domain.StatusHaltedDaily, statusFor(domain.KillDaily))
	require.Equal(t, domain.StatusHaltedWeekly, statusFor(domain.KillWeekly))
	require.Equal(t, domain.StatusStopped, statusFor(domain.KillCircuitBreaker))
	require.Equal(t, domain.StatusStopped, statusFor(domain.KillMaxDrawdown))
	require.Equal(t, domain.StatusStopped, statusFor(domain.KillManual))
}

func TestMaybeAutoResumeDailyOnlyFiresWhenHaltedAndRolled(t *testing.T) {
	status := domain.StatusHaltedDaily
	require.False(t, MaybeAutoResumeDaily(&status, false))
	require.Equal(t, domain.StatusHaltedDaily, status)

	require.True(t, MaybeAutoResumeDaily(&status, true))
	require.Equal(t, domain.StatusActive, status)
}

func TestMaybeAutoResumeDailyIgnoresOtherStatuses(t *testing.T) {
	status := domain.StatusHaltedWeekly
	require.False(t, MaybeAutoResumeDaily(&status, true))
	require.Equal(t, domain.StatusHaltedWeekly, status)
}

func TestResumeTransitionsHaltedWeeklyToActive(t *testing.T) {
	status := domain.StatusHaltedWeekly
	meta := &domain.HaltMetadata{}
	now := time.Now()
	err := Resume(&status, meta, "operator reviewed and approved restart", now)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, status)
	require.Equal(t, "operator reviewed and approved restart", meta.Justification)
}

func TestResumeIsNoOpWhenNotHalted(t *testing.T) {
	status := domain.StatusActive
	meta := &domain.HaltMetadata{}
	err := Resume(&status, meta, "ignored", time.Now())
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, status)
	require.Empty(t, meta.Justification)
}
