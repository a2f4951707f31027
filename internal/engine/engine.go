// Package engine wires the Market Scanner, Playbook Evaluators, Risk Engine,
// Policy Guardrails, Execution Router, Position Manager, Kill-Switch, and
// Reserve Manager into one per-user tick pipeline (spec.md §4.9 "Scheduler /
// Engine Root").
//
// Grounded on the teacher's single-product tick loop (main.go's runLive,
// step.go's deterministic EXIT→OPEN ordering) generalized to one goroutine
// per user started by Start, with the "at most one tick in flight, a stop
// request lets the in-flight tick finish" invariant (spec.md §4.9)
// implemented by a per-actor sync.Mutex.TryLock in runLoop instead of the
// teacher's single global loop. golang.org/x/sync/errgroup is used only by
// RunGroup.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"spotengine/internal/alert"
	"spotengine/internal/domain"
	"spotengine/internal/exchange"
	"spotengine/internal/execution"
	"spotengine/internal/guardrail"
	"spotengine/internal/indicators"
	"spotengine/internal/killswitch"
	"spotengine/internal/metrics"
	"spotengine/internal/money"
	"spotengine/internal/playbook"
	"spotengine/internal/position"
	"spotengine/internal/reserve"
	"spotengine/internal/risk"
	"spotengine/internal/scanner"
	"spotengine/internal/store"
)

// Engine owns the per-user actors: start/stop is idempotent, and each
// user's tick runs in its own goroutine (spec.md §5 "single-writer
// discipline").
type Engine struct {
	store   *store.Store
	scanner *scanner.Scanner
	router  *execution.Router
	filters *exchange.FilterCache
	client  exchange.Client
	alerts  *alert.Service
	log     zerolog.Logger

	mu     sync.Mutex
	actors map[string]*userActor
}

// New builds an Engine over the shared infrastructure every user's actor
// uses (spec.md §9 "Global singletons": exchange client, filter cache).
func New(st *store.Store, sc *scanner.Scanner, router *execution.Router, filters *exchange.FilterCache, client exchange.Client, alerts *alert.Service, log zerolog.Logger) *Engine {
	return &Engine{
		store:   st,
		scanner: sc,
		router:  router,
		filters: filters,
		client:  client,
		alerts:  alerts,
		log:     log,
		actors:  make(map[string]*userActor),
	}
}

// userActor is one user's single-writer trading loop. cfg and state are
// owned exclusively by the goroutine running this actor's ticks.
type userActor struct {
	userID string
	cfg    domain.BotConfig
	state  *domain.BotState

	running bool
	cancel  context.CancelFunc
}

// Start begins ticking userID at its configured scanner refresh interval.
// Starting an already-running user is a no-op (spec.md §4.9 "Engine start is
// idempotent").
func (e *Engine) Start(ctx context.Context, userID string, cfg domain.BotConfig, state *domain.BotState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.actors[userID]; ok && a.running {
		return
	}

	actorCtx, cancel := context.WithCancel(ctx)
	a := &userActor{userID: userID, cfg: cfg, state: state, running: true, cancel: cancel}
	e.actors[userID] = a

	go e.runLoop(actorCtx, a)
}

// Stop prevents future ticks for userID; any in-flight tick runs to
// completion (spec.md §4.9).
func (e *Engine) Stop(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.actors[userID]; ok {
		a.cancel()
		a.running = false
	}
}

func (e *Engine) runLoop(ctx context.Context, a *userActor) {
	interval := a.cfg.Scanner.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var inFlight sync.Mutex
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !inFlight.TryLock() {
				e.log.Debug().Str("user", a.userID).Msg("engine: previous tick still running, dropping this one")
				continue
			}
			func() {
				defer inFlight.Unlock()
				e.Tick(context.WithoutCancel(ctx), a)
			}()
		}
	}
}

// Tick runs exactly one pipeline cycle for a user (spec.md §2 "Control flow
// of one tick"): rollover, equity recompute, position updates, kill-switch
// check, scan, playbook evaluation, and per-candidate sizing/gating/
// execution/persistence.
func (e *Engine) Tick(ctx context.Context, a *userActor) {
	tickID := uuid.NewString()
	now := time.Now()
	metrics.IncTick(a.userID)

	state := a.state
	cfg := a.cfg

	rolledSession := state.RollSession(now)
	state.RollWeek(now)
	if rolledSession {
		_ = e.store.ResetPlaybookBCounters(ctx, a.userID)
	}
	state.RecomputeCurrentR(cfg.Risk.RPct)

	if killswitch.MaybeAutoResumeDaily(&a.cfg.BotStatus, rolledSession) {
		_ = e.store.SaveBotConfig(ctx, a.cfg)
	}
	cfg = a.cfg

	open, err := e.store.LoadOpenPositions(ctx, a.userID)
	if err != nil {
		e.log.Warn().Err(err).Str("user", a.userID).Msg("engine: failed to load open positions")
		open = nil
	}

	e.updatePositions(ctx, a, cfg, state, open, now)

	if kind, halt := risk.KillSwitchTrigger(cfg.Risk, state); halt && cfg.BotStatus == domain.StatusActive {
		e.triggerKillSwitch(ctx, a, kind, "risk engine trigger predicate")
		return
	}
	if cfg.BotStatus != domain.StatusActive {
		return
	}

	result := e.scanner.Scan(ctx, cfg.Scanner, state.LastPairSignalTimes)
	for _, skip := range result.Skips {
		e.recordSignal(ctx, a.userID, skip.Symbol, "", domain.ActionSkipped, skip.Reason, skip.Gate, nil, now)
	}

	for symbol, snap := range result.Snapshots {
		cand := playbook.Evaluate(cfg, state, snap)
		if cand == nil {
			continue
		}
		if cand.Symbol == "" {
			cand.Symbol = symbol
		}
		e.evaluateCandidate(ctx, a, cfg, state, open, tickID, cand, now)
	}

	state.LastScanTime = now
	_ = e.store.SaveBotState(ctx, state)
	if f, ok := state.CurrentEquity.Float64(); ok {
		metrics.SetEquityUSD(a.userID, f)
	}
}

func (e *Engine) evaluateCandidate(ctx context.Context, a *userActor, cfg domain.BotConfig, state *domain.BotState, open []*domain.Position, tickID string, cand *playbook.CandidateSignal, now time.Time) {
	sized, err := risk.Size(cand.EntryPrice, cand.StopPrice, state.CurrentR)
	if err != nil {
		e.recordSignal(ctx, a.userID, cand.Symbol, cand.Playbook, domain.ActionSkipped, err.Error(), "sizing", &cand.EntryPrice, now)
		return
	}

	var proposedR float64
	if state.CurrentR.Sign() > 0 {
		riskUSD := cand.EntryPrice.Sub(cand.StopPrice).Abs().Mul(sized.Quantity)
		proposedR = riskUSD.Div(state.CurrentR).InexactFloat64()
	}

	filter, err := e.filters.Get(ctx, cand.Symbol)
	if err != nil {
		e.recordSignal(ctx, a.userID, cand.Symbol, cand.Playbook, domain.ActionSkipped, err.Error(), "exchange_filters", &cand.EntryPrice, now)
		return
	}

	decision := guardrail.Evaluate(guardrail.Input{
		Action:           domain.OrderBuy,
		Side:             domain.SideLong,
		ProposedR:        proposedR,
		BotStatus:        cfg.BotStatus,
		Filter:           filter,
		Quantity:         sized.Quantity,
		Price:            cand.EntryPrice,
		SignalPrice:      cand.EntryPrice,
		CurrentPrice:     cand.EntryPrice,
		IsClosing:        false,
		Risk:             cfg.Risk,
		State:            state,
		OpenPositions:    open,
		CandidateSymbol:  cand.Symbol,
		Equity:           state.CurrentEquity,
		CurrentR:         state.CurrentR,
		ProposedNotional: sized.Notional,
	})
	if !decision.Approved {
		metrics.IncGateRejection(decision.Gate)
		e.recordSignal(ctx, a.userID, cand.Symbol, cand.Playbook, domain.ActionSkipped, decision.Reason, decision.Gate, &cand.EntryPrice, now)
		return
	}

	quantity := sized.Quantity
	if decision.ScaleFactor != 1.0 && decision.ScaleFactor > 0 {
		quantity = quantity.Mul(money.FromFloat(decision.ScaleFactor))
	}

	rdec := reserve.Check(cfg.Reserve, state.CurrentEquity, sumOpenNotional(open), quantity.Mul(cand.EntryPrice))
	if !rdec.Approved {
		e.recordSignal(ctx, a.userID, cand.Symbol, cand.Playbook, domain.ActionSkipped, rdec.Reason, "reserve", &cand.EntryPrice, now)
		return
	}

	res := e.router.Submit(ctx, execution.Request{
		UserID:       a.userID,
		TickID:       tickID,
		Symbol:       cand.Symbol,
		Purpose:      execution.PurposeOpen,
		Side:         domain.OrderBuy,
		Quantity:     quantity,
		Filter:       filter,
		ReferenceMid: cand.EntryPrice,
	})
	if !res.Success {
		e.recordSignal(ctx, a.userID, cand.Symbol, cand.Playbook, domain.ActionSkipped, errString(res.Error), "execution", &cand.EntryPrice, now)
		return
	}

	metrics.IncFill("BUY")
	metrics.ObserveSlippageBps("BUY", res.SlippageBps)
	metrics.IncSignalExecuted(string(cand.Playbook))

	pos := &domain.Position{
		ID:         uuid.NewString(),
		UserID:     a.userID,
		Symbol:     cand.Symbol,
		Side:       domain.SideLong,
		Playbook:   cand.Playbook,
		EntryPrice:   res.FillPrice,
		Quantity:     res.FilledQuantity,
		StopPrice:    cand.StopPrice,
		Status:       domain.PositionOpen,
		OpenedAt:     now,
		CurrentPrice: res.FillPrice,
		FeesPaid:     res.Fees,
	}
	_ = e.store.SavePosition(ctx, pos)
	state.LastPairSignalTimes[cand.Symbol] = now
	_ = e.store.SetPairSignalTime(ctx, a.userID, cand.Symbol, now)
	if cand.Playbook == domain.PlaybookB {
		state.PlaybookBCounters[cand.Symbol]++
		_ = e.store.IncrementPlaybookBCounter(ctx, a.userID, cand.Symbol)
	}

	e.recordSignal(ctx, a.userID, cand.Symbol, cand.Playbook, domain.ActionExecuted, cand.Reason, "", &res.FillPrice, now)
}

// updatePositions runs the Position Manager over every open position,
// closing or adjusting per its state machine (spec.md §4.6 "Update
// currentPrice from the latest tick" then "after price refresh"). A symbol
// whose ticker fetch fails keeps its last known mark for this tick and is
// retried next tick, rather than evaluating stop/trail rules off a stale or
// (for a just-opened position) zero price.
func (e *Engine) updatePositions(ctx context.Context, a *userActor, cfg domain.BotConfig, state *domain.BotState, open []*domain.Position, now time.Time) {
	for _, p := range open {
		if err := e.refreshPositionPrice(ctx, p); err != nil {
			e.log.Warn().Err(err).Str("user", a.userID).Str("symbol", p.Symbol).Msg("engine: failed to refresh position price, skipping this tick")
			continue
		}
		p.RecomputeUnrealized(p.CurrentPrice, state.CurrentR)
		decision := position.Evaluate(cfg, p, p.CurrentPrice, state.CurrentR, 0, now)
		switch decision.Action {
		case position.ActionMoveStop:
			p.StopPrice = decision.NewStop
			_ = e.store.SavePosition(ctx, p)
		case position.ActionScaleOut:
			e.scaleOutPosition(ctx, a, state, p, decision, now)
		case position.ActionClose:
			e.closePosition(ctx, a, state, p, decision.CloseReason, now)
		}
	}
}

// refreshPositionPrice pulls the latest mark for p.Symbol so the Position
// Manager's stop/trail/target rules evaluate against live data instead of
// whatever CurrentPrice happened to be saved last (spec.md §4.6 "Common
// rules").
func (e *Engine) refreshPositionPrice(ctx context.Context, p *domain.Position) error {
	ticker, err := e.client.GetTicker(ctx, p.Symbol)
	if err != nil {
		return err
	}
	p.CurrentPrice = ticker.LastPrice
	return nil
}

// scaleOutPosition submits the reducing order a scale-out decision calls
// for, reduces the position's remaining quantity on fill, marks the
// playbook's scale stage done, and arms the ATR trail when the decision
// enables one (spec.md §4.6 "submit a reducing order for scale_pct × qty;
// on fill, reduce qty and enable ATR trail").
func (e *Engine) scaleOutPosition(ctx context.Context, a *userActor, state *domain.BotState, p *domain.Position, decision position.Decision, now time.Time) {
	filter, err := e.filters.Get(ctx, p.Symbol)
	if err != nil {
		e.log.Warn().Err(err).Str("user", a.userID).Str("symbol", p.Symbol).Msg("engine: scale-out filter lookup failed")
		return
	}
	scaleQty := p.Quantity.Mul(money.FromFloat(decision.ScalePct))
	closeSide := domain.OrderSell
	if p.Side == domain.SideShort {
		closeSide = domain.OrderBuy
	}
	res := e.router.Submit(ctx, execution.Request{
		UserID:       a.userID,
		TickID:       uuid.NewString(),
		Symbol:       p.Symbol,
		Purpose:      execution.PurposeScale,
		Side:         closeSide,
		Quantity:     scaleQty,
		Filter:       filter,
		ReferenceMid: p.CurrentPrice,
	})
	if !res.Success {
		e.log.Warn().Str("user", a.userID).Str("symbol", p.Symbol).Msg("engine: scale-out order failed")
		return
	}

	legPnl := res.FillPrice.Sub(p.EntryPrice).Mul(res.FilledQuantity).Mul(money.FromFloat(float64(p.SideSign())))
	p.PartialRealizedPnl = p.PartialRealizedPnl.Add(legPnl)
	p.Quantity = p.Quantity.Sub(res.FilledQuantity)
	p.FeesPaid = p.FeesPaid.Add(res.Fees)
	if !p.Scaled1 {
		p.Scaled1 = true
	} else {
		p.Scaled2 = true
	}
	if decision.EnableTrailATR {
		dist := money.FromFloat(decision.TrailATRMult * e.currentATR(ctx, p.Symbol))
		p.TrailingStopDistance = &dist
	}
	_ = e.store.SavePosition(ctx, p)

	metrics.IncFill(string(closeSide))
	metrics.ObserveSlippageBps(string(closeSide), res.SlippageBps)
}

// currentATR fetches recent candles and returns the latest ATR(14), used to
// size the trailing-stop distance a scale-out decision arms (spec.md §4.6
// "trail_atr_mult × ATR"). Returns 0 on any fetch failure, which disarms the
// trail rather than arming one at a nonsensical distance.
func (e *Engine) currentATR(ctx context.Context, symbol string) float64 {
	candles, err := e.client.GetKlines(ctx, symbol, "1m", 20)
	if err != nil || len(candles) == 0 {
		return 0
	}
	values := indicators.ATR(candles, 14)
	return values[len(values)-1]
}

func (e *Engine) closePosition(ctx context.Context, a *userActor, state *domain.BotState, p *domain.Position, reason domain.CloseReason, now time.Time) {
	res := e.router.Submit(ctx, execution.Request{
		UserID:       a.userID,
		TickID:       uuid.NewString(),
		Symbol:       p.Symbol,
		Purpose:      execution.PurposeClose,
		Side:         domain.OrderSell,
		Quantity:     p.Quantity,
		ReferenceMid: p.CurrentPrice,
	})
	if !res.Success {
		e.log.Warn().Str("user", a.userID).Str("symbol", p.Symbol).Msg("engine: close order failed")
		return
	}

	// The final leg's own realized PnL/fees (CloseRealization only knows
	// about the remaining quantity still on the position); any quantity
	// already scaled out earlier this position's life booked its price
	// realization into PartialRealizedPnl, folded in here so the Trade row
	// reflects the whole position, not just its last leg (spec.md §4.6
	// "Closure procedure ... compute realized PnL (including all cumulative
	// fees)").
	totalFees := p.FeesPaid.Add(res.Fees)
	legPnl, _ := position.CloseRealization(p, res.FillPrice, totalFees, state.CurrentR)
	pnl := p.PartialRealizedPnl.Add(legPnl)
	var r float64
	if state.CurrentR.Sign() > 0 {
		r = pnl.Div(state.CurrentR).InexactFloat64()
	}

	closedAt := now
	p.Status = domain.PositionClosed
	p.ClosedAt = &closedAt
	p.RealizedPnl = &pnl
	p.RealizedR = &r
	p.CloseReason = &reason
	_ = e.store.SavePosition(ctx, p)

	state.DailyPnLUSD = state.DailyPnLUSD.Add(pnl)
	state.DailyPnLR += r
	state.WeeklyPnLUSD = state.WeeklyPnLUSD.Add(pnl)
	state.WeeklyPnLR += r

	trade := &domain.Trade{
		ID:         uuid.NewString(),
		UserID:     a.userID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Playbook:   p.Playbook,
		EntryPrice: p.EntryPrice,
		ExitPrice:  res.FillPrice,
		Quantity:   p.Quantity,
		PnlUSD:     pnl,
		PnlR:       r,
		Fees:       totalFees,
		Outcome:    position.Outcome(pnl),
		Date:       now,
	}
	_ = e.store.InsertTrade(ctx, trade)
}

func (e *Engine) triggerKillSwitch(ctx context.Context, a *userActor, kind domain.KillSwitchKind, reason string) {
	open, _ := e.store.LoadOpenPositions(ctx, a.userID)
	metrics.IncKillSwitchTrip(string(kind))
	killswitch.Execute(ctx, a.state, &a.cfg.HaltMetadata, &a.cfg.BotStatus, open, kind, reason, "", func(ctx context.Context, p *domain.Position, closeReason domain.CloseReason) error {
		e.closePosition(ctx, a, a.state, p, closeReason, time.Now().UTC())
		if p.Status != domain.PositionClosed {
			return fmt.Errorf("close of position %s failed", p.ID)
		}
		return nil
	}, func(level domain.AlertLevel, alertType, message string) {
		e.alerts.Emit(a.userID, level, alertType, message)
	}, time.Now().UTC())
	_ = e.store.SaveBotConfig(ctx, a.cfg)
}

func (e *Engine) recordSignal(ctx context.Context, userID, symbol string, pb domain.Playbook, action domain.SignalAction, reason, gate string, entry *money.Decimal, now time.Time) {
	sig := &domain.Signal{
		ID:         uuid.NewString(),
		UserID:     userID,
		Symbol:     symbol,
		Playbook:   pb,
		Action:     action,
		Reason:     reason,
		Gate:       gate,
		EntryPrice: entry,
		Timestamp:  now,
	}
	if err := e.store.InsertSignal(ctx, sig); err != nil {
		e.log.Warn().Err(err).Msg("engine: failed to persist signal")
	}
	if action == domain.ActionSkipped {
		metrics.IncSignalSkipped(gate)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func sumOpenNotional(positions []*domain.Position) money.Decimal {
	total := money.Zero
	for _, p := range positions {
		total = total.Add(p.Notional())
	}
	return total
}

// RunGroup runs f for every user in userIDs concurrently via errgroup, for
// one-off runs that don't need the continuous ticker loop (spec.md §4.9's
// per-user concurrency, without the scheduler). It returns the first error
// any f returns. Nothing in this repository calls it outside its test.
func RunGroup(ctx context.Context, userIDs []string, f func(ctx context.Context, userID string) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range userIDs {
		id := id
		g.Go(func() error {
			if err := f(ctx, id); err != nil {
				return fmt.Errorf("user %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
