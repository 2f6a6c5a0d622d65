package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/idhash"
	"fairlaunch/internal/notify"
	"fairlaunch/internal/observability"
	"fairlaunch/internal/risk"
)

// Execute runs one trade attempt. Business outcomes, rejections included,
// are reported in the result; Execute never panics on bad input.
func (c *Coordinator) Execute(ctx context.Context, attempt domain.TradeAttempt) domain.TradeResult {
	start := time.Now()
	defer func() { observability.RecordTradeLatency(time.Since(start).Seconds()) }()

	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = c.now()
	}
	attempt.Timestamp = attempt.Timestamp.UTC()

	// Phase 1: validate before any state read
	if err := attempt.Validate(); err != nil {
		return c.fail(err)
	}

	// Phase 2: tier
	if attempt.Tier == "" {
		tier, err := c.resolveTier(ctx, attempt.UserID)
		if err != nil {
			return c.fail(err)
		}
		attempt.Tier = tier
	}

	unlock := c.locks.Lock(attempt.TokenID)
	defer unlock()

	// Phase 3: price and assess at the exact pre-trade state
	st, err := c.curves.State(attempt.TokenID)
	if err != nil {
		return c.fail(err)
	}
	rep, err := c.reputationSnapshot(ctx, attempt.UserID)
	if err != nil {
		return c.fail(err)
	}
	quote, quoteErr := c.curves.Quote(attempt.TokenID, attempt.Direction, attempt.Amount)
	value := attempt.Amount
	if quoteErr == nil {
		value = quoteValue(attempt.Direction, attempt.Amount, quote.TokensOrProceeds)
	}

	assessment := c.scorer.Assess(risk.Input{
		Attempt:           attempt,
		ExecutionPrice:    st.CurrentPrice,
		TradeValue:        value,
		TokenAveragePrice: c.activity.Get(attempt.TokenID).AveragePrice(attempt.Timestamp),
		Session:           c.users.Get(attempt.UserID),
		Reputation:        rep,
	})
	observability.RecordRiskScore(assessment.Score)

	if !assessment.Allowed {
		res := riskResult(assessment)
		res.ErrorKind = domain.KindRiskRejected
		res.Message = risk.Explain(assessment)
		return c.reject(ctx, attempt, assessment, res)
	}

	// Phase 4: curve refusals and tier cap
	if quoteErr != nil {
		return c.failAssessed(ctx, attempt, assessment, quoteErr)
	}
	if limit, ok := c.tierLimit(attempt.Tier); ok && value.GreaterThan(limit) {
		res := riskResult(assessment)
		res.ErrorKind = domain.KindTierLimitExceeded
		res.Message = fmt.Sprintf("trade value %s exceeds %s tier limit %s", value, attempt.Tier, limit)
		return c.reject(ctx, attempt, assessment, res)
	}

	// Phase 5: apply
	fill, err := c.curves.Apply(ctx, attempt.TokenID, attempt.Direction, attempt.Amount, attempt.Timestamp)
	if err != nil {
		return c.failAssessed(ctx, attempt, assessment, err)
	}

	// Phase 6: record
	flagged := assessment.Bucket != domain.RiskLow
	fact := domain.TradeFact{
		Amount:    quoteValue(attempt.Direction, attempt.Amount, fill.TokensOrProceeds),
		Price:     fill.PriceBefore,
		Direction: attempt.Direction,
		Timestamp: attempt.Timestamp,
		Flagged:   flagged,
	}
	c.users.Record(attempt.UserID, fact)
	c.activity.Record(attempt.TokenID, fact)

	rec := &domain.TradeRecord{
		TradeID:          idhash.ComputeTradeID(attempt.TokenID, attempt.UserID, fill.Sequence, attempt.Timestamp.UnixMilli()),
		TokenID:          attempt.TokenID,
		UserID:           attempt.UserID,
		Sequence:         fill.Sequence,
		Direction:        attempt.Direction,
		Tier:             attempt.Tier,
		Amount:           attempt.Amount,
		TokensOrProceeds: fill.TokensOrProceeds,
		PriceBefore:      fill.PriceBefore,
		PriceAfter:       fill.NewPrice,
		RiskScore:        assessment.Score,
		Timestamp:        attempt.Timestamp,
	}
	c.persist(ctx, rec)

	res := riskResult(assessment)
	res.Success = true
	res.TradeID = rec.TradeID
	res.TokensOrProceeds = fill.TokensOrProceeds
	res.NewPrice = fill.NewPrice
	c.audit(ctx, attempt, assessment, res)

	// Phase 7: graduation
	res.Graduation = c.advanceGraduation(ctx, attempt.TokenID)

	// Phase 8: notify
	c.notifier.Notify(ctx, notify.NewEvent(domain.EventTradeExecuted, attempt.TokenID, attempt.UserID, attempt.Timestamp, map[string]any{
		"trade_id":           rec.TradeID,
		"direction":          attempt.Direction,
		"amount":             attempt.Amount.String(),
		"tokens_or_proceeds": fill.TokensOrProceeds.String(),
		"new_price":          fill.NewPrice.String(),
		"risk_score":         assessment.Score,
	}))

	volume, _ := fact.Amount.Float64()
	observability.RecordTradeExecuted(string(attempt.Direction), volume)
	price, _ := fill.NewPrice.Float64()
	observability.UpdateCurvePrice(attempt.TokenID, price)

	c.log("executed %s %s on %s by %s: got %s, price %s -> %s", attempt.Direction, attempt.Amount, attempt.TokenID, attempt.UserID,
		fill.TokensOrProceeds, fill.PriceBefore, fill.NewPrice)
	return res
}

// advanceGraduation re-evaluates the token and, with AutoGraduate, graduates it
// inline. The caller holds the token lock. Trigger failures leave the token READY
// for the watcher or a manual trigger.
func (c *Coordinator) advanceGraduation(ctx context.Context, tokenID string) domain.GraduationPhase {
	if c.monitor == nil {
		return ""
	}
	phase, err := c.monitor.Evaluate(ctx, tokenID)
	if err != nil {
		c.logger.Printf("[coordinator] WARN: evaluate graduation for %s: %v", tokenID, err)
		return ""
	}
	if phase != domain.PhaseReady || !c.autoGraduate {
		return phase
	}
	if _, err := c.monitor.TriggerGraduation(ctx, tokenID); err != nil {
		c.logger.Printf("[coordinator] WARN: auto graduation of %s failed: %v", tokenID, err)
		return domain.PhaseReady
	}
	return domain.PhaseGraduated
}

func (c *Coordinator) resolveTier(ctx context.Context, userID string) (domain.VerificationTier, error) {
	if c.identity == nil {
		return domain.TierDevice, nil
	}
	var tier domain.VerificationTier
	err := c.callCollaborator(ctx, "identity", func(ctx context.Context) error {
		var err error
		tier, err = c.identity.VerificationTier(ctx, userID)
		return err
	})
	if err != nil {
		return "", err
	}
	if !tier.IsValid() {
		return "", fmt.Errorf("identity returned %w: %q", domain.ErrInvalidTier, tier)
	}
	return tier, nil
}

// reputationSnapshot reads both reputation figures. Without a store the
// user is neutral: exactly at the floor with no flagged history.
func (c *Coordinator) reputationSnapshot(ctx context.Context, userID string) (risk.ReputationSnapshot, error) {
	if c.reputation == nil {
		return risk.ReputationSnapshot{Score: c.scorer.Config().ReputationFloor}, nil
	}
	var snap risk.ReputationSnapshot
	err := c.callCollaborator(ctx, "reputation", func(ctx context.Context) error {
		score, err := c.reputation.Score(ctx, userID)
		if err != nil {
			return err
		}
		recent, err := c.reputation.RecentSuspiciousCount(ctx, userID)
		if err != nil {
			return err
		}
		snap = risk.ReputationSnapshot{Score: score, RecentSuspicious: recent}
		return nil
	})
	return snap, err
}

func (c *Coordinator) tierLimit(tier domain.VerificationTier) (decimal.Decimal, bool) {
	if c.limits == nil {
		return decimal.Zero, false
	}
	return c.limits.MaxTradeAmount(tier)
}

// persist writes the trade log and the analytics event. Neither can undo an
// applied trade, so failures are logged only.
func (c *Coordinator) persist(ctx context.Context, rec *domain.TradeRecord) {
	if c.tradeStore != nil {
		if err := c.tradeStore.Insert(ctx, rec); err != nil {
			c.logger.Printf("[coordinator] ERROR: persist trade %s: %v", rec.TradeID, err)
		}
	}
	if c.eventStore != nil {
		if err := c.eventStore.InsertBulk(ctx, []*domain.TradeRecord{rec}); err != nil {
			c.logger.Printf("[coordinator] WARN: analytics insert for %s: %v", rec.TradeID, err)
		}
	}
}

func (c *Coordinator) audit(ctx context.Context, attempt domain.TradeAttempt, a domain.RiskAssessment, res domain.TradeResult) {
	if c.assessmentStore == nil {
		return
	}
	rec := &domain.AssessmentRecord{
		UserID:    attempt.UserID,
		TokenID:   attempt.TokenID,
		Direction: attempt.Direction,
		Amount:    attempt.Amount,
		Score:     a.Score,
		Allowed:   a.Allowed,
		Reasons:   a.Reasons,
		Executed:  res.Success,
		ErrorKind: res.ErrorKind,
		Timestamp: attempt.Timestamp,
	}
	if err := c.assessmentStore.Insert(ctx, rec); err != nil {
		c.logger.Printf("[coordinator] WARN: audit assessment for %s: %v", attempt.UserID, err)
	}
}

// reject records and announces a refusal that happened before the curve was touched.
func (c *Coordinator) reject(ctx context.Context, attempt domain.TradeAttempt, a domain.RiskAssessment, res domain.TradeResult) domain.TradeResult {
	c.audit(ctx, attempt, a, res)
	c.notifier.Notify(ctx, notify.NewEvent(domain.EventTradeRejected, attempt.TokenID, attempt.UserID, attempt.Timestamp, map[string]any{
		"direction":  attempt.Direction,
		"amount":     attempt.Amount.String(),
		"risk_score": a.Score,
		"reasons":    a.Reasons,
		"error_kind": res.ErrorKind,
	}))
	observability.RecordTradeRejected(string(res.ErrorKind))
	c.log("rejected %s %s on %s by %s: %s", attempt.Direction, attempt.Amount, attempt.TokenID, attempt.UserID, res.Message)
	return res
}

// fail builds the result of an attempt that never reached assessment.
func (c *Coordinator) fail(err error) domain.TradeResult {
	kind := domain.KindOf(err)
	observability.RecordTradeRejected(string(kind))
	c.log("attempt failed: %v", err)
	return domain.TradeResult{ErrorKind: kind, Message: err.Error()}
}

// failAssessed builds the result of an allowed attempt the curve refused.
func (c *Coordinator) failAssessed(ctx context.Context, attempt domain.TradeAttempt, a domain.RiskAssessment, err error) domain.TradeResult {
	res := riskResult(a)
	res.ErrorKind = domain.KindOf(err)
	res.Message = err.Error()
	c.audit(ctx, attempt, a, res)
	observability.RecordTradeRejected(string(res.ErrorKind))
	c.log("curve refused %s on %s: %v", attempt.Direction, attempt.TokenID, err)
	return res
}

func riskResult(a domain.RiskAssessment) domain.TradeResult {
	return domain.TradeResult{
		RiskScore:  a.Score,
		RiskBucket: a.Bucket,
		Reasons:    a.Reasons,
	}
}

// quoteValue is a trade's size in quote currency: the amount paid for buys,
// the proceeds for sells.
func quoteValue(dir domain.Direction, amount, tokensOrProceeds decimal.Decimal) decimal.Decimal {
	if dir == domain.DirectionSell {
		return tokensOrProceeds
	}
	return amount
}
