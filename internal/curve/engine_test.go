package curve

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/storage"
	"fairlaunch/internal/storage/memory"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func params() domain.CurveParams {
	return domain.CurveParams{
		InitialPrice:   dec("0.0001"),
		PriceIncrement: dec("0.000000001"),
		MaxPrice:       dec("0.01"),
	}
}

var sellsEnabled = Config{AllowSells: true}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e := New(Options{Config: cfg})
	_, err := e.Register(context.Background(), "tok", params(), t0)
	require.NoError(t, err)
	return e
}

func TestEngine_BuyPricesAlongCurve(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	ctx := context.Background()

	fill, err := e.Apply(ctx, "tok", domain.DirectionBuy, dec("10"), t0)
	require.NoError(t, err)

	assert.True(t, fill.TokensOrProceeds.Equal(dec("100000")), "tokens = 10 / 0.0001, got %s", fill.TokensOrProceeds)
	assert.True(t, fill.PriceBefore.Equal(dec("0.0001")))
	assert.True(t, fill.NewPrice.Equal(dec("0.0002")), "0.0001 + 100000 * 1e-9, got %s", fill.NewPrice)
	assert.Equal(t, int64(1), fill.Sequence)

	st, err := e.State("tok")
	require.NoError(t, err)
	assert.True(t, st.TotalSupply.Equal(dec("100000")))
	assert.True(t, st.TotalRaised.Equal(dec("10")))
	assert.True(t, st.LastTradeTime.Equal(t0))
	require.NoError(t, st.CheckInvariants())
}

func TestEngine_ClampsAtMaxPrice(t *testing.T) {
	e := New(Options{Config: DefaultConfig()})
	ctx := context.Background()
	_, err := e.Register(ctx, "tok", domain.CurveParams{
		InitialPrice:   dec("0.0001"),
		PriceIncrement: dec("0.000001"),
		MaxPrice:       dec("0.01"),
	}, t0)
	require.NoError(t, err)

	fill, err := e.Apply(ctx, "tok", domain.DirectionBuy, dec("10"), t0)
	require.NoError(t, err)

	assert.True(t, fill.TokensOrProceeds.Equal(dec("100000")))
	assert.True(t, fill.NewPrice.Equal(dec("0.01")), "0.1001 clamps to 0.01, got %s", fill.NewPrice)

	// Further buys stay at the cap.
	fill, err = e.Apply(ctx, "tok", domain.DirectionBuy, dec("1"), t0.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, fill.TokensOrProceeds.Equal(dec("100")))
	assert.True(t, fill.NewPrice.Equal(dec("0.01")))

	st, _ := e.State("tok")
	require.NoError(t, st.CheckInvariants())
}

func TestEngine_Monotonicity(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	ctx := context.Background()

	prev, _ := e.State("tok")
	for i, amount := range []string{"0.5", "3", "0.0001", "12", "7.25"} {
		_, err := e.Apply(ctx, "tok", domain.DirectionBuy, dec(amount), t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)

		cur, _ := e.State("tok")
		assert.True(t, cur.CurrentPrice.GreaterThanOrEqual(prev.CurrentPrice))
		assert.True(t, cur.TotalSupply.GreaterThan(prev.TotalSupply))
		assert.True(t, cur.TotalRaised.GreaterThan(prev.TotalRaised))
		assert.True(t, cur.CurrentPrice.LessThanOrEqual(cur.Params.MaxPrice))
		require.NoError(t, cur.CheckInvariants())
		prev = cur
	}
}

func TestEngine_QuoteDoesNotMutate(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	before, _ := e.State("tok")
	q, err := e.Quote("tok", domain.DirectionBuy, dec("10"))
	require.NoError(t, err)

	assert.True(t, q.TokensOrProceeds.Equal(dec("100000")))
	assert.True(t, q.NewPrice.Equal(dec("0.0002")))
	assert.True(t, q.PriceImpact.Equal(dec("100")), "price doubles, got %s", q.PriceImpact)

	after, _ := e.State("tok")
	assert.True(t, before.Equal(after))
}

func TestEngine_SellRoundTrip(t *testing.T) {
	e := newEngine(t, sellsEnabled)
	ctx := context.Background()

	buy, err := e.Apply(ctx, "tok", domain.DirectionBuy, dec("10"), t0)
	require.NoError(t, err)

	sell, err := e.Apply(ctx, "tok", domain.DirectionSell, buy.TokensOrProceeds, t0.Add(time.Second))
	require.NoError(t, err)

	assert.True(t, sell.NewPrice.Equal(dec("0.0001")), "price returns to pre-buy level, got %s", sell.NewPrice)
	assert.True(t, sell.TokensOrProceeds.Equal(dec("10")), "proceeds = 100000 * 0.0001, got %s", sell.TokensOrProceeds)

	st, _ := e.State("tok")
	assert.True(t, st.TotalSupply.IsZero())
	assert.True(t, st.TotalRaised.IsZero())
	assert.Equal(t, int64(2), st.TradeCount)
	require.NoError(t, st.CheckInvariants())
}

func TestEngine_ChunkedSellNeverPaysMore(t *testing.T) {
	ctx := context.Background()

	// Another holder buys first, then the seller buys at the raised price.
	setup := func() (*Engine, decimal.Decimal) {
		e := newEngine(t, sellsEnabled)
		_, err := e.Apply(ctx, "tok", domain.DirectionBuy, dec("10"), t0)
		require.NoError(t, err)
		fill, err := e.Apply(ctx, "tok", domain.DirectionBuy, dec("10"), t0.Add(time.Second))
		require.NoError(t, err)
		return e, fill.TokensOrProceeds
	}

	single, tokens := setup()
	one, err := single.Apply(ctx, "tok", domain.DirectionSell, tokens, t0.Add(2*time.Second))
	require.NoError(t, err)

	chunked, _ := setup()
	chunk := tokens.Div(decimal.NewFromInt(100))
	total := decimal.Zero
	for i := 0; i < 100; i++ {
		fill, err := chunked.Apply(ctx, "tok", domain.DirectionSell, chunk, t0.Add(2*time.Second))
		require.NoError(t, err)
		total = total.Add(fill.TokensOrProceeds)
	}

	assert.True(t, total.LessThanOrEqual(one.TokensOrProceeds), "chunked %s > single %s", total, one.TokensOrProceeds)
	assert.True(t, one.TokensOrProceeds.LessThanOrEqual(dec("10")), "seller cannot take more than they paid, got %s", one.TokensOrProceeds)

	a, _ := single.State("tok")
	b, _ := chunked.State("tok")
	assert.True(t, a.CurrentPrice.Equal(b.CurrentPrice))
	assert.True(t, a.TotalRaised.GreaterThanOrEqual(dec("10")), "first holder's funds stay in the curve, raised %s", a.TotalRaised)
	assert.True(t, b.TotalRaised.GreaterThanOrEqual(dec("10")), "first holder's funds stay in the curve, raised %s", b.TotalRaised)
}

func TestEngine_SellErrors(t *testing.T) {
	ctx := context.Background()

	e := newEngine(t, sellsEnabled)
	_, err := e.Apply(ctx, "tok", domain.DirectionSell, dec("1"), t0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount, "cannot sell more than supply")

	disabled := newEngine(t, DefaultConfig())
	_, err = disabled.Apply(ctx, "tok", domain.DirectionBuy, dec("1"), t0)
	require.NoError(t, err)
	_, err = disabled.Apply(ctx, "tok", domain.DirectionSell, dec("1"), t0)
	assert.ErrorIs(t, err, domain.ErrSellDisabled)
	_, err = disabled.Quote("tok", domain.DirectionSell, dec("1"))
	assert.ErrorIs(t, err, domain.ErrSellDisabled)
}

func TestEngine_InvalidInputs(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	ctx := context.Background()

	_, err := e.Apply(ctx, "tok", domain.DirectionBuy, decimal.Zero, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.Apply(ctx, "tok", domain.DirectionBuy, dec("-1"), t0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = e.Apply(ctx, "tok", "hold", dec("1"), t0)
	assert.ErrorIs(t, err, domain.ErrInvalidDirection)

	_, err = e.Apply(ctx, "missing", domain.DirectionBuy, dec("1"), t0)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	// Rounds to zero tokens at TokenScale.
	_, err = e.Apply(ctx, "tok", domain.DirectionBuy, dec("0.00000000000000000000001"), t0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	st, _ := e.State("tok")
	assert.Equal(t, int64(0), st.TradeCount, "failed applies leave no trace")
}

func TestEngine_GraduatedRejectsTrades(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	ctx := context.Background()

	_, err := e.Apply(ctx, "tok", domain.DirectionBuy, dec("5"), t0)
	require.NoError(t, err)
	require.NoError(t, e.MarkGraduated(ctx, "tok"))
	require.NoError(t, e.MarkGraduated(ctx, "tok"), "marking twice is a no-op")

	_, err = e.Apply(ctx, "tok", domain.DirectionBuy, dec("1"), t0)
	assert.ErrorIs(t, err, domain.ErrAlreadyGraduated)
	_, err = e.Quote("tok", domain.DirectionBuy, dec("1"))
	assert.ErrorIs(t, err, domain.ErrAlreadyGraduated)

	st, _ := e.State("tok")
	assert.True(t, st.Graduated)
}

func TestEngine_RegisterAndRetire(t *testing.T) {
	e := New(Options{})
	ctx := context.Background()

	_, err := e.Register(ctx, "a", params(), t0)
	require.NoError(t, err)
	_, err = e.Register(ctx, "b", params(), t0)
	require.NoError(t, err)

	_, err = e.Register(ctx, "a", params(), t0)
	assert.ErrorIs(t, err, domain.ErrTokenExists)

	bad := params()
	bad.MaxPrice = dec("0.00001")
	_, err = e.Register(ctx, "c", bad, t0)
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	assert.Equal(t, []string{"a", "b"}, e.Tokens())

	require.NoError(t, e.Retire(ctx, "a"))
	assert.ErrorIs(t, e.Retire(ctx, "a"), domain.ErrTokenNotFound)
	_, err = e.State("a")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	assert.Equal(t, []string{"b"}, e.Tokens())
}

func TestEngine_StateIsACopy(t *testing.T) {
	e := newEngine(t, DefaultConfig())

	st, _ := e.State("tok")
	st.CurrentPrice = dec("1")
	st.Graduated = true

	again, _ := e.State("tok")
	assert.True(t, again.CurrentPrice.Equal(dec("0.0001")))
	assert.False(t, again.Graduated)
}

func TestEngine_SnapshotsAndRestore(t *testing.T) {
	store := memory.NewCurveStateStore()
	ctx := context.Background()

	e := New(Options{Config: DefaultConfig(), Snapshotter: store})
	_, err := e.Register(ctx, "tok", params(), t0)
	require.NoError(t, err)
	_, err = e.Apply(ctx, "tok", domain.DirectionBuy, dec("10"), t0)
	require.NoError(t, err)

	saved, err := store.GetByTokenID(ctx, "tok")
	require.NoError(t, err)
	live, _ := e.State("tok")
	assert.True(t, saved.Equal(live))

	restored := New(Options{Config: DefaultConfig()})
	require.NoError(t, restored.Restore(saved))
	got, _ := restored.State("tok")
	assert.True(t, got.Equal(live))

	corrupt := saved.Clone()
	corrupt.TokenID = "other"
	corrupt.CurrentPrice = dec("0.005")
	assert.ErrorIs(t, restored.Restore(corrupt), domain.ErrCorruptState)

	require.NoError(t, e.Retire(ctx, "tok"))
	_, err = store.GetByTokenID(ctx, "tok")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReplay_Deterministic(t *testing.T) {
	steps := []Step{
		{domain.DirectionBuy, dec("10"), t0},
		{domain.DirectionBuy, dec("2.5"), t0.Add(time.Second)},
		{domain.DirectionSell, dec("1000"), t0.Add(2 * time.Second)},
		{domain.DirectionBuy, dec("0.333"), t0.Add(3 * time.Second)},
	}

	live := newEngine(t, sellsEnabled)
	for _, s := range steps {
		_, err := live.Apply(context.Background(), "tok", s.Direction, s.Amount, s.At)
		require.NoError(t, err)
	}
	want, _ := live.State("tok")

	for i := 0; i < 3; i++ {
		got, fills, err := Replay(sellsEnabled, "tok", params(), t0, steps)
		require.NoError(t, err)
		assert.Len(t, fills, len(steps))
		assert.True(t, got.Equal(want), "replay %d diverged: %+v vs %+v", i, got, want)
	}

	_, _, err := Replay(DefaultConfig(), "tok", params(), t0, steps)
	assert.ErrorIs(t, err, domain.ErrSellDisabled)
}

func TestEngine_ConcurrentBuysSerializePerToken(t *testing.T) {
	e := newEngine(t, DefaultConfig())
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := e.Apply(ctx, "tok", domain.DirectionBuy, dec("1"), t0.Add(time.Duration(i)*time.Millisecond)); err != nil {
				errs <- fmt.Errorf("worker %d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	st, _ := e.State("tok")
	assert.Equal(t, int64(workers), st.TradeCount)
	assert.True(t, st.TotalRaised.Equal(decimal.NewFromInt(workers)))
	require.NoError(t, st.CheckInvariants())
}
