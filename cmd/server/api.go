package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"fairlaunch/internal/domain"
	"fairlaunch/internal/observability"
)

// Endpoints:
// - POST   /tokens                 - register a token curve
// - GET    /tokens                 - list curve states
// - GET    /tokens/{id}            - curve state
// - DELETE /tokens/{id}            - retire a token
// - GET    /tokens/{id}/quote      - simulate a trade (?direction=buy&amount=10)
// - GET    /tokens/{id}/status     - graduation status
// - POST   /tokens/{id}/graduate   - trigger graduation of a READY token
// - GET    /tokens/{id}/volume     - volume buckets (?interval=1m&since=1h)
// - POST   /trades                 - execute a trade attempt
// - PUT    /users/{id}/tier        - set a user's verification tier
// - GET    /ws                     - event stream
// - GET    /metrics, GET /health
func (a *app) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/tokens", a.createToken).Methods("POST")
	router.HandleFunc("/tokens", a.listTokens).Methods("GET")
	router.HandleFunc("/tokens/{id}", a.getToken).Methods("GET")
	router.HandleFunc("/tokens/{id}", a.retireToken).Methods("DELETE")
	router.HandleFunc("/tokens/{id}/quote", a.quote).Methods("GET")
	router.HandleFunc("/tokens/{id}/status", a.status).Methods("GET")
	router.HandleFunc("/tokens/{id}/graduate", a.graduate).Methods("POST")
	router.HandleFunc("/tokens/{id}/volume", a.volume).Methods("GET")
	router.HandleFunc("/trades", a.trade).Methods("POST")
	router.HandleFunc("/users/{id}/tier", a.setTier).Methods("PUT")

	router.Handle("/ws", a.hub)
	router.Handle("/metrics", observability.Handler())
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")

	return router
}

// ErrorResponse is the body of every non-trade error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// CreateTokenRequest registers a token. Omitted params use the configured defaults.
type CreateTokenRequest struct {
	TokenID        string           `json:"token_id"`
	InitialPrice   *decimal.Decimal `json:"initial_price,omitempty"`
	PriceIncrement *decimal.Decimal `json:"price_increment,omitempty"`
	MaxPrice       *decimal.Decimal `json:"max_price,omitempty"`
}

// TokenResponse is a curve state.
type TokenResponse struct {
	TokenID        string          `json:"token_id"`
	InitialPrice   decimal.Decimal `json:"initial_price"`
	PriceIncrement decimal.Decimal `json:"price_increment"`
	MaxPrice       decimal.Decimal `json:"max_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	TotalSupply    decimal.Decimal `json:"total_supply"`
	TotalRaised    decimal.Decimal `json:"total_raised"`
	Graduated      bool            `json:"graduated"`
	TradeCount     int64           `json:"trade_count"`
	LastTradeTime  *time.Time      `json:"last_trade_time,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TradeRequest is a trade attempt. Tier is optional.
type TradeRequest struct {
	UserID    string          `json:"user_id"`
	TokenID   string          `json:"token_id"`
	Direction string          `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Tier      string          `json:"tier,omitempty"`
}

// TradeResponse mirrors domain.TradeResult.
type TradeResponse struct {
	Success          bool             `json:"success"`
	TradeID          string           `json:"trade_id,omitempty"`
	TokensOrProceeds *decimal.Decimal `json:"tokens_or_proceeds,omitempty"`
	NewPrice         *decimal.Decimal `json:"new_price,omitempty"`
	RiskScore        int              `json:"risk_score"`
	RiskBucket       string           `json:"risk_bucket,omitempty"`
	Reasons          []string         `json:"reasons,omitempty"`
	ErrorKind        string           `json:"error_kind,omitempty"`
	Message          string           `json:"message,omitempty"`
	Graduation       string           `json:"graduation_phase,omitempty"`
}

// QuoteResponse is a simulated trade.
type QuoteResponse struct {
	TokenID          string          `json:"token_id"`
	Direction        string          `json:"direction"`
	Amount           decimal.Decimal `json:"amount"`
	TokensOrProceeds decimal.Decimal `json:"tokens_or_proceeds"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	NewPrice         decimal.Decimal `json:"new_price"`
	PriceImpactPct   decimal.Decimal `json:"price_impact_pct"`
}

// StatusResponse is a graduation status. ETA is omitted when unknown.
type StatusResponse struct {
	TokenID            string          `json:"token_id"`
	Phase              string          `json:"phase"`
	ProgressPercentage decimal.Decimal `json:"progress_percentage"`
	IsGraduated        bool            `json:"is_graduated"`
	TotalRaised        decimal.Decimal `json:"total_raised"`
	Threshold          decimal.Decimal `json:"threshold"`
	ETASeconds         *float64        `json:"eta_seconds,omitempty"`
}

// GraduationResponse is a completed graduation.
type GraduationResponse struct {
	GraduationID string          `json:"graduation_id"`
	TokenID      string          `json:"token_id"`
	PoolRef      string          `json:"pool_ref"`
	QuoteAmount  decimal.Decimal `json:"quote_amount"`
	TokenAmount  decimal.Decimal `json:"token_amount"`
	TotalRaised  decimal.Decimal `json:"total_raised"`
	TotalSupply  decimal.Decimal `json:"total_supply"`
	GraduatedAt  time.Time       `json:"graduated_at"`
}

// VolumeResponse is one analytics bucket.
type VolumeResponse struct {
	BucketStart time.Time       `json:"bucket_start"`
	BuyVolume   decimal.Decimal `json:"buy_volume"`
	SellVolume  decimal.Decimal `json:"sell_volume"`
	TradeCount  int64           `json:"trade_count"`
	OpenPrice   decimal.Decimal `json:"open_price"`
	ClosePrice  decimal.Decimal `json:"close_price"`
}

// SetTierRequest assigns a verification tier.
type SetTierRequest struct {
	Tier string `json:"tier"`
}

func (a *app) createToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	params := a.cfg.Curve.DefaultParams.Params()
	if req.InitialPrice != nil {
		params.InitialPrice = *req.InitialPrice
	}
	if req.PriceIncrement != nil {
		params.PriceIncrement = *req.PriceIncrement
	}
	if req.MaxPrice != nil {
		params.MaxPrice = *req.MaxPrice
	}

	st, err := a.coord.Register(r.Context(), req.TokenID, params)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, tokenResponse(st))
}

func (a *app) listTokens(w http.ResponseWriter, r *http.Request) {
	ids := a.engine.Tokens()
	out := make([]TokenResponse, 0, len(ids))
	for _, id := range ids {
		st, err := a.engine.State(id)
		if err != nil {
			continue // retired concurrently
		}
		out = append(out, tokenResponse(st))
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (a *app) getToken(w http.ResponseWriter, r *http.Request) {
	st, err := a.engine.State(mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tokenResponse(st))
}

func (a *app) retireToken(w http.ResponseWriter, r *http.Request) {
	if err := a.coord.Retire(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondWithDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) quote(w http.ResponseWriter, r *http.Request) {
	dir := domain.Direction(r.URL.Query().Get("direction"))
	if dir == "" {
		dir = domain.DirectionBuy
	}
	amount, err := domain.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	q, err := a.coord.Quote(mux.Vars(r)["id"], dir, amount)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, QuoteResponse{
		TokenID:          q.TokenID,
		Direction:        string(q.Direction),
		Amount:           q.Amount,
		TokensOrProceeds: q.TokensOrProceeds,
		CurrentPrice:     q.CurrentPrice,
		NewPrice:         q.NewPrice,
		PriceImpactPct:   q.PriceImpact,
	})
}

func (a *app) status(w http.ResponseWriter, r *http.Request) {
	st, err := a.coord.Status(mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	resp := StatusResponse{
		TokenID:            st.TokenID,
		Phase:              string(st.Phase),
		ProgressPercentage: st.ProgressPercentage,
		IsGraduated:        st.IsGraduated,
		TotalRaised:        st.TotalRaised,
		Threshold:          st.Threshold,
	}
	if st.EstimatedTimeToGraduation != nil {
		secs := st.EstimatedTimeToGraduation.Seconds()
		resp.ETASeconds = &secs
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (a *app) graduate(w http.ResponseWriter, r *http.Request) {
	res, err := a.coord.Graduate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, GraduationResponse{
		GraduationID: res.GraduationID,
		TokenID:      res.TokenID,
		PoolRef:      res.PoolRef,
		QuoteAmount:  res.QuoteAmount,
		TokenAmount:  res.TokenAmount,
		TotalRaised:  res.TotalRaised,
		TotalSupply:  res.TotalSupply,
		GraduatedAt:  res.GraduatedAt,
	})
}

func (a *app) volume(w http.ResponseWriter, r *http.Request) {
	if a.stores.eventStore == nil {
		respondWithError(w, http.StatusNotImplemented, "trade analytics disabled", "")
		return
	}

	interval, err := durationParam(r, "interval", time.Minute)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid interval", err.Error())
		return
	}
	since, err := durationParam(r, "since", time.Hour)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid since", err.Error())
		return
	}

	end := time.Now().UTC()
	buckets, err := a.stores.eventStore.VolumeByInterval(r.Context(), mux.Vars(r)["id"], interval, end.Add(-since), end)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "volume query failed", err.Error())
		return
	}

	out := make([]VolumeResponse, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, VolumeResponse{
			BucketStart: b.BucketStart,
			BuyVolume:   b.BuyVolume,
			SellVolume:  b.SellVolume,
			TradeCount:  b.TradeCount,
			OpenPrice:   b.OpenPrice,
			ClosePrice:  b.ClosePrice,
		})
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (a *app) trade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	res := a.coord.Execute(r.Context(), domain.TradeAttempt{
		UserID:    req.UserID,
		TokenID:   req.TokenID,
		Direction: domain.Direction(req.Direction),
		Amount:    req.Amount,
		Tier:      domain.VerificationTier(req.Tier),
	})
	respondWithJSON(w, tradeStatus(res), tradeResponse(res))
}

func (a *app) setTier(w http.ResponseWriter, r *http.Request) {
	var req SetTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := a.identity.Set(mux.Vars(r)["id"], domain.VerificationTier(req.Tier)); err != nil {
		respondWithDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// tradeStatus maps a trade outcome to an HTTP status. Every outcome carries
// the full result body.
func tradeStatus(res domain.TradeResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.ErrorKind {
	case domain.KindInvalidAmount, domain.KindInvalidDirection, domain.KindInvalidTier:
		return http.StatusBadRequest
	case domain.KindTokenNotFound:
		return http.StatusNotFound
	case domain.KindCollaboratorTimeout, domain.KindCollaboratorFailure:
		return http.StatusServiceUnavailable
	case domain.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func tradeResponse(res domain.TradeResult) TradeResponse {
	out := TradeResponse{
		Success:    res.Success,
		TradeID:    res.TradeID,
		RiskScore:  res.RiskScore,
		RiskBucket: string(res.RiskBucket),
		ErrorKind:  string(res.ErrorKind),
		Message:    res.Message,
		Graduation: string(res.Graduation),
	}
	if res.Success {
		out.TokensOrProceeds = &res.TokensOrProceeds
		out.NewPrice = &res.NewPrice
	}
	for _, tag := range res.Reasons {
		out.Reasons = append(out.Reasons, string(tag))
	}
	return out
}

func tokenResponse(st *domain.BondingCurveState) TokenResponse {
	out := TokenResponse{
		TokenID:        st.TokenID,
		InitialPrice:   st.Params.InitialPrice,
		PriceIncrement: st.Params.PriceIncrement,
		MaxPrice:       st.Params.MaxPrice,
		CurrentPrice:   st.CurrentPrice,
		TotalSupply:    st.TotalSupply,
		TotalRaised:    st.TotalRaised,
		Graduated:      st.Graduated,
		TradeCount:     st.TradeCount,
		CreatedAt:      st.CreatedAt,
	}
	if !st.LastTradeTime.IsZero() {
		t := st.LastTradeTime
		out.LastTradeTime = &t
	}
	return out
}

func durationParam(r *http.Request, name string, def time.Duration) (time.Duration, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

// respondWithDomainError maps engine sentinel errors to HTTP statuses.
func respondWithDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrTokenExists):
		code = http.StatusConflict
		kind = "token_exists"
	case errors.Is(err, domain.ErrInvalidParams):
		code = http.StatusBadRequest
		kind = "invalid_params"
	case errors.Is(err, domain.ErrNotReady), errors.Is(err, domain.ErrAlreadyGraduated), errors.Is(err, domain.ErrSellDisabled):
		code = http.StatusConflict
	case kind == domain.KindInvalidAmount, kind == domain.KindInvalidDirection, kind == domain.KindInvalidTier:
		code = http.StatusBadRequest
	case kind == domain.KindTokenNotFound:
		code = http.StatusNotFound
	case kind == domain.KindCollaboratorTimeout, kind == domain.KindCollaboratorFailure:
		code = http.StatusServiceUnavailable
	}
	respondWithError(w, code, string(kind), err.Error())
}

func respondWithError(w http.ResponseWriter, code int, message string, details string) {
	respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Details: details,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
