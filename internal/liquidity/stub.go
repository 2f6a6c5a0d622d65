package liquidity

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fairlaunch/internal/domain"
)

// DefaultProgramID is the program the stub derives pool addresses under.
const DefaultProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

// Lock is one pool created by the stub.
type Lock struct {
	PoolRef     string
	TokenID     string
	QuoteAmount decimal.Decimal
	TokenAmount decimal.Decimal
	LockedAt    time.Time
}

// StubOptions configures a Stub.
type StubOptions struct {
	ProgramID string        // defaults to DefaultProgramID
	Latency   time.Duration // simulated call latency, honors ctx
	Logger    *log.Logger
	Verbose   bool
}

// Stub is an in-process Collaborator that derives pool addresses
// deterministically and remembers every lock. Repeated calls for the same
// token return the first pool without creating another.
type Stub struct {
	mu    sync.Mutex
	locks map[string]*Lock
	calls int

	programID string
	latency   time.Duration
	logger    *log.Logger
	verbose   bool
}

var _ Collaborator = (*Stub)(nil)

// NewStub creates a new stub collaborator.
func NewStub(opts StubOptions) *Stub {
	programID := opts.ProgramID
	if programID == "" {
		programID = DefaultProgramID
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Stub{
		locks:     make(map[string]*Lock),
		programID: programID,
		latency:   opts.Latency,
		logger:    logger,
		verbose:   opts.Verbose,
	}
}

// CreatePoolAndLock derives the token's pool address and records the lock.
func (s *Stub) CreatePoolAndLock(ctx context.Context, tokenID string, quoteAmount, tokenAmount decimal.Decimal) (string, error) {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", domain.ErrCollaboratorTimeout, ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if l, ok := s.locks[tokenID]; ok {
		s.log("pool for %s already exists: %s", tokenID, l.PoolRef)
		return l.PoolRef, nil
	}

	ref, err := DerivePoolAddress(s.programID, tokenID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCollaboratorFailure, err)
	}

	s.locks[tokenID] = &Lock{
		PoolRef:     ref,
		TokenID:     tokenID,
		QuoteAmount: quoteAmount,
		TokenAmount: tokenAmount,
		LockedAt:    time.Now().UTC(),
	}
	s.log("created pool %s for %s: quote=%s tokens=%s", ref, tokenID, quoteAmount, tokenAmount)
	return ref, nil
}

// Lock returns the lock recorded for a token.
func (s *Stub) Lock(tokenID string) (Lock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[tokenID]
	if !ok {
		return Lock{}, false
	}
	return *l, true
}

// Pools returns the number of distinct pools created.
func (s *Stub) Pools() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// Calls returns the number of CreatePoolAndLock calls that reached the stub.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Stub) log(format string, args ...interface{}) {
	if s.verbose {
		s.logger.Printf("[liquidity] "+format, args...)
	}
}
