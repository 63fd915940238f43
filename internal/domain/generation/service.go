package generation

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bannerforge/bannerforge-api/internal/domain/asset"
	"github.com/bannerforge/bannerforge-api/internal/domain/credit"
	"github.com/bannerforge/bannerforge-api/internal/domain/planner"
	"github.com/bannerforge/bannerforge-api/internal/domain/ratelimit"
	"github.com/bannerforge/bannerforge-api/internal/domain/safety"
	"github.com/bannerforge/bannerforge-api/internal/pkg/logger"
	"github.com/bannerforge/bannerforge-api/internal/pkg/metrics"
	"github.com/bannerforge/bannerforge-api/internal/pkg/validator"
)

const (
	refundAttempts = 3
	refundBackoff  = 100 * time.Millisecond
)

// Admitter decides whether a request may proceed.
type Admitter interface {
	Admit(ctx context.Context, subject ratelimit.Subject) (ratelimit.Decision, error)
}

// SafetyChecker classifies a prompt.
type SafetyChecker interface {
	Classify(ctx context.Context, text string) (*safety.Verdict, error)
}

// Designer turns a brief into a design plan.
type Designer interface {
	Plan(ctx context.Context, brief planner.Brief) (*planner.Plan, error)
}

// AssetSource always yields a background.
type AssetSource interface {
	Acquire(ctx context.Context, spec asset.Spec) asset.Result
}

// Sink stores successful generations.
type Sink interface {
	Insert(ctx context.Context, record *Record) error
}

// Reader reads stored generations.
type Reader interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Record, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
}

// Deps are the collaborators of the pipeline. Maintenance, Sink, Records,
// Alerter, Observer and Metrics may be nil.
type Deps struct {
	Maintenance Switch
	Limiter     Admitter
	Safety      SafetyChecker
	Ledger      credit.Service
	Planner     Designer
	Assets      AssetSource
	Sink        Sink
	Records     Reader
	Alerter     Alerter
	Observer    Observer
	Metrics     *metrics.Metrics
}

// Timeouts bound each stage. Pipeline bounds the work after the charge;
// Refund gets its own budget so a pipeline that ran out of time can still
// return the credit.
type Timeouts struct {
	Safety   time.Duration
	Planner  time.Duration
	Persist  time.Duration
	Pipeline time.Duration
	Refund   time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Safety <= 0 {
		t.Safety = 5 * time.Second
	}
	if t.Planner <= 0 {
		t.Planner = 30 * time.Second
	}
	if t.Persist <= 0 {
		t.Persist = 5 * time.Second
	}
	if t.Pipeline <= 0 {
		t.Pipeline = 2 * time.Minute
	}
	if t.Refund <= 0 {
		t.Refund = 10 * time.Second
	}
	return t
}

// Service runs the metered generation pipeline.
type Service struct {
	deps     Deps
	timeouts Timeouts
	now      func() time.Time
	inflight sync.WaitGroup
}

func NewService(deps Deps, timeouts Timeouts) *Service {
	if deps.Alerter == nil {
		deps.Alerter = NewAlerter(nil)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Default()
	}
	return &Service{deps: deps, timeouts: timeouts.withDefaults(), now: time.Now}
}

// Wait blocks until background persistence has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// Generate validates, admits, screens and charges the request, then produces
// a design. Any failure after the charge refunds it before returning.
func (s *Service) Generate(ctx context.Context, id Identity, req Request) (*Result, error) {
	start := s.now()
	genID := uuid.New()
	ctx = logger.WithFields(ctx, map[string]string{"generation_id": genID.String()})
	log := logger.FromContext(ctx)

	ev := Event{GenerationID: genID, UserID: id.UserID}
	tr := NewTracker(func(from, to State) {
		if s.deps.Observer == nil {
			return
		}
		e := ev
		e.From, e.State, e.At = from, to, s.now()
		s.deps.Observer.Observe(e)
	})
	fail := func(err *Error) (*Result, error) {
		ev.Error = err.category
		s.advance(ctx, tr, StateFailed)
		s.deps.Metrics.Generation(string(err.category))
		return nil, err
	}

	if s.deps.Maintenance != nil && s.deps.Maintenance.Enabled(ctx) {
		return fail(errMaintenance())
	}
	if id.UserID == uuid.Nil {
		return fail(errUnauthenticated())
	}

	req.normalize()
	if fields := validator.Validate(&req); fields != nil {
		return fail(errValidation(fields))
	}
	width, height, err := req.Canvas()
	if err != nil {
		return fail(errValidation(map[string]string{"width": err.Error()}))
	}

	decision, err := s.deps.Limiter.Admit(ctx, ratelimit.Subject{
		UserID: id.UserID.String(),
		IP:     id.IP,
		Device: id.Device,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Admission check errored, admitting")
	} else if !decision.Allowed {
		return fail(errAdmissionDenied(decision.Limit, decision.RetryAfter))
	}
	s.advance(ctx, tr, StateAdmitted)

	sctx, cancel := context.WithTimeout(ctx, s.timeouts.Safety)
	verdict, err := s.deps.Safety.Classify(sctx, req.Prompt)
	cancel()
	if err != nil {
		return fail(errUnavailable("Content check is unavailable, try again shortly", err))
	}
	if !verdict.Safe {
		return fail(errContentRejected(verdict.Reason, verdict.Categories))
	}
	s.advance(ctx, tr, StateSafetyChecked)

	// From the charge on, the caller going away must not leave a charge
	// without either a result or a refund.
	pctx, cancelPipeline := context.WithTimeout(context.WithoutCancel(ctx), s.timeouts.Pipeline)
	defer cancelPipeline()

	charge, err := s.deps.Ledger.Deduct(pctx, id.UserID, id.Tier, "generation "+genID.String())
	if err != nil {
		var insufficient *credit.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			return fail(errInsufficientCredit(insufficient.Remaining, insufficient.Limit, insufficient.ResetAt, s.now(), err))
		}
		return fail(errUnavailable("Credit service is unavailable, try again shortly", err))
	}
	s.advance(ctx, tr, StateCharged)
	log.Debug().Str("transaction_id", charge.TransactionID.String()).Int("remaining", charge.NewBalance).Msg("Credit charged")

	brief := planner.Brief{
		Prompt:      req.Prompt,
		Platform:    req.Platform,
		Width:       width,
		Height:      height,
		BrandColors: req.BrandColors,
	}
	planCtx, cancel := context.WithTimeout(pctx, s.timeouts.Planner)
	plan, err := s.deps.Planner.Plan(planCtx, brief)
	cancel()
	if err != nil {
		ev.Error = CategoryPlanningFailed
		s.refund(ctx, tr, id.UserID, charge.TransactionID, "design generation failed")
		s.deps.Metrics.Generation(string(CategoryPlanningFailed))
		return nil, errPlanningFailed(err)
	}
	s.advance(ctx, tr, StatePlanned)

	res := s.deps.Assets.Acquire(pctx, asset.Spec{
		Query:  plan.ImageQuery,
		Prompt: plan.ImagePrompt,
		Width:  width,
		Height: height,
		Palette: asset.Palette{
			From:   plan.Palette.Background,
			To:     plan.Palette.Primary,
			Accent: plan.Palette.Accent,
		},
		Seed:           seedFor(genID),
		ForceSynthetic: req.ForceSynthetic,
	})
	if err := res.Validate(); err != nil {
		ev.Error = CategoryAssetFailed
		s.refund(ctx, tr, id.UserID, charge.TransactionID, "background acquisition failed")
		s.deps.Metrics.Generation(string(CategoryAssetFailed))
		return nil, errAssetFailed(err)
	}
	ev.Provider = res.Provider
	s.advance(ctx, tr, StateAssetAcquired)

	elapsed := s.now().Sub(start)
	record := &Record{
		ID:            genID,
		UserID:        id.UserID,
		TransactionID: charge.TransactionID,
		Prompt:        req.Prompt,
		Platform:      req.Platform,
		Width:         width,
		Height:        height,
		Plan:          PlanJSON(*plan),
		AssetURL:      res.URL,
		AssetProvider: res.Provider,
		Attribution:   Attribution{res.Attribution},
		ElapsedMS:     elapsed.Milliseconds(),
		CreatedAt:     s.now(),
	}
	s.persist(ctx, record)
	s.advance(ctx, tr, StatePersisted)
	s.advance(ctx, tr, StateSucceeded)
	s.deps.Metrics.Generation(string(StateSucceeded))

	log.Info().
		Str("provider", res.Provider).
		Int64("elapsed_ms", elapsed.Milliseconds()).
		Int("credits_remaining", charge.NewBalance).
		Msg("Generation completed")
	if ctx.Err() != nil {
		log.Debug().Msg("Caller went away, result will be discarded")
	}

	return &Result{
		ID:               genID,
		Platform:         req.Platform,
		Width:            width,
		Height:           height,
		Plan:             plan,
		Asset:            res,
		CreditsRemaining: charge.NewBalance,
		ElapsedMS:        elapsed.Milliseconds(),
		Admission:        decision,
	}, nil
}

// refund reverses a charge, retrying briefly. It runs detached from ctx with
// its own deadline. If every attempt fails the charge is reported to operators.
func (s *Service) refund(ctx context.Context, tr *Tracker, userID, txID uuid.UUID, reason string) {
	s.advance(ctx, tr, StateRefunding)
	defer s.advance(ctx, tr, StateFailed)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeouts.Refund)
	defer cancel()

	var err error
	attempts := 0
retry:
	for attempts < refundAttempts {
		attempts++
		err = s.deps.Ledger.Refund(ctx, userID, txID, reason)
		if err == nil || errors.Is(err, credit.ErrTransactionNotFound) || attempts == refundAttempts {
			break
		}
		select {
		case <-ctx.Done():
			break retry
		case <-time.After(refundBackoff * time.Duration(attempts)):
		}
	}

	log := logger.FromContext(ctx)
	if err == nil {
		log.Info().Str("transaction_id", txID.String()).Str("reason", reason).Msg("Credit refunded")
		s.deps.Metrics.Refund(metrics.ResultRefunded)
		return
	}
	if errors.Is(err, credit.ErrTransactionNotFound) {
		log.Error().Err(err).Str("transaction_id", txID.String()).Msg("Refund target missing")
		s.deps.Metrics.Refund(metrics.ResultNotFound)
		return
	}

	s.deps.Metrics.Refund(metrics.ResultFailed)
	s.deps.Metrics.StuckCharge()
	s.deps.Alerter.StuckCharge(ctx, StuckCharge{
		UserID:        userID,
		TransactionID: txID,
		Reason:        reason,
		Error:         err.Error(),
		RequestID:     logger.RequestID(ctx),
		At:            s.now(),
		Attempts:      attempts,
	})
}

// persist stores the record in the background. Failures are logged only;
// the user already has their result.
func (s *Service) persist(ctx context.Context, record *Record) {
	if s.deps.Sink == nil {
		return
	}

	s.inflight.Add(1)
	go func(ctx context.Context) {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(ctx, s.timeouts.Persist)
		defer cancel()

		if err := s.deps.Sink.Insert(ctx, record); err != nil {
			logger.FromContext(ctx).Error().
				Err(err).
				Str("error_code", string(CategoryPersistenceFailed)).
				Str("transaction_id", record.TransactionID.String()).
				Msg("Failed to persist generation")
		}
	}(context.WithoutCancel(ctx))
}

func (s *Service) advance(ctx context.Context, tr *Tracker, next State) {
	if err := tr.Move(next); err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("Generation state machine violated")
	}
}

// History returns the caller's stored generations, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Record, error) {
	if s.deps.Records == nil {
		return []*Record{}, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.deps.Records.ListByUser(ctx, userID, limit, offset)
}

// Get returns one generation owned by userID.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Record, error) {
	if s.deps.Records == nil {
		return nil, ErrNotFound
	}
	rec, err := s.deps.Records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, ErrNotFound
	}
	return rec, nil
}

// seedFor derives a stable non-negative seed from the generation id.
func seedFor(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]) >> 1)
}
