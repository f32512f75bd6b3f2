package ceremony

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// maxWireBytes caps how much a single peer message may occupy in the
// buffers.
const maxWireBytes = 1 << 21

// Report is the terminal outcome of a ceremony, with blamed parties mapped
// back to their identities. Result is nil on failure. Err is only set for
// engine-internal errors, never for protocol failures.
type Report struct {
	CeremonyID ID
	Result     interface{}
	Blamed     []PartyID
	Reason     FailureReason
	Err        error
}

// Failed reports whether the ceremony ended without a result.
func (r Report) Failed() bool {
	return r.Result == nil
}

// Request authorizes a ceremony: the initial stage to run and where to
// deliver the outcome.
type Request struct {
	InitialStage Stage
	Mapping      *PartyIdxMapping
	Results      chan<- Report
}

type inboundMsg struct {
	sender PartyID
	data   []byte
}

// Runner drives one ceremony: it buffers messages that arrive before the
// start request, delays messages for the following stage, extends the stage
// deadline on every transition, and finalizes stages on completion or
// timeout. All state is owned by the Run goroutine.
type Runner struct {
	id     ID
	cfg    Config
	logger zerolog.Logger

	isInitialStage func(stage string) bool

	requests chan Request
	inbound  chan inboundMsg

	// set once the start request arrives
	stage   Stage
	mapping *PartyIdxMapping
	results chan<- Report

	// one buffered message per sender until the request arrives
	unauthorised map[PartyID]Raw

	// messages for the stage right after the current one
	delayed []delayedMsg
}

type delayedMsg struct {
	sender  PartyIdx
	stage   string
	payload Raw
}

// NewRunner creates a runner for a ceremony that may not have been requested
// locally yet.
func NewRunner(id ID, cfg Config, isInitialStage func(string) bool,
	logger zerolog.Logger) *Runner {

	return &Runner{
		id:             id,
		cfg:            cfg,
		logger:         logger.With().Uint64("ceremony_id", uint64(id)).Logger(),
		isInitialStage: isInitialStage,
		requests:       make(chan Request, 1),
		inbound:        make(chan inboundMsg, 128),
		unauthorised:   make(map[PartyID]Raw),
	}
}

// Deliver hands an inbound peer message to the runner. It drops the message
// if the runner's queue is full rather than block the router.
func (r *Runner) Deliver(sender PartyID, data []byte) {
	select {
	case r.inbound <- inboundMsg{sender: sender, data: data}:
	default:
		r.logger.Warn().Str("sender", string(sender)).Msg("inbound queue full, dropping message")
	}
}

// Start authorizes the ceremony. It must be called at most once.
func (r *Runner) Start(req Request) {
	r.requests <- req
}

// Run executes the ceremony until it terminates, times out unauthorised, or
// the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	timer := time.NewTimer(r.cfg.UnauthorisedTimeout)
	defer timer.Stop()

	deadline := time.Now().Add(r.cfg.UnauthorisedTimeout)

	resetTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(time.Until(deadline))
	}

	for {
		select {
		case req := <-r.requests:
			r.mapping = req.Mapping
			r.results = req.Results
			r.stage = req.InitialStage

			err := r.stage.Init()
			if err != nil {
				r.report(Report{CeremonyID: r.id, Err: err})
				return
			}

			r.logger.Info().Str("stage", r.stage.Name()).Msg("ceremony started")

			deadline = time.Now().Add(r.cfg.StageTimeout)
			resetTimer()

			if r.replayUnauthorised() {
				if r.finalize(&deadline, resetTimer) {
					return
				}
			}

		case msg := <-r.inbound:
			if r.processInbound(msg) {
				if r.finalize(&deadline, resetTimer) {
					return
				}
			}

		case <-timer.C:
			if r.stage == nil {
				r.logger.Debug().Msg("expiring unauthorised ceremony")
				r.report(Report{CeremonyID: r.id})
				return
			}

			r.logger.Warn().
				Str("stage", r.stage.Name()).
				Interface("awaited", r.stage.AwaitedParties()).
				Msg("stage timed out")

			if r.finalize(&deadline, resetTimer) {
				return
			}

		case <-ctx.Done():
			if z, ok := r.stage.(Zeroizer); ok {
				z.Zeroize()
			}

			return
		}
	}
}

// processInbound ingests one message and reports whether the current stage
// became complete.
func (r *Runner) processInbound(msg inboundMsg) bool {
	if len(msg.data) > maxWireBytes {
		r.logger.Warn().Str("sender", string(msg.sender)).Msg("oversized message dropped")
		return false
	}

	wire, err := DecodeWire(msg.data)
	if err != nil {
		r.logger.Debug().Err(err).Str("sender", string(msg.sender)).Msg("unreadable message")
		return false
	}

	if r.stage == nil {
		// Before the start request only initial-stage data is worth
		// keeping, one message per sender.
		if r.isInitialStage(wire.Stage) {
			if _, found := r.unauthorised[msg.sender]; !found {
				r.unauthorised[msg.sender] = wire.Payload
			}
		}

		return false
	}

	sender, found := r.mapping.Idx(msg.sender)
	if !found {
		r.logger.Debug().Str("sender", string(msg.sender)).Msg("message from non-participant")
		return false
	}

	switch {
	case wire.Stage == r.stage.Name():
		return r.stage.ProcessMessage(sender, wire.Payload)

	case r.stage.ShouldDelay(wire.Stage):
		r.delayed = append(r.delayed, delayedMsg{
			sender:  sender,
			stage:   wire.Stage,
			payload: wire.Payload,
		})

		return false

	default:
		r.logger.Debug().
			Str("sender", string(msg.sender)).
			Str("stage", wire.Stage).
			Str("current", r.stage.Name()).
			Msg("ignoring message for wrong stage")

		return false
	}
}

// replayUnauthorised feeds the messages buffered before the start request
// into the initial stage.
func (r *Runner) replayUnauthorised() bool {
	complete := false

	for sender, payload := range r.unauthorised {
		idx, found := r.mapping.Idx(sender)
		if !found {
			continue
		}

		if r.stage.ProcessMessage(idx, payload) {
			complete = true
		}
	}

	r.unauthorised = nil

	return complete
}

// finalize resolves the current stage and advances the ceremony. It returns
// true when the ceremony terminated.
func (r *Runner) finalize(deadline *time.Time, resetTimer func()) bool {
	for {
		outcome := r.stage.Finalize()

		if outcome.Terminal != nil {
			r.reportOutcome(*outcome.Terminal)
			return true
		}

		r.stage = outcome.Next

		// The deadline is extended, not reset, so a slow ceremony
		// cannot outlive its total budget by trickling messages.
		*deadline = deadline.Add(r.cfg.StageTimeout)
		resetTimer()

		err := r.stage.Init()
		if err != nil {
			r.report(Report{CeremonyID: r.id, Err: err})
			return true
		}

		r.logger.Debug().Str("stage", r.stage.Name()).Msg("advancing to next stage")

		if !r.replayDelayed() {
			return false
		}
	}
}

// replayDelayed feeds buffered next-stage messages into the stage that just
// started. It reports whether the stage became complete.
func (r *Runner) replayDelayed() bool {
	pending := r.delayed
	r.delayed = nil

	complete := false

	for _, msg := range pending {
		if msg.stage != r.stage.Name() {
			// Kept for a stage we did not advance to, drop it.
			continue
		}

		if r.stage.ProcessMessage(msg.sender, msg.payload) {
			complete = true
		}
	}

	return complete
}

func (r *Runner) reportOutcome(outcome Outcome) {
	report := Report{
		CeremonyID: r.id,
		Result:     outcome.Result,
		Reason:     outcome.Reason,
	}

	if outcome.Failed() {
		report.Blamed = r.mapping.IDsOf(outcome.Blamed)

		r.logger.Warn().
			Str("reason", outcome.Reason.String()).
			Interface("blamed", report.Blamed).
			Msg("ceremony failed")
	} else {
		r.logger.Info().Msg("ceremony succeeded")
	}

	r.report(report)
}

func (r *Runner) report(report Report) {
	if r.results != nil {
		r.results <- report
	}
}
