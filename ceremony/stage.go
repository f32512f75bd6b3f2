package ceremony

// Outcome is the terminal report of a ceremony. Result is nil on failure, in
// which case Blamed and Reason name the offenders.
type Outcome struct {
	Result interface{}
	Blamed []PartyIdx
	Reason FailureReason
}

// Failed reports whether the ceremony ended in failure.
func (o Outcome) Failed() bool {
	return o.Result == nil
}

// StageOutcome is what finalizing a stage produces: either the next stage to
// run or a terminal outcome.
type StageOutcome struct {
	Next     Stage
	Terminal *Outcome
}

// NextStage advances to the given stage.
func NextStage(next Stage) StageOutcome {
	return StageOutcome{Next: next}
}

// Done finishes the ceremony with a success value.
func Done(result interface{}) StageOutcome {
	return StageOutcome{Terminal: &Outcome{Result: result}}
}

// Fail finishes the ceremony blaming the given parties.
func Fail(reason FailureReason, blamed []PartyIdx) StageOutcome {
	return StageOutcome{Terminal: &Outcome{Blamed: blamed, Reason: reason}}
}

// Zeroizer is implemented by stages and processors that hold secret material
// needing a best-effort wipe when the ceremony stops before its own cleanup
// could run.
type Zeroizer interface {
	Zeroize()
}

// Stage is one round of a ceremony's state machine.
type Stage interface {
	// Name tags this stage's messages on the wire.
	Name() string

	// Init distributes this stage's outgoing messages and records our own
	// contribution.
	Init() error

	// ProcessMessage ingests one payload for this stage. It returns true
	// once the stage has a payload from every party.
	ProcessMessage(sender PartyIdx, payload Raw) bool

	// ShouldDelay reports whether a message tagged with the given stage
	// name belongs to the round right after this one and must be buffered.
	ShouldDelay(stage string) bool

	// AwaitedParties lists the parties the stage is still missing.
	AwaitedParties() []PartyIdx

	// Finalize consumes whatever messages arrived and resolves the stage.
	// It is called when all messages are in or when the stage times out.
	Finalize() StageOutcome
}
