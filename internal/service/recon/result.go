package recon

// Outcome classifies how one externally reported item was handled. Per-item
// failures are carried in the Result and never escape the poll cycle.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

type Result struct {
	Outcome Outcome
	Reason  string
	Err     error
}

func applied() Result {
	return Result{Outcome: OutcomeApplied}
}

func skipped(reason string) Result {
	return Result{Outcome: OutcomeSkipped, Reason: reason}
}

func failed(reason string, err error) Result {
	return Result{Outcome: OutcomeFailed, Reason: reason, Err: err}
}
