package domain

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DepositState string

const (
	DepositStateSubmitted  DepositState = "submitted"
	DepositStateInvoiced   DepositState = "invoiced"
	DepositStateCanceled   DepositState = "canceled"
	DepositStateRejected   DepositState = "rejected"
	DepositStateAccepted   DepositState = "accepted"
	DepositStateAMLCheck   DepositState = "aml_check"
	DepositStateSkipped    DepositState = "skipped"
	DepositStateDispatched DepositState = "dispatched"
	DepositStateErrored    DepositState = "errored"
	DepositStateRefunding  DepositState = "refunding"
	DepositStateRolledBack DepositState = "rolledback"
)

// Event is a deposit lifecycle event driving the transition table.
type Event string

const (
	EventCancel   Event = "cancel"
	EventReject   Event = "reject"
	EventAccept   Event = "accept"
	EventSkip     Event = "skip"
	EventInvoice  Event = "invoice"
	EventAMLCheck Event = "aml_check"
	EventDispatch Event = "dispatch"
	EventRefund   Event = "refund"
	EventRollback Event = "rollback"
)

type depositTransition struct {
	from []DepositState
	to   DepositState
}

var depositTransitions = map[Event]depositTransition{
	EventCancel:   {from: []DepositState{DepositStateSubmitted, DepositStateInvoiced}, to: DepositStateCanceled},
	EventReject:   {from: []DepositState{DepositStateSubmitted, DepositStateInvoiced}, to: DepositStateRejected},
	EventAccept:   {from: []DepositState{DepositStateSubmitted, DepositStateInvoiced, DepositStateSkipped}, to: DepositStateAccepted},
	EventSkip:     {from: []DepositState{DepositStateSubmitted}, to: DepositStateSkipped},
	EventInvoice:  {from: []DepositState{DepositStateSubmitted}, to: DepositStateInvoiced},
	EventAMLCheck: {from: []DepositState{DepositStateAccepted}, to: DepositStateAMLCheck},
	EventDispatch: {from: []DepositState{DepositStateErrored, DepositStateAccepted, DepositStateAMLCheck}, to: DepositStateDispatched},
	EventRefund:   {from: []DepositState{DepositStateSkipped}, to: DepositStateRefunding},
	EventRollback: {from: []DepositState{DepositStateDispatched}, to: DepositStateRolledBack},
}

// NextDepositState resolves the target state for firing event from state.
// Events fired outside their declared source set return a *TransitionError.
func NextDepositState(state DepositState, event Event) (DepositState, error) {
	t, ok := depositTransitions[event]
	if !ok {
		return "", &TransitionError{Event: event, From: string(state)}
	}
	for _, s := range t.from {
		if s == state {
			return t.to, nil
		}
	}
	return "", &TransitionError{Event: event, From: string(state)}
}

// DepositError is one entry of a deposit's append-only error list.
type DepositError struct {
	Class   string `json:"class,omitempty"`
	Message string `json:"message"`
}

type Deposit struct {
	ID               int64
	TID              string
	MemberID         int64
	CurrencyID       string
	BlockchainKey    string
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	State            DepositState
	InvoiceID        *string
	Address          *string
	TxID             *string
	BlockNumber      *int64
	IsLocked         bool
	Data             json.RawMessage
	Errors           []DepositError
	InvoiceExpiresAt *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Reconcilable reports whether an external intention may still settle the
// deposit. Any other state is an integrity alarm for the poll cycle.
func (d *Deposit) Reconcilable() bool {
	return d.State == DepositStateInvoiced || d.State == DepositStateSubmitted
}

func (d *Deposit) Dispatched() bool {
	return d.State == DepositStateDispatched
}

// NewTID mints a public deposit/withdraw identifier, e.g. "TID9F2C41A0D3".
func NewTID() string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return "TID" + strings.ToUpper(hex.EncodeToString(buf))
}
