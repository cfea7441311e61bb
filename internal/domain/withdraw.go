package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawState string

const (
	WithdrawStatePrepared   WithdrawState = "prepared"
	WithdrawStateSubmitted  WithdrawState = "submitted"
	WithdrawStateConfirming WithdrawState = "confirming"
	WithdrawStateSucceeded  WithdrawState = "succeeded"
	WithdrawStateFailed     WithdrawState = "failed"
	WithdrawStateCanceled   WithdrawState = "canceled"
)

type WithdrawEvent string

const (
	WithdrawEventSubmit  WithdrawEvent = "submit"
	WithdrawEventConfirm WithdrawEvent = "confirm"
	WithdrawEventSucceed WithdrawEvent = "succeed"
	WithdrawEventFail    WithdrawEvent = "fail"
	WithdrawEventCancel  WithdrawEvent = "cancel"
)

type withdrawTransition struct {
	from []WithdrawState
	to   WithdrawState
}

var withdrawTransitions = map[WithdrawEvent]withdrawTransition{
	WithdrawEventSubmit:  {from: []WithdrawState{WithdrawStatePrepared}, to: WithdrawStateSubmitted},
	WithdrawEventConfirm: {from: []WithdrawState{WithdrawStateSubmitted}, to: WithdrawStateConfirming},
	WithdrawEventSucceed: {from: []WithdrawState{WithdrawStateConfirming}, to: WithdrawStateSucceeded},
	WithdrawEventFail:    {from: []WithdrawState{WithdrawStateSubmitted, WithdrawStateConfirming}, to: WithdrawStateFailed},
	WithdrawEventCancel:  {from: []WithdrawState{WithdrawStatePrepared}, to: WithdrawStateCanceled},
}

func NextWithdrawState(state WithdrawState, event WithdrawEvent) (WithdrawState, error) {
	t, ok := withdrawTransitions[event]
	if !ok {
		return "", &TransitionError{Event: Event(event), From: string(state)}
	}
	for _, s := range t.from {
		if s == state {
			return t.to, nil
		}
	}
	return "", &TransitionError{Event: Event(event), From: string(state)}
}

type Withdraw struct {
	ID          int64
	TID         string
	MemberID    int64
	CurrencyID  string
	Amount      decimal.Decimal
	State       WithdrawState
	ToAddress   string
	TxID        *string
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (w *Withdraw) Confirming() bool {
	return w.State == WithdrawStateConfirming
}
