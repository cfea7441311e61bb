package domain

import (
	"encoding/json"
	"time"
)

type BeneficiaryState string

const (
	BeneficiaryStateActive   BeneficiaryState = "active"
	BeneficiaryStateArchived BeneficiaryState = "archived"
)

// Beneficiary is a saved withdrawal destination, recorded after a
// successful deposit from that address.
type Beneficiary struct {
	ID         int64
	MemberID   int64
	CurrencyID string
	Name       string
	Data       json.RawMessage
	State      BeneficiaryState
	CreatedAt  time.Time
}
