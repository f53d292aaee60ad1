package enums

import "slices"

// PaymentStatus is the state of one ledger row. FAILED is not final: a new
// MoMo attempt moves the row back to INITIATED, and a late success callback
// may still land on it.
type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "INITIATED"
	PaymentStatusSuccess   PaymentStatus = "SUCCESS"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

var paymentStatuses = []PaymentStatus{PaymentStatusInitiated, PaymentStatusSuccess, PaymentStatusFailed}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusInitiated: {PaymentStatusSuccess, PaymentStatusFailed},
	PaymentStatusFailed:    {PaymentStatusInitiated, PaymentStatusSuccess},
	PaymentStatusSuccess:   nil,
}

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) IsValid() bool {
	return slices.Contains(paymentStatuses, p)
}

// IsFinal reports whether the row can no longer change.
func (p PaymentStatus) IsFinal() bool {
	return p == PaymentStatusSuccess
}

func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return slices.Contains(paymentTransitions[p], next)
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parseEnum("payment status", paymentStatuses, value)
}
