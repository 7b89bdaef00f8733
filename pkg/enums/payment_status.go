package enums

import "fmt"

// PaymentStatus is the internal reconciliation state of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "unpaid"
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusComplete      PaymentStatus = "complete"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusAmbiguous     PaymentStatus = "ambiguous"
	PaymentStatusNotFound      PaymentStatus = "not_found"
	PaymentStatusFullRefund    PaymentStatus = "full_refund"
	PaymentStatusPartialRefund PaymentStatus = "partial_refund"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusUnpaid,
	PaymentStatusPending,
	PaymentStatusComplete,
	PaymentStatusFailed,
	PaymentStatusAmbiguous,
	PaymentStatusNotFound,
	PaymentStatusFullRefund,
	PaymentStatusPartialRefund,
}

// IsValid reports whether the value matches the canonical payment status enum.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsOpen reports whether a payment row may be reused for a retried initiation.
// Only pending and ambiguous payments are still in flight; terminal states are
// never reopened.
func (p PaymentStatus) IsOpen() bool {
	return p == PaymentStatusPending || p == PaymentStatusAmbiguous
}

// ParsePaymentStatus converts the raw string to PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
