package enums

import "fmt"

// PaymentProvider identifies the external gateway a payment runs through.
type PaymentProvider string

const (
	PaymentProviderEsewa PaymentProvider = "esewa"
)

var validPaymentProviders = []PaymentProvider{
	PaymentProviderEsewa,
}

// IsValid reports whether the value matches the canonical payment provider enum.
func (p PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentProvider converts the raw string to PaymentProvider.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	for _, candidate := range validPaymentProviders {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}
