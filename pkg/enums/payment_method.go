package enums

import "slices"

// PaymentMethod is how the goods portion of an order is collected. The
// delivery fee is always paid by MoMo regardless.
type PaymentMethod string

const (
	PaymentMethodCOD  PaymentMethod = "COD"
	PaymentMethodMOMO PaymentMethod = "MOMO"
)

var paymentMethods = []PaymentMethod{PaymentMethodCOD, PaymentMethodMOMO}

func (m PaymentMethod) String() string { return string(m) }

func (m PaymentMethod) IsValid() bool { return slices.Contains(paymentMethods, m) }

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parseEnum("payment method", paymentMethods, value)
}
