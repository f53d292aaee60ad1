package enums

// PaymentPurpose scopes a ledger entry; one entry exists per order and purpose.
type PaymentPurpose string

const PaymentPurposeCODGoods PaymentPurpose = "COD_GOODS"

func (p PaymentPurpose) String() string { return string(p) }

func (p PaymentPurpose) IsValid() bool { return p == PaymentPurposeCODGoods }

func ParsePaymentPurpose(value string) (PaymentPurpose, error) {
	return parseEnum("payment purpose", []PaymentPurpose{PaymentPurposeCODGoods}, value)
}
