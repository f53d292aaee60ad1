package validators

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/towndrop-backend/pkg/errors"
	"github.com/angelmondragon/towndrop-backend/pkg/money"
)

// Amount is a money value in a request body. Clients may send "15.00" or 15.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a string or number")
	}
	*a = Amount(n.String())
	return nil
}

// ParseMoney converts an optional amount from a request body. Sign checks
// belong to the domain services; precision beyond cents is rejected here.
func ParseMoney(field string, raw *Amount) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	value, err := money.Parse(string(*raw))
	if err == nil && !value.Equal(value.Truncate(money.CurrencyPlaces)) {
		err = fmt.Errorf("amount %q has more than %d decimal places", string(*raw), money.CurrencyPlaces)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed").
			WithDetails(map[string]string{field: err.Error()})
	}
	return &value, nil
}
