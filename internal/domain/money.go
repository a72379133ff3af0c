package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money — сумма в основных денежных единицах с кодом валюты, как её передаёт провайдер ("10.00 EUR").
type Money struct {
	Value    decimal.Decimal
	Currency string
}

type moneyJSON struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// MoneyFromMinor строит Money из минимальных единиц (центы, копейки).
func MoneyFromMinor(amountMinor int64, currency string) Money {
	return Money{
		Value:    decimal.New(amountMinor, -2),
		Currency: strings.ToUpper(currency),
	}
}

// ParseMoney разбирает строковое значение провайдера вида "10.00".
func ParseMoney(value, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return Money{Value: d, Currency: strings.ToUpper(currency)}, nil
}

// MinorUnits переводит сумму в минимальные единицы с банковским округлением.
func (m Money) MinorUnits() int64 {
	return m.Value.Shift(2).RoundBank(0).IntPart()
}

// String возвращает значение с двумя знаками после запятой, как требует API провайдера.
func (m Money) String() string {
	return m.Value.StringFixed(2)
}

// IsZero сообщает, что сумма не задана или равна нулю.
func (m Money) IsZero() bool {
	return m.Value.IsZero()
}

// Equal сравнивает суммы с учётом валюты.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Value.Equal(other.Value)
}

// MarshalJSON сохраняет сумму в формате провайдера, чтобы метаданные платежа не теряли точность.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Value: m.String(), Currency: m.Currency})
}

// UnmarshalJSON разбирает сумму, сохранённую MarshalJSON.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseMoney(raw.Value, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
