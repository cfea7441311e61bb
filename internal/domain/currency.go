package domain

type CurrencyType string

const (
	CurrencyTypeCoin CurrencyType = "coin"
	CurrencyTypeFiat CurrencyType = "fiat"
)

type Currency struct {
	ID            string
	BlockchainKey string
	Type          CurrencyType
}

func (c *Currency) IsCoin() bool {
	return c.Type == CurrencyTypeCoin
}
