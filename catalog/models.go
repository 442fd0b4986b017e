package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xraph/iap/types"
)

type Type string

const (
	Consumable    Type = "Consumable"
	NonConsumable Type = "NonConsumable"
)

// Valid reports whether t is a known product type.
func (t Type) Valid() bool {
	return t == Consumable || t == NonConsumable
}

// UnmarshalJSON accepts the type name ("NonConsumable", "non_consumable")
// or the ordinal written by older catalog tooling (0 = Consumable,
// 1 = NonConsumable).
func (t *Type) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		return t.fromOrdinal(n)
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("product type must be a string or integer: %s", data)
	}
	return t.fromName(s)
}

// UnmarshalYAML implements yaml.Unmarshaler with the same rules as UnmarshalJSON.
func (t *Type) UnmarshalYAML(node *yaml.Node) error {
	var n int
	if err := node.Decode(&n); err == nil {
		return t.fromOrdinal(n)
	}
	return t.fromName(node.Value)
}

func (t *Type) fromOrdinal(n int) error {
	switch n {
	case 0:
		*t = Consumable
	case 1:
		*t = NonConsumable
	default:
		return fmt.Errorf("unknown product type ordinal %d", n)
	}
	return nil
}

func (t *Type) fromName(s string) error {
	switch strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)) {
	case "consumable":
		*t = Consumable
	case "nonconsumable":
		*t = NonConsumable
	default:
		return fmt.Errorf("unknown product type %q", s)
	}
	return nil
}

type Product struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       types.Money `json:"price"`
	Amount      int         `json:"amount"`
	Type        Type        `json:"type"`
}

// Currency returns the ISO 4217 code the product is priced in.
func (p Product) Currency() string { return p.Price.Currency }

// IsConsumable reports whether purchases accumulate as a balance.
func (p Product) IsConsumable() bool { return p.Type == Consumable }
