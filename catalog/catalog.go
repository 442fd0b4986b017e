// Package catalog loads and serves the immutable table of sellable products.
//
// A catalog source is an ordered list of product records:
//
//	[
//	  {"Id": "coins_100", "Name": "100 Coins", "Price": 0.99, "Currency": "USD", "Amount": 100, "Type": "Consumable"},
//	  {"Id": "no_ads", "Name": "Remove Ads", "Price": 2.99, "Currency": "USD", "Type": "NonConsumable"}
//	]
//
// Id and Price are required. Amount defaults to 1 and Currency to USD.
// Unknown fields are ignored so newer tooling can add columns.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xraph/iap/types"
)

const (
	defaultCurrency = "USD"
	defaultAmount   = 1
)

// ReservedID is the ledger key holding the owned non-consumable set. No
// product may use it as its id.
const ReservedID = "NonConsumablePurchases"

// Catalog is an immutable, ordered set of products keyed by id.
type Catalog struct {
	products []Product
	index    map[string]int
}

// New builds a catalog from already-constructed products. The order of
// products is preserved. A zero Amount defaults to 1.
func New(products ...Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		index:    make(map[string]int, len(products)),
	}
	for i, p := range products {
		if p.Amount == 0 {
			p.Amount = defaultAmount
		}
		if err := validate(i, p); err != nil {
			return nil, err
		}
		if _, dup := c.index[p.ID]; dup {
			return nil, &ParseError{Index: i, Field: "Id", Message: fmt.Sprintf("duplicate id %q", p.ID)}
		}
		c.index[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

// Empty returns a catalog with no products.
func Empty() *Catalog {
	return &Catalog{index: map[string]int{}}
}

// Lookup returns the product with the given id.
func (c *Catalog) Lookup(productID string) (Product, error) {
	i, ok := c.index[productID]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrNotFound, productID)
	}
	return c.products[i], nil
}

// All returns every product in source order.
func (c *Catalog) All() []Product {
	result := make([]Product, len(c.products))
	copy(result, c.products)
	return result
}

// IDs returns every product id in source order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.products))
	for i, p := range c.products {
		ids[i] = p.ID
	}
	return ids
}

// Len returns the number of products.
func (c *Catalog) Len() int { return len(c.products) }

func validate(i int, p Product) error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return &ParseError{Index: i, Field: "Id", Message: "must not be empty"}
	case p.ID == ReservedID:
		return &ParseError{Index: i, Field: "Id", Message: fmt.Sprintf("%q is reserved", p.ID)}
	case p.Amount < 1:
		return &ParseError{Index: i, Field: "Amount", Message: fmt.Sprintf("must be >= 1, got %d", p.Amount)}
	case !p.Type.Valid():
		return &ParseError{Index: i, Field: "Type", Message: fmt.Sprintf("unknown type %q", p.Type)}
	case p.Price.IsNegative():
		return &ParseError{Index: i, Field: "Price", Message: "must not be negative"}
	case p.Price.Currency == "":
		return &ParseError{Index: i, Field: "Currency", Message: "must not be empty"}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Loading
// ──────────────────────────────────────────────────

// record is the on-disk shape of a product. Pointer fields distinguish
// "absent" from "zero".
type record struct {
	ID          *string      `json:"Id"          yaml:"Id"`
	Name        string       `json:"Name"        yaml:"Name"`
	Description string       `json:"Description" yaml:"Description"`
	Price       *decimalText `json:"Price"       yaml:"Price"`
	Currency    string       `json:"Currency"    yaml:"Currency"`
	Amount      *int         `json:"Amount"      yaml:"Amount"`
	Type        Type         `json:"Type"        yaml:"Type"`
}

// decimalText keeps a price exactly as written in the source so it can be
// converted to minor units without going through float64.
type decimalText string

func (d *decimalText) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("price must be a number: %s", data)
	}
	*d = decimalText(n.String())
	return nil
}

func (d *decimalText) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("price must be a number")
	}
	*d = decimalText(node.Value)
	return nil
}

// Load parses a JSON catalog source. It is the canonical format.
func Load(r io.Reader) (*Catalog, error) { return LoadJSON(r) }

// LoadJSON parses a JSON array of product records.
func LoadJSON(r io.Reader) (*Catalog, error) {
	var records []record
	dec := json.NewDecoder(r)
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after catalog", ErrParse)
	}
	return fromRecords(records)
}

// LoadYAML parses a YAML sequence of product records.
func LoadYAML(r io.Reader) (*Catalog, error) {
	var records []record
	if err := yaml.NewDecoder(r).Decode(&records); err != nil {
		if err == io.EOF {
			return Empty(), nil
		}
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return fromRecords(records)
}

// LoadFile reads a catalog from disk, picking YAML for .yaml/.yml files and
// JSON otherwise. A missing file is reported as an error wrapping
// fs.ErrNotExist, not ErrParse.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(bytes.NewReader(data))
	default:
		return LoadJSON(bytes.NewReader(data))
	}
}

func fromRecords(records []record) (*Catalog, error) {
	products := make([]Product, 0, len(records))
	for i, rec := range records {
		if rec.ID == nil {
			return nil, &ParseError{Index: i, Field: "Id", Message: "required"}
		}
		if rec.Price == nil {
			return nil, &ParseError{Index: i, Field: "Price", Message: "required"}
		}

		currency := rec.Currency
		if currency == "" {
			currency = defaultCurrency
		}
		price, err := types.ParseMajor(string(*rec.Price), currency)
		if err != nil {
			return nil, &ParseError{Index: i, Field: "Price", Message: err.Error()}
		}

		amount := defaultAmount
		if rec.Amount != nil {
			amount = *rec.Amount
			if amount < 1 {
				return nil, &ParseError{Index: i, Field: "Amount", Message: fmt.Sprintf("must be >= 1, got %d", amount)}
			}
		}

		typ := rec.Type
		if typ == "" {
			typ = Consumable
		}

		products = append(products, Product{
			ID:          *rec.ID,
			Name:        rec.Name,
			Description: rec.Description,
			Price:       price,
			Amount:      amount,
			Type:        typ,
		})
	}
	return New(products...)
}

// ──────────────────────────────────────────────────
// Writing
// ──────────────────────────────────────────────────

type outRecord struct {
	ID          string      `json:"Id"`
	Name        string      `json:"Name"`
	Description string      `json:"Description"`
	Price       json.Number `json:"Price"`
	Currency    string      `json:"Currency"`
	Amount      int         `json:"Amount"`
	Type        Type        `json:"Type"`
}

// Write serializes c as an indented JSON catalog source that Load accepts.
func Write(w io.Writer, c *Catalog) error {
	out := make([]outRecord, len(c.products))
	for i, p := range c.products {
		out[i] = outRecord{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       json.Number(p.Price.FormatMajor()),
			Currency:    p.Price.Currency,
			Amount:      p.Amount,
			Type:        p.Type,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
