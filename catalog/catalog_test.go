package catalog_test

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/types"
)

const sampleJSON = `[
  {"Id": "coins_100", "Name": "100 Coins", "Description": "A pile", "Price": 0.99, "Currency": "USD", "Amount": 100, "Type": "Consumable"},
  {"Id": "no_ads", "Name": "Remove Ads", "Price": 2.99, "Currency": "EUR", "Type": "NonConsumable", "Icon": "ads.png"},
  {"Id": "gems", "Price": 5, "Type": 0}
]`

func TestLoadJSON(t *testing.T) {
	c, err := catalog.LoadJSON(strings.NewReader(sampleJSON))
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}

	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	if got := c.IDs(); !reflect.DeepEqual(got, []string{"coins_100", "no_ads", "gems"}) {
		t.Errorf("IDs() = %v", got)
	}

	coins, err := c.Lookup("coins_100")
	if err != nil {
		t.Fatal(err)
	}
	want := catalog.Product{
		ID:          "coins_100",
		Name:        "100 Coins",
		Description: "A pile",
		Price:       types.New(99, "USD"),
		Amount:      100,
		Type:        catalog.Consumable,
	}
	if coins != want {
		t.Errorf("coins = %+v, want %+v", coins, want)
	}

	noAds, _ := c.Lookup("no_ads")
	if noAds.Type != catalog.NonConsumable || noAds.Amount != 1 || noAds.Currency() != "EUR" {
		t.Errorf("no_ads = %+v", noAds)
	}

	gems, _ := c.Lookup("gems")
	if gems.Currency() != "USD" || gems.Price.Amount != 500 || !gems.IsConsumable() {
		t.Errorf("gems defaults not applied: %+v", gems)
	}
}

func TestLookupNotFound(t *testing.T) {
	c, _ := catalog.LoadJSON(strings.NewReader(sampleJSON))
	if _, err := c.Lookup("missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"malformed", `[{"Id": "x",`, ""},
		{"not an array", `{"Id": "x"}`, ""},
		{"missing id", `[{"Price": 1}]`, "Id"},
		{"empty id", `[{"Id": "", "Price": 1}]`, "Id"},
		{"missing price", `[{"Id": "x"}]`, "Price"},
		{"price not number", `[{"Id": "x", "Price": "cheap"}]`, ""},
		{"too precise", `[{"Id": "x", "Price": 0.999}]`, "Price"},
		{"negative price", `[{"Id": "x", "Price": -1}]`, "Price"},
		{"zero amount", `[{"Id": "x", "Price": 1, "Amount": 0}]`, "Amount"},
		{"bad type", `[{"Id": "x", "Price": 1, "Type": "Subscription"}]`, ""},
		{"duplicate", `[{"Id": "x", "Price": 1}, {"Id": "x", "Price": 2}]`, "Id"},
		{"trailing garbage", `[{"Id": "a", "Price": 1}] this is not json`, ""},
		{"second document", `[{"Id": "a", "Price": 1}] []`, ""},
		{"reserved id", `[{"Id": "NonConsumablePurchases", "Price": 1, "Type": "Consumable"}]`, "Id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.LoadJSON(strings.NewReader(tt.input))
			if !errors.Is(err, catalog.ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			if tt.field == "" {
				return
			}
			var pe *catalog.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Field != tt.field {
				t.Errorf("Field = %q, want %q", pe.Field, tt.field)
			}
		})
	}
}

func TestNewDefaultsAmount(t *testing.T) {
	c, err := catalog.New(
		catalog.Product{ID: "no_ads", Price: types.New(299, "USD"), Type: catalog.NonConsumable},
		catalog.Product{ID: "gems", Price: types.New(99, "USD"), Amount: 5, Type: catalog.Consumable},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		id   string
		want int
	}{
		{"no_ads", 1},
		{"gems", 5},
	}
	for _, tt := range tests {
		p, err := c.Lookup(tt.id)
		if err != nil {
			t.Fatal(err)
		}
		if p.Amount != tt.want {
			t.Errorf("%s Amount = %d, want %d", tt.id, p.Amount, tt.want)
		}
	}
}

func TestNewRejects(t *testing.T) {
	tests := []struct {
		name string
		p    catalog.Product
	}{
		{"negative amount", catalog.Product{ID: "x", Price: types.New(1, "USD"), Amount: -1, Type: catalog.Consumable}},
		{"reserved id", catalog.Product{ID: catalog.ReservedID, Price: types.New(1, "USD"), Type: catalog.Consumable}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := catalog.New(tt.p); !errors.Is(err, catalog.ErrParse) {
				t.Errorf("New() error = %v, want ErrParse", err)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	src := `
- Id: coins_100
  Name: 100 Coins
  Price: 0.99
  Currency: USD
  Amount: 100
  Type: Consumable
- Id: no_ads
  Price: 2.99
  Type: NonConsumable
  Tags: [ui]
`
	c, err := catalog.LoadYAML(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	p, _ := c.Lookup("coins_100")
	if p.Price != types.New(99, "USD") || p.Amount != 100 {
		t.Errorf("coins_100 = %+v", p)
	}
	p, _ = c.Lookup("no_ads")
	if p.Type != catalog.NonConsumable {
		t.Errorf("no_ads type = %q", p.Type)
	}

	if _, err := catalog.LoadYAML(strings.NewReader("- Name: nameless\n  Price: 1\n")); !errors.Is(err, catalog.ErrParse) {
		t.Errorf("expected ErrParse for missing Id, got %v", err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	original, err := catalog.New(
		catalog.Product{ID: "b_coins", Name: "Coins", Description: "Shiny", Price: types.New(199, "USD"), Amount: 50, Type: catalog.Consumable},
		catalog.Product{ID: "a_premium", Name: "Premium", Price: types.New(1000, "JPY"), Amount: 1, Type: catalog.NonConsumable},
		catalog.Product{ID: "c_free", Name: "Free", Price: types.New(0, "EUR"), Amount: 1, Type: catalog.NonConsumable},
	)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := catalog.Write(&buf, original); err != nil {
		t.Fatalf("Write: %v", err)
	}

	reloaded, err := catalog.Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(original.All(), reloaded.All()) {
		t.Errorf("round-trip mismatch:\n got %+v\nwant %+v", reloaded.All(), original.All())
	}
}

func TestAllReturnsCopy(t *testing.T) {
	c, _ := catalog.LoadJSON(strings.NewReader(sampleJSON))
	all := c.All()
	all[0].Name = "mutated"
	p, _ := c.Lookup(all[0].ID)
	if p.Name == "mutated" {
		t.Error("All() exposed internal storage")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "Products.json")
	if err := os.WriteFile(jsonPath, []byte(sampleJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := catalog.LoadFile(jsonPath)
	if err != nil || c.Len() != 3 {
		t.Fatalf("LoadFile(json) = %v, %v", c, err)
	}

	yamlPath := filepath.Join(dir, "products.yml")
	if err := os.WriteFile(yamlPath, []byte("- Id: x\n  Price: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err = catalog.LoadFile(yamlPath)
	if err != nil || c.Len() != 1 {
		t.Fatalf("LoadFile(yaml) = %v, %v", c, err)
	}

	_, err = catalog.LoadFile(filepath.Join(dir, "missing.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
	if errors.Is(err, catalog.ErrParse) {
		t.Error("missing file must not be a parse error")
	}
}

func TestProviderReload(t *testing.T) {
	first, _ := catalog.LoadJSON(strings.NewReader(sampleJSON))
	p := catalog.NewProvider(first)

	if err := p.Reload(catalog.FromJSON(strings.NewReader(`[{"Id": "broken"`))); err == nil {
		t.Fatal("expected reload error")
	}
	if p.Current() != first {
		t.Fatal("failed reload must keep previous catalog")
	}

	if err := p.Reload(catalog.FromYAML(strings.NewReader("- Id: only\n  Price: 1\n"))); err != nil {
		t.Fatal(err)
	}
	if got := p.Current().IDs(); !reflect.DeepEqual(got, []string{"only"}) {
		t.Errorf("IDs() after reload = %v", got)
	}
}

func TestProviderConcurrentReaders(t *testing.T) {
	a, _ := catalog.New(catalog.Product{ID: "a1", Price: types.New(1, "USD"), Amount: 1, Type: catalog.Consumable},
		catalog.Product{ID: "a2", Price: types.New(1, "USD"), Amount: 1, Type: catalog.Consumable})
	b, _ := catalog.New(catalog.Product{ID: "b1", Price: types.New(1, "USD"), Amount: 1, Type: catalog.Consumable})
	p := catalog.NewProvider(a)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				ids := p.Current().IDs()
				if len(ids) != 2 && len(ids) != 1 {
					t.Errorf("observed partial catalog: %v", ids)
					return
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		next := a
		if i%2 == 0 {
			next = b
		}
		_ = p.Reload(func() (*catalog.Catalog, error) { return next, nil })
	}
	close(stop)
	wg.Wait()

	if catalog.NewProvider(nil).Current().Len() != 0 {
		t.Error("nil catalog should serve empty")
	}
}
