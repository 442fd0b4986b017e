package iap

import (
	"github.com/xraph/iap/catalog"
	"github.com/xraph/iap/event"
	"github.com/xraph/iap/types"
)

// Re-export common types so callers rarely need the sub-packages.

// Money is re-exported from types package.
type Money = types.Money

// Product is re-exported from catalog package.
type Product = catalog.Product

// ProductType is re-exported from catalog package.
type ProductType = catalog.Type

// Product types.
const (
	Consumable    = catalog.Consumable
	NonConsumable = catalog.NonConsumable
)

// Event is re-exported from event package.
type Event = event.Event

// PurchaseSucceeded is re-exported from event package.
type PurchaseSucceeded = event.PurchaseSucceeded

// PurchaseFailed is re-exported from event package.
type PurchaseFailed = event.PurchaseFailed

// Handlers is re-exported from event package.
type Handlers = event.Handlers

// Re-export Money constructors
var (
	NewMoney   = types.New
	ParseMoney = types.ParseMajor
)
