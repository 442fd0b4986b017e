package iap

import "github.com/xraph/iap/id"

// ID identifies transactions, events and bus subscriptions minted by the
// coordinator.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
