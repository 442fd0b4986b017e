// Package iap coordinates in-app purchases between an application, a
// platform store backend and a persistent entitlement ledger.
//
// It is a library, not a service. A Coordinator loads a product catalog,
// connects to a store backend through the adapter.Adapter interface, tracks
// at most one in-flight purchase per product, grants entitlements exactly
// once per confirmed transaction and publishes success or failure events to
// subscribers.
//
// # Quick Start
//
//	cat, err := catalog.LoadFile("products.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ledger, err := entitlement.Open(ctx, file.New("iap/ledger.json"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c := iap.New(cat, ledger, backend, iap.WithLogger(slog.Default()))
//	defer c.Close(ctx)
//
//	c.Subscribe(iap.Handlers{
//	    Succeeded: func(e iap.PurchaseSucceeded) { unlock(e.ProductID) },
//	    Failed:    func(e iap.PurchaseFailed) { showError(e.Reason) },
//	}.Handle)
//
//	_ = c.Initialize(ctx)
//	if err := c.WaitReady(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	if _, err := c.Purchase(ctx, "remove_ads"); err != nil {
//	    // Rejected locally; a PurchaseFailed event was published too.
//	}
//
// # Entitlements
//
// Non-consumable products are owned forever once granted and cannot be
// bought twice. Consumable products add their catalog Amount to a per
// product balance on every successful purchase. The ledger persists both
// through a store.Store: memory, file, redis, sqlite, postgres or mongo.
//
// # Events and plugins
//
// Subscribers on the event bus see purchase outcomes. Plugins registered
// with WithPlugin see the full lifecycle, including backend connection
// changes, deferred purchases, dropped outcomes and restores. The
// observability and audit_hook packages ship ready-made plugins.
//
// # TypeID
//
// Identifiers minted by the coordinator use TypeID:
//
//	txn_01h2xcejqtf2nbrexx3vqjhp41  // Store transaction
//	evt_01h2xcejqtf2nbrexx3vqjhp41  // Published event
//	hsub_01h455vb4pex5vsknk084sn02q // Bus subscription
package iap
