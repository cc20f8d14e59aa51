// Package device provides the device registry of the W215 bridge.
//
// The registry is the catalogue of polled plugs. Each Device carries its
// Features (one per reported channel, holding the last accepted value) and
// its Params (protocol parameters such as the HNAP pin code).
//
// # Architecture
//
//	┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐
//	│     Registry     │    │    Repository    │    │  StateCommitter  │
//	│  (registry.go)   │───▶│ (repository.go)  │◀───│  (committer.go)  │
//	│ • in-memory cache│    │ • SQLite queries │    │ • NEW_STATE sink │
//	│ • feature lookup │    │ • transactions   │    │ • state history  │
//	└──────────────────┘    └──────────────────┘    └──────────────────┘
//
// The poller reads features and params through the Registry. Accepted values
// flow back through the event bus into the StateCommitter, which updates
// last_value and appends to the state history.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	f, err := registry.GetFeature(ctx, id, device.CategorySwitch, device.TypePower)
//	if errors.Is(err, device.ErrFeatureNotFound) {
//	    // channel not configured for this plug
//	}
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Returned devices and
// features are deep copies.
package device
