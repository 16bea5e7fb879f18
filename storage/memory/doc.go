// Package memory provides an in-memory implementation of the gatehouse
// storage interfaces.
//
// The Store implements UserStore, ClientStore, CodeStore, and TokenStore
// using Go maps guarded by a sync.RWMutex. It is suitable for development,
// testing, and single-instance deployments where persistence is not
// required.
//
// Features:
//   - Thread-safe operations using sync.RWMutex
//   - Delete-before-validate redemption of authorization codes
//   - Lazy expiry of tokens at lookup, plus a background cleanup loop
//   - bcrypt verification of user passwords and client secrets
//   - SeedUser/SeedClient helpers for bootstrapping fixtures
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	// The one store serves all four interfaces
//	srv, _ := server.New(store, store, store, store, config, logger)
package memory
