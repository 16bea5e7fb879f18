// Package storage provides interfaces and record types for user, client,
// authorization code, and token persistence.
//
// The storage package defines the core store interfaces used throughout the
// gatehouse library:
//   - UserStore: resource-owner accounts and credential verification
//   - ClientStore: registered OAuth clients
//   - CodeStore: the single-use authorization code ledger
//   - TokenStore: the opaque access and refresh token ledger
//
// Implementations are provided in subpackages:
//   - storage/memory: in-memory storage for development, testing, and
//     single-instance deployments
package storage
