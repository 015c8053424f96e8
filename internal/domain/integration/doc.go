// Package integration contains the ports to external marketplaces.
//
// Key concepts:
//   - Marketplace: Port for publishing listings and polling their asynchronous import batches
//   - OrderFeed: Port for pulling recent order lines as a backup to webhooks
//   - Account: Per-seller credentials passed explicitly into every call
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
