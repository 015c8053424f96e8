// Package bundling proposes multi-pack and mixed bundles from a catalog
// snapshot and order history, prices them and ranks them.
//
// Everything here is pure: inputs are snapshots, outputs are candidates.
// Candidates are not catalog state until promoted, and promotion re-checks
// feasibility against live stock.
package bundling
