// Package store provides the key-value persistence layer.
//
// It holds two kinds of records:
//   - configuration reads (targets:active, sinks:active) maintained by
//     external tooling,
//   - dedup state (state:<tenant>:<company>:<kind> -> last seen item id).
package store
