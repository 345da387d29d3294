// Package model provides the entity types shared by every feedstore layer.
//
// This package contains type definitions and small value helpers only.
// All other internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - All JSON tags use snake_case
//   - Timestamps are UTC, truncated to microseconds
//   - Identifiers are int64 sequences assigned by the active backend
package model
