// Package store defines the contract shared by feedstore backends.
//
// A Backend holds users, posts, comments and likes. Two implementations
// exist: sqlite, a relational engine with declared constraints, and
// memory, a plain record store used when the relational engine cannot
// start. Both assign ids from 1 in insertion order, never reuse them, and
// report failures as *Error values carrying an ErrorCode.
//
// Timestamps come from a Clock so tests can pin them.
package store
