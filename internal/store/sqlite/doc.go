// Package sqlite implements store.Backend on an embedded SQLite database.
//
// The database normally lives in memory on a single connection; the
// whole image is moved in and out with Export and Import, which use
// SQLite's serialize and backup APIs.
//
// # Consistency
//
//   - UNIQUE(email) on users and UNIQUE(post_id, user_id) on likes
//   - Foreign keys enforced (PRAGMA foreign_keys = ON)
//   - ToggleLike changes the like row and posts.likes_count in one
//     transaction
//
// # Ordering
//
// created_at is stored as fixed-width UTC text, so text order is time
// order. Posts list newest first and comments oldest first; ties break
// on id in the same direction.
package sqlite
