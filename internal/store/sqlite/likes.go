package sqlite

import (
	"context"
	"fmt"

	"github.com/roach88/feedstore/internal/model"
)

// ToggleLike adds the (post, user) like if absent, otherwise removes it,
// and returns whether the post is now liked.
//
// The insert attempt, the delete, and the likes_count adjustment share
// one transaction, so concurrent toggles on the same pair serialize.
// Uses ON CONFLICT(post_id, user_id) DO NOTHING to detect an existing
// like without a separate read.
func (s *Store) ToggleLike(ctx context.Context, postID, userID int64) (liked bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("toggle like: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO likes (post_id, user_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(post_id, user_id) DO NOTHING
	`, postID, userID, s.now())
	if err != nil {
		return false, mapError("toggle like", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("toggle like: rows affected: %w", err)
	}

	if rowsAffected > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE posts SET likes_count = COALESCE(likes_count, 0) + 1 WHERE id = ?
		`, postID)
		liked = true
	} else {
		if _, err = tx.ExecContext(ctx, `
			DELETE FROM likes WHERE post_id = ? AND user_id = ?
		`, postID, userID); err == nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE posts SET likes_count = MAX(COALESCE(likes_count, 0) - 1, 0) WHERE id = ?
			`, postID)
		}
		liked = false
	}
	if err != nil {
		return false, mapError("toggle like", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("toggle like: commit: %w", err)
	}
	return liked, nil
}

// IsPostLikedByUser reports whether the (post, user) like exists.
func (s *Store) IsPostLikedByUser(ctx context.Context, postID, userID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM likes WHERE post_id = ? AND user_id = ?
	`, postID, userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check like: %w", err)
	}
	return count > 0, nil
}

// CountMismatches lists posts whose likes_count differs from their like
// rows, ordered by post id.
func (s *Store) CountMismatches(ctx context.Context) ([]model.CountMismatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, COALESCE(p.likes_count, 0), COUNT(l.id)
		FROM posts p
		LEFT JOIN likes l ON l.post_id = p.id
		GROUP BY p.id
		HAVING COALESCE(p.likes_count, 0) != COUNT(l.id)
		ORDER BY p.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query like counts: %w", err)
	}
	defer rows.Close()

	out := []model.CountMismatch{}
	for rows.Next() {
		var m model.CountMismatch
		if err := rows.Scan(&m.PostID, &m.LikesCount, &m.LikeRows); err != nil {
			return nil, fmt.Errorf("scan like count: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate like counts: %w", err)
	}
	return out, nil
}
