package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/feedstore/internal/model"
)

// AddComment inserts a comment. The post and user must exist.
func (s *Store) AddComment(ctx context.Context, postID, userID int64, content string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (post_id, user_id, content, created_at)
		VALUES (?, ?, ?, ?)
	`, postID, userID, content, s.now())
	if err != nil {
		return 0, mapError("add comment", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add comment: last insert id: %w", err)
	}
	return id, nil
}

// GetCommentsByPostID returns a post's comments oldest first.
func (s *Store) GetCommentsByPostID(ctx context.Context, postID int64) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.post_id, c.user_id, u.name, c.content, c.created_at
		FROM comments c
		JOIN users u ON c.user_id = u.id
		WHERE c.post_id = ?
		ORDER BY c.created_at ASC, c.id ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var (
			c       model.Comment
			created sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.PostID, &c.UserID, &c.UserName, &c.Content, &created); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt = parseTime(created.String)
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}
