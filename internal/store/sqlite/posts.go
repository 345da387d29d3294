package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/feedstore/internal/model"
)

const postColumns = `
	p.id, p.title, p.description,
	COALESCE(p.tags, ''), COALESCE(p.image_data, ''),
	COALESCE(p.audio_data, ''), COALESCE(p.video_data, ''),
	p.author_id, u.name, p.created_at, COALESCE(p.likes_count, 0)
`

// CreatePost inserts a post with likes_count 0. The author must exist.
func (s *Store) CreatePost(ctx context.Context, post model.NewPost) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO posts
		(title, description, tags, image_data, audio_data, video_data, author_id, created_at, likes_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
	`,
		post.Title,
		post.Description,
		model.NormalizeTags(post.Tags),
		nullString(post.Image),
		nullString(post.Audio),
		nullString(post.Video),
		post.AuthorID,
		s.now(),
	)
	if err != nil {
		return 0, mapError("create post", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create post: last insert id: %w", err)
	}
	return id, nil
}

// GetAllPosts returns every post newest first, joined with its author.
//
// Returns an empty slice (not nil) when there are no posts.
func (s *Store) GetAllPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN users u ON p.author_id = u.id
		ORDER BY p.created_at DESC, p.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// GetPostByID returns one post joined with its author.
func (s *Store) GetPostByID(ctx context.Context, id int64) (model.Post, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+postColumns+`
		FROM posts p
		JOIN users u ON p.author_id = u.id
		WHERE p.id = ?
	`, id)

	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Post{}, false, nil
	}
	if err != nil {
		return model.Post{}, false, err
	}
	return p, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(sc scanner) (model.Post, error) {
	var (
		p       model.Post
		created sql.NullString
	)
	err := sc.Scan(
		&p.ID, &p.Title, &p.Description,
		&p.Tags, &p.Image, &p.Audio, &p.Video,
		&p.AuthorID, &p.AuthorName, &created, &p.LikesCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Post{}, err
	}
	if err != nil {
		return model.Post{}, fmt.Errorf("scan post: %w", err)
	}
	p.CreatedAt = parseTime(created.String)
	return p, nil
}
