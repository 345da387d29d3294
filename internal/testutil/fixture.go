package testutil

import (
	"context"
	"fmt"

	"github.com/roach88/feedstore/internal/model"
	"github.com/roach88/feedstore/internal/store"
)

// Fixture holds the ids created by Populate.
type Fixture struct {
	Users    []int64
	Posts    []int64
	Comments []int64
}

// Populate fills b with three users, three posts, comments, and
// overlapping likes:
//
//	post 0: liked by users 0, 1, 2
//	post 1: liked by users 1, 2
//	post 2: no likes
//
// It works against any store.Backend, so backends can be compared on the
// same data.
func Populate(ctx context.Context, b store.Backend) (Fixture, error) {
	var f Fixture

	users := []struct{ name, email string }{
		{"Alice", "alice@example.com"},
		{"Bob", "bob@example.com"},
		{"Carol", "carol@example.com"},
	}
	for _, u := range users {
		id, err := b.CreateUser(ctx, u.name, u.email, "cred-"+u.name)
		if err != nil {
			return f, fmt.Errorf("populate user %s: %w", u.email, err)
		}
		f.Users = append(f.Users, id)
	}

	posts := []model.NewPost{
		{Title: "Hello", Description: "First post", Tags: "intro, news", AuthorID: f.Users[0]},
		{Title: "Sketch", Description: "With media", Tags: "art", Image: "data:image/png;base64,iVBORw0KGgo=", AuthorID: f.Users[1]},
		{Title: "Quiet", Description: "Nobody likes this", AuthorID: f.Users[2]},
	}
	for _, p := range posts {
		id, err := b.CreatePost(ctx, p)
		if err != nil {
			return f, fmt.Errorf("populate post %q: %w", p.Title, err)
		}
		f.Posts = append(f.Posts, id)
	}

	comments := []struct {
		post, user int
		content    string
	}{
		{0, 1, "Welcome!"},
		{0, 2, "Hi Alice"},
		{1, 0, "Nice colors"},
	}
	for _, c := range comments {
		id, err := b.AddComment(ctx, f.Posts[c.post], f.Users[c.user], c.content)
		if err != nil {
			return f, fmt.Errorf("populate comment: %w", err)
		}
		f.Comments = append(f.Comments, id)
	}

	likes := [][2]int{{0, 0}, {0, 1}, {0, 2}, {1, 1}, {1, 2}}
	for _, l := range likes {
		liked, err := b.ToggleLike(ctx, f.Posts[l[0]], f.Users[l[1]])
		if err != nil {
			return f, fmt.Errorf("populate like: %w", err)
		}
		if !liked {
			return f, fmt.Errorf("populate like: post %d user %d toggled off", l[0], l[1])
		}
	}

	return f, nil
}
