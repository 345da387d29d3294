package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/feedstore/internal/model"
	"github.com/roach88/feedstore/internal/store"
)

// timeLayout is fixed width so that text comparison orders by time.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// legacyTimeLayouts are produced by CURRENT_TIMESTAMP defaults and by
// other writers of the same schema.
var legacyTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func (s *Store) now() string {
	return formatTime(s.clock.Now())
}

func formatTime(t time.Time) string {
	return model.Timestamp(t).Format(timeLayout)
}

// parseTime accepts every layout the schema may hold. Unparseable or
// empty values become the zero time.
func parseTime(v string) time.Time {
	if t, err := time.Parse(timeLayout, v); err == nil {
		return t
	}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return model.Timestamp(t)
		}
	}
	return time.Time{}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// mapError converts SQLite constraint failures into store errors and
// wraps everything else with op.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		switch serr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return store.NewConstraintError(op+": duplicate value", err)
		case sqlite3.ErrConstraintForeignKey:
			return store.NewConstraintError(op+": referenced record does not exist", err)
		case sqlite3.ErrConstraintNotNull:
			return store.NewConstraintError(op+": missing required value", err)
		default:
			return store.NewConstraintError(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
