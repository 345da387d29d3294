package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// requiredTables must all exist in an imported image.
var requiredTables = []string{"users", "posts", "comments", "likes"}

// Export returns the complete database image in SQLite file format.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: acquire connection: %w", err)
	}
	defer conn.Close()

	var image []byte
	err = conn.Raw(func(dc any) error {
		sc, ok := dc.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", dc)
		}
		b, err := sc.Serialize("main")
		if err != nil {
			return err
		}
		image = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("export: serialize: %w", err)
	}
	return image, nil
}

// Import replaces the database with image, a SQLite database file.
//
// The image is loaded into a scratch connection and checked first
// (integrity_check, required tables). Only a valid image is copied over
// the live database, so on error the prior state is intact. Images from
// older schema versions are migrated after the copy.
func (s *Store) Import(ctx context.Context, image []byte) error {
	if len(image) == 0 {
		return errors.New("import: empty image")
	}

	staging, err := openStaging(ctx, image)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	defer staging.close()

	if err := verifyImage(ctx, staging.conn); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("import: acquire connection: %w", err)
	}
	defer conn.Close()

	err = staging.conn.Raw(func(src any) error {
		srcConn, ok := src.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", src)
		}
		return conn.Raw(func(dst any) error {
			dstConn, ok := dst.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", dst)
			}
			return copyDatabase(dstConn, srcConn)
		})
	})
	if err != nil {
		return fmt.Errorf("import: copy image: %w", err)
	}

	if err := applySchema(ctx, conn); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	s.logger.Info("database image imported", "bytes", len(image))
	return nil
}

// copyDatabase replaces dst's main database with src's using the online
// backup API. The destination changes in a single step.
func copyDatabase(dst, src *sqlite3.SQLiteConn) error {
	bk, err := dst.Backup("main", src, "main")
	if err != nil {
		return fmt.Errorf("start backup: %w", err)
	}

	done, err := bk.Step(-1)
	if err != nil {
		_ = bk.Finish()
		return fmt.Errorf("backup step: %w", err)
	}
	if !done {
		_ = bk.Finish()
		return errors.New("backup step: incomplete copy")
	}
	return bk.Finish()
}

// staging is a private in-memory connection holding an image under test.
type staging struct {
	db   *sql.DB
	conn *sql.Conn
}

func openStaging(ctx context.Context, image []byte) (*staging, error) {
	db, err := sql.Open("sqlite3", MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("open staging database: %w", err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("acquire staging connection: %w", err)
	}

	err = conn.Raw(func(dc any) error {
		sc, ok := dc.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", dc)
		}
		return sc.Deserialize(image, "main")
	})
	if err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("load image: %w", err)
	}

	return &staging{db: db, conn: conn}, nil
}

func (st *staging) close() {
	st.conn.Close()
	st.db.Close()
}

// verifyImage rejects images SQLite cannot read and images that do not
// carry the feedstore tables.
func verifyImage(ctx context.Context, conn *sql.Conn) error {
	var result string
	if err := conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}

	var missing []string
	for _, table := range requiredTables {
		var name string
		err := conn.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, table)
			continue
		}
		if err != nil {
			return fmt.Errorf("schema check: %w", err)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema check: missing tables %s", strings.Join(missing, ", "))
	}
	return nil
}
