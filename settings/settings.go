// Package settings persists the few values that outlive a page session:
// the UI language and the relevance-filter exclusion toggles. Everything
// else the system derives is in-memory by design; this store is the single
// durable corner.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vixlabs/vix/dbopen"
	"github.com/vixlabs/vix/relevance"
)

// Schema for the settings table.
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Setting keys.
const (
	KeyLanguage = "language"

	KeyExcludeNavigation = "exclude_navigation"
	KeyExcludeHeader     = "exclude_header"
	KeyExcludeFooter     = "exclude_footer"
	KeyExcludeSidebar    = "exclude_sidebar"
	KeyExcludeLogo       = "exclude_logo"
	KeyExcludeIcons      = "exclude_icons"
	KeyExcludeDecorative = "exclude_decorative"
)

// DefaultLanguage is used when no language has been persisted.
const DefaultLanguage = "en"

// Store is the SQLite-backed settings store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the settings database at path. The caller must
// blank-import the driver:
//
//	import _ "modernc.org/sqlite"
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	db, err := dbopen.Open(path, append(opts, dbopen.WithSchema(Schema))...)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already-open database, applying the schema. Tests pair
// it with dbopen.OpenMemory.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("settings: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores key = value, replacing any previous value. Writes retry on
// SQLITE_BUSY: the panel and the bus can both touch the store.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}

// Bool returns the key parsed as a boolean, or def when absent.
func (s *Store) Bool(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("settings: parse %s=%q: %w", key, v, err)
	}
	return b, nil
}

// SetBool stores a boolean under key.
func (s *Store) SetBool(ctx context.Context, key string, v bool) error {
	return s.Set(ctx, key, strconv.FormatBool(v))
}

// Language returns the persisted UI language, defaulting to "en".
func (s *Store) Language(ctx context.Context) (string, error) {
	v, ok, err := s.Get(ctx, KeyLanguage)
	if err != nil {
		return DefaultLanguage, err
	}
	if !ok || v == "" {
		return DefaultLanguage, nil
	}
	return v, nil
}

// SetLanguage persists the UI language.
func (s *Store) SetLanguage(ctx context.Context, lang string) error {
	if lang == "" {
		return fmt.Errorf("settings: empty language")
	}
	return s.Set(ctx, KeyLanguage, lang)
}

// Exclusions assembles the relevance-filter toggles from persisted values,
// starting from the filter's defaults for anything unset.
func (s *Store) Exclusions(ctx context.Context) (relevance.Exclusions, error) {
	def := relevance.DefaultExclusions()
	out := def

	for _, t := range []struct {
		key string
		dst *bool
		def bool
	}{
		{KeyExcludeNavigation, &out.Navigation, def.Navigation},
		{KeyExcludeHeader, &out.Header, def.Header},
		{KeyExcludeFooter, &out.Footer, def.Footer},
		{KeyExcludeSidebar, &out.Sidebar, def.Sidebar},
		{KeyExcludeLogo, &out.Logo, def.Logo},
		{KeyExcludeIcons, &out.Icons, def.Icons},
		{KeyExcludeDecorative, &out.Decorative, def.Decorative},
	} {
		v, err := s.Bool(ctx, t.key, t.def)
		if err != nil {
			return def, err
		}
		*t.dst = v
	}
	return out, nil
}
