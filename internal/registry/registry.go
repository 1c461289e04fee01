package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"flightgate/internal/domain"
)

// ProviderConfig is the stored provider binding of a profile.
type ProviderConfig struct {
	Kind   string
	Params map[string]string
}

// ProfileSummary is a redacted profile listing entry (no params).
type ProfileSummary struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Store is the durable token registry. It is read on every call by the
// authentication resolver and mutated only by seeding and admin tooling.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// Open opens (creating if necessary) the registry at the given SQLite path
// and applies pending migrations. It configures a single-writer pool and a
// separate read pool, the recommended SQLite setup for concurrent readers.
func Open(path string) (*Store, error) {
	writeDB, err := openSQLite(path, "write", 0)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(writeDB); err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("migrate registry: %w", err)
	}

	readDB, err := openSQLite(path, "read", 0)
	if err != nil {
		_ = writeDB.Close()
		return nil, err
	}

	return &Store{writeDB: writeDB, readDB: readDB}, nil
}

// Close releases both connection pools.
func (s *Store) Close() error {
	werr := s.writeDB.Close()
	rerr := s.readDB.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Ping verifies the registry file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.readDB.PingContext(ctx)
}

// ProfilesForToken returns the profile names granted to the token. The
// second return value reports whether the token is registered at all, which
// callers need to distinguish "unknown token" from "no grants".
func (s *Store) ProfilesForToken(ctx context.Context, token string) ([]string, bool, error) {
	var raw string
	err := s.readDB.QueryRowContext(ctx, `SELECT profiles FROM tokens WHERE token = ?`, token).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("look up token: %w", err)
	}

	var profiles []string
	if err := json.Unmarshal([]byte(raw), &profiles); err != nil {
		return nil, false, fmt.Errorf("decode profile grants: %w", err)
	}
	return profiles, true, nil
}

// Profile returns the provider configuration of the named profile.
func (s *Store) Profile(ctx context.Context, name string) (*ProviderConfig, error) {
	var kind, rawParams string
	err := s.readDB.QueryRowContext(ctx, `SELECT kind, params FROM profiles WHERE name = ?`, name).Scan(&kind, &rawParams)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("profile %q is not registered", name)
	}
	if err != nil {
		return nil, fmt.Errorf("look up profile %q: %w", name, err)
	}

	params := map[string]string{}
	if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
		return nil, fmt.Errorf("decode params for profile %q: %w", name, err)
	}
	return &ProviderConfig{Kind: kind, Params: params}, nil
}

// ListProfiles returns all registered profiles, redacted to name and kind.
func (s *Store) ListProfiles(ctx context.Context) ([]ProfileSummary, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT name, kind FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	summaries := []ProfileSummary{}
	for rows.Next() {
		var p ProfileSummary
		if err := rows.Scan(&p.Name, &p.Kind); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		summaries = append(summaries, p)
	}
	return summaries, rows.Err()
}

// PutToken upserts a token and its granted profile set.
func (s *Store) PutToken(ctx context.Context, token string, profiles []string) error {
	if token == "" {
		return domain.ErrValidation("token must not be empty")
	}
	if profiles == nil {
		profiles = []string{}
	}
	raw, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("encode profile grants: %w", err)
	}
	_, err = s.writeDB.ExecContext(ctx,
		`INSERT INTO tokens (token, profiles) VALUES (?, ?)
		 ON CONFLICT(token) DO UPDATE SET profiles = excluded.profiles`,
		token, string(raw))
	if err != nil {
		return fmt.Errorf("put token: %w", err)
	}
	return nil
}

// PutProfile upserts a profile and its provider configuration.
func (s *Store) PutProfile(ctx context.Context, name, kind string, params map[string]string) error {
	if name == "" {
		return domain.ErrValidation("profile name must not be empty")
	}
	if kind == "" {
		return domain.ErrValidation("profile %q: provider kind must not be empty", name)
	}
	if params == nil {
		params = map[string]string{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	_, err = s.writeDB.ExecContext(ctx,
		`INSERT INTO profiles (name, kind, params) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET kind = excluded.kind, params = excluded.params`,
		name, kind, string(raw))
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}
