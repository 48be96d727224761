// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package registry provides a persistent registry of objects in a SQL database

The package uses JSON to serialize the data. Every value carries the time
when it was written, which lets callers implement expiry and cool-down
rules without their own tables.
*/
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/pret/core/csql"
)

// New creates a new registry for the specified database and creates its table if needed
func New(ctx context.Context, db *csql.DB) (*Registry, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+db.Table("_registry_")+`
(key varchar NOT NULL,
value json NOT NULL,
timestamp timestamp NOT NULL,
PRIMARY KEY(key)
);`)
	if err != nil {
		return nil, fmt.Errorf("cannot create registry table: %w", err)
	}
	return &Registry{db: db, now: time.Now}, nil
}

// Registry provides a persistent registry of objects in a sql database.
type Registry struct {
	db  *csql.DB
	now func() time.Time
}

// WithClock replaces the clock used for write timestamps
func (r *Registry) WithClock(now func() time.Time) *Registry {
	return &Registry{db: r.db, now: now}
}

// Accessor is an accessor with optional prefix
type Accessor struct {
	Prefix   string
	Registry *Registry
}

// Accessor returns a registry accessor with prefix
func (r *Registry) Accessor(prefix string) Accessor {
	return Accessor{
		Prefix:   prefix,
		Registry: r,
	}
}

func (a Accessor) key(key string) string {
	if len(a.Prefix) > 0 {
		return a.Prefix + ":" + key
	}
	return key
}

// Read reads a value from the registry. It returns the
// time when the value was written, or a zero timestamp
// if there is no value.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (a Accessor) Read(ctx context.Context, key string, value interface{}) (time.Time, error) {
	var (
		rawValue  []byte
		timestamp time.Time
	)
	key = a.key(key)
	db := a.Registry.db
	err := db.QueryRowContext(ctx,
		`SELECT value, timestamp FROM `+db.Table("_registry_")+` WHERE key=$1;`,
		key).Scan(&rawValue, &timestamp)
	if errors.Is(err, csql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot read key '%s': %w", key, err)
	}
	if err = json.Unmarshal(rawValue, value); err != nil {
		return time.Time{}, fmt.Errorf("cannot decode key '%s': %w", key, err)
	}
	return timestamp.UTC(), nil
}

// Write writes a value into the registry.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (a Accessor) Write(ctx context.Context, key string, value interface{}) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	key = a.key(key)
	db := a.Registry.db
	now := a.Registry.now().UTC()
	res, err := db.ExecContext(ctx,
		`INSERT INTO `+db.Table("_registry_")+`(key,value,timestamp)
VALUES($1,$2,$3)
ON CONFLICT (key) DO UPDATE SET value=$2,timestamp=$3;`,
		key, string(body), now)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("could not write key %s", key)
	}
	return nil
}

// Delete deletes a value from the registry.
//
// If the accessor has a prefix, the key is prepended with "{prefix}:"
func (a Accessor) Delete(ctx context.Context, key string) error {
	db := a.Registry.db
	_, err := db.ExecContext(ctx,
		`DELETE FROM `+db.Table("_registry_")+` WHERE key=$1;`,
		a.key(key))
	return err
}
