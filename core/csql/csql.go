// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package csql wraps a postgres connection pool bound to a schema
package csql

import (
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/lib/pq" // load database driver for postgres

	"github.com/relabs-tech/pret/core/logger"
)

// DB encapsulates a standard sql.DB with a schema
type DB struct {
	*sql.DB
	Schema string
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a
// row. In such a case, QueryRow returns a placeholder *Row value that
// defers this error until a Scan.
var ErrNoRows = sql.ErrNoRows

var schemaName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// New binds an open database to schema. An empty schema selects "public".
func New(db *sql.DB, schema string) (*DB, error) {
	if schema == "" {
		schema = "public"
	}
	if !schemaName.MatchString(schema) {
		return nil, fmt.Errorf("invalid schema name '%s'", schema)
	}
	return &DB{DB: db, Schema: schema}, nil
}

// OpenWithSchema opens a postgres database with a schema. The password is
// appended to the data source name if it is not empty, so that it does not
// have to appear in logs.
// The schema gets created if it does not exist yet.
func OpenWithSchema(dataSourceName, password, schema string) (*DB, error) {
	rlog := logger.Default()
	rlog.Infoln("connecting to postgres database:", dataSourceName)
	if password != "" {
		dataSourceName += " password=" + password
	}
	sqlDB, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}
	if err = sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("cannot reach database: %w", err)
	}
	db, err := New(sqlDB, schema)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err = db.CreateSchema(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	rlog.Infoln("selected database schema:", db.Schema)
	return db, nil
}

// CreateSchema creates the schema if it does not exist yet
func (db *DB) CreateSchema() error {
	if db.Schema == "public" {
		return nil
	}
	_, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS ` + db.Schema + `;`)
	if err != nil {
		return fmt.Errorf("cannot create schema %s: %w", db.Schema, err)
	}
	return nil
}

// Table returns the schema qualified name of a table
func (db *DB) Table(name string) string {
	return db.Schema + `."` + name + `"`
}

// ClearSchema clears all the data contained in the database's schema
// Technically this is done by dropping the schema and then recreating it
func (db *DB) ClearSchema() error {
	if db.Schema == "public" {
		return fmt.Errorf("refuse to drop public schema")
	}
	_, err := db.Exec(`DROP SCHEMA IF EXISTS ` + db.Schema + ` CASCADE;`)
	if err != nil {
		return fmt.Errorf("clear schema %s: %w", db.Schema, err)
	}
	return db.CreateSchema()
}
