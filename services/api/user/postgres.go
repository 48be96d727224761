// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/relabs-tech/pret/core/csql"
	"github.com/relabs-tech/pret/core/query"
)

// PostgresStore keeps users in the "user" table of the database schema
type PostgresStore struct {
	db    *csql.DB
	table string
}

const columns = `id,email,password,date,name,surname,phone,birthdate,roles,auth,settings,v`

// NewPostgresStore creates the user table if it does not exist yet
func NewPostgresStore(ctx context.Context, db *csql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db, table: db.Table("user")}
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+`
(id uuid NOT NULL,
email varchar NOT NULL,
password varchar NOT NULL,
date timestamp NOT NULL,
name varchar NOT NULL DEFAULT '',
surname varchar NOT NULL DEFAULT '',
phone varchar NOT NULL DEFAULT '',
birthdate timestamp,
roles varchar[] NOT NULL DEFAULT '{}',
auth jsonb NOT NULL DEFAULT '{}',
settings jsonb NOT NULL DEFAULT '{}',
v integer NOT NULL DEFAULT 0,
PRIMARY KEY(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS user_email_unique ON `+s.table+` (lower(email));`)
	if err != nil {
		return nil, fmt.Errorf("cannot create user table: %w", err)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec            Record
		birthdate      sql.NullTime
		auth, settings []byte
	)
	err := row.Scan(&rec.ID, &rec.Email, &rec.PasswordHash, &rec.Date, &rec.Name, &rec.Surname, &rec.Phone,
		&birthdate, pq.Array(&rec.Roles), &auth, &settings, &rec.Version)
	if err != nil {
		return nil, err
	}
	rec.Date = rec.Date.UTC()
	if birthdate.Valid {
		b := birthdate.Time.UTC()
		rec.Birthdate = &b
	}
	if err = json.Unmarshal(auth, &rec.Auth); err != nil {
		return nil, fmt.Errorf("corrupt auth of user %s: %w", rec.ID, err)
	}
	if err = json.Unmarshal(settings, &rec.Settings); err != nil {
		return nil, fmt.Errorf("corrupt settings of user %s: %w", rec.ID, err)
	}
	if rec.Roles == nil {
		rec.Roles = []string{}
	}
	return &rec, nil
}

// List implements Store
func (s *PostgresStore) List(ctx context.Context, q ListQuery) ([]Record, int, error) {
	where, args := whereClause(q.Filter)

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+s.table+where+`;`, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	stmt := `SELECT ` + columns + ` FROM ` + s.table + where + orderClause(q.Sort)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		stmt += ` LIMIT $` + strconv.Itoa(len(args))
	}
	args = append(args, q.Offset)
	stmt += ` OFFSET $` + strconv.Itoa(len(args)) + `;`

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	return records, count, rows.Err()
}

func (s *PostgresStore) find(ctx context.Context, where string, arg interface{}) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM `+s.table+` WHERE `+where+`;`, arg))
	if errors.Is(err, csql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// FindByID implements Store
func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.find(ctx, `id=$1`, id)
}

// FindByEmail implements Store
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*Record, error) {
	return s.find(ctx, `lower(email)=lower($1)`, email)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullTime(rec *Record) interface{} {
	if rec.Birthdate == nil {
		return nil
	}
	return rec.Birthdate.UTC()
}

// Create implements Store
func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	auth, _ := json.Marshal(rec.Auth)
	settings, _ := json.Marshal(rec.Settings)
	_, err := s.db.ExecContext(ctx, `INSERT INTO `+s.table+`(`+columns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`,
		rec.ID, rec.Email, rec.PasswordHash, rec.Date.UTC(), rec.Name, rec.Surname, rec.Phone,
		nullTime(rec), pq.Array(rec.Roles), string(auth), string(settings), rec.Version)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Update implements Store
func (s *PostgresStore) Update(ctx context.Context, rec *Record) error {
	auth, _ := json.Marshal(rec.Auth)
	settings, _ := json.Marshal(rec.Settings)
	res, err := s.db.ExecContext(ctx, `UPDATE `+s.table+`
SET password=$2,name=$3,surname=$4,phone=$5,birthdate=$6,roles=$7,auth=$8,settings=$9,v=v+1
WHERE id=$1;`,
		rec.ID, rec.PasswordHash, rec.Name, rec.Surname, rec.Phone,
		nullTime(rec), pq.Array(rec.Roles), string(auth), string(settings))
	if err != nil {
		return err
	}
	if count, err := res.RowsAffected(); err != nil {
		return err
	} else if count == 0 {
		return ErrNotFound
	}
	rec.Version++
	return nil
}

// Delete implements Store
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if count, err := res.RowsAffected(); err != nil {
		return err
	} else if count == 0 {
		return ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// whereClause translates the filter into a WHERE clause with positional arguments.
// Ordering operators compare text.
func whereClause(filter query.Filter) (string, []interface{}) {
	var (
		args    []interface{}
		clauses []string
	)
	placeholder := func(value interface{}) string {
		args = append(args, value)
		return "$" + strconv.Itoa(len(args))
	}
	for _, anyOf := range filter.AllOf {
		var alternatives []string
		for _, c := range anyOf.AnyOf {
			if cond, ok := conditionSQL(c, placeholder); ok {
				alternatives = append(alternatives, cond)
			}
		}
		if len(alternatives) > 0 {
			clauses = append(clauses, "("+strings.Join(alternatives, " OR ")+")")
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func conditionSQL(c query.Condition, placeholder func(interface{}) string) (string, bool) {
	var op, value string
	switch c.Operation {
	case query.OpEquals:
		op, value = "=", c.Value
	case query.OpNotEquals:
		op, value = "<>", c.Value
	case query.OpLess, query.OpLessOrEqual, query.OpGreater, query.OpGreaterOrEqual:
		op, value = string(c.Operation), c.Value
	case query.OpContains:
		op, value = "LIKE", "%"+likeEscaper.Replace(c.Value)+"%"
	case query.OpNotContains:
		op, value = "NOT LIKE", "%"+likeEscaper.Replace(c.Value)+"%"
	case query.OpStartsWith:
		op, value = "LIKE", likeEscaper.Replace(c.Value)+"%"
	case query.OpEndsWith:
		op, value = "LIKE", "%"+likeEscaper.Replace(c.Value)
	default:
		return "", false
	}

	switch c.Field {
	case "email", "name", "surname":
		return c.Field + " " + op + " " + placeholder(value), true
	case "roles":
		// negated operators must hold for every role, the others for any
		switch c.Operation {
		case query.OpNotEquals:
			return "NOT (" + placeholder(value) + " = ANY(roles))", true
		case query.OpNotContains:
			return "NOT EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r LIKE " + placeholder(value) + ")", true
		case query.OpEquals:
			return placeholder(value) + " = ANY(roles)", true
		}
		return "EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r " + op + " " + placeholder(value) + ")", true
	}
	return "", false
}

func orderClause(sort []query.SortField) string {
	var terms []string
	for _, sf := range sort {
		switch sf.Field {
		case "email", "name", "surname", "date":
			terms = append(terms, sf.Field+" "+string(sf.Order))
		}
	}
	terms = append(terms, "date ASC", "id ASC")
	return " ORDER BY " + strings.Join(terms, ",")
}
