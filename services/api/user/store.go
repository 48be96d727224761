// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package user

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/relabs-tech/pret/core/query"
)

// Store errors
var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("email already registered")
)

// Sortable and filterable fields
var (
	SortingFields   = []string{"email", "name", "surname", "date"}
	FilteringFields = []string{"email", "name", "surname", "roles"}
)

// ListQuery selects one page of users
type ListQuery struct {
	Limit  int
	Offset int
	Sort   []query.SortField
	Filter query.Filter
}

// Store persists user records
type Store interface {
	// List returns the page of users and the total count matching the filter
	List(ctx context.Context, q ListQuery) ([]Record, int, error)
	// FindByID returns ErrNotFound if there is no such user
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// FindByEmail returns ErrNotFound if there is no such user
	FindByEmail(ctx context.Context, email string) (*Record, error)
	// Create returns ErrDuplicate if the email is taken
	Create(ctx context.Context, rec *Record) error
	// Update replaces the record and increments its version
	Update(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MemoryStore keeps users in memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[uuid.UUID]Record{}}
}

func clone(rec Record) Record {
	rec.Roles = append([]string(nil), rec.Roles...)
	if rec.Birthdate != nil {
		b := *rec.Birthdate
		rec.Birthdate = &b
	}
	if rec.Auth.Email != nil {
		e := *rec.Auth.Email
		rec.Auth.Email = &e
	}
	return rec
}

// fieldValues returns the filterable values of a field
func fieldValues(rec *Record, field string) []string {
	switch field {
	case "email":
		return []string{rec.Email}
	case "name":
		return []string{rec.Name}
	case "surname":
		return []string{rec.Surname}
	case "roles":
		return rec.Roles
	}
	return nil
}

func compareField(a, b *Record, field string) int {
	switch field {
	case "date":
		return a.Date.Compare(b.Date)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "surname":
		return strings.Compare(a.Surname, b.Surname)
	}
	return 0
}

// List implements Store
func (s *MemoryStore) List(_ context.Context, q ListQuery) ([]Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := []Record{}
	for _, rec := range s.records {
		rec := rec
		if q.Filter.Match(func(field string) []string { return fieldValues(&rec, field) }) {
			matched = append(matched, clone(rec))
		}
	}
	order := append(append([]query.SortField{}, q.Sort...), query.SortField{Field: "date", Order: query.OrderAsc})
	sort.SliceStable(matched, func(i, j int) bool {
		for _, sf := range order {
			c := compareField(&matched[i], &matched[j], sf.Field)
			if sf.Order == query.OrderDesc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	count := len(matched)
	if q.Offset >= count {
		return []Record{}, count, nil
	}
	end := count
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], count, nil
}

// FindByID implements Store
func (s *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec = clone(rec)
	return &rec, nil
}

// FindByEmail implements Store
func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if strings.EqualFold(rec.Email, email) {
			rec = clone(rec)
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

// Create implements Store
func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if strings.EqualFold(existing.Email, rec.Email) {
			return ErrDuplicate
		}
	}
	s.records[rec.ID] = clone(*rec)
	return nil
}

// Update implements Store
func (s *MemoryStore) Update(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return ErrNotFound
	}
	rec.Version++
	s.records[rec.ID] = clone(*rec)
	return nil
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}
