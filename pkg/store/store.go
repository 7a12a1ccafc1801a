// Package store persists resource records. Handlers depend on the Store
// interface; KV is the pebble-backed implementation.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/eshiol/j3-rest-api/pkg/resource"
	"github.com/eshiol/j3-rest-api/pkg/storage"
	"github.com/google/uuid"
)

var (
	// NotFound is returned when a record does not exist.
	NotFound = storage.NotFound
	// LockConflict is returned when a record is checked out by another actor.
	LockConflict = errors.New("[store] - record is checked out by another user")
	// InvalidTable is returned for empty table names and names containing a
	// key separator.
	InvalidTable = errors.New("[store] - invalid table name")
)

// ValidateTable returns InvalidTable unless table is usable as a key prefix.
// Names may not contain "/" or "#", which delimit record and sequence keys.
func ValidateTable(table string) error {
	if table == "" || strings.ContainsAny(table, "/#") {
		return errors.Wrapf(InvalidTable, "%q", table)
	}
	return nil
}

// Storage field names the store reads or writes.
const (
	FieldID             = "id"
	FieldCreated        = "created"
	FieldModified       = "modified"
	FieldCheckedOut     = "checked_out"
	FieldCheckedOutTime = "checked_out_time"
)

// Store is the storage collaborator of the HTTP services.
type Store interface {
	// FetchOne returns the record with the given id, or NotFound.
	FetchOne(ctx context.Context, table string, id int64) (*resource.Record, error)
	// FetchMany returns one page of the records matching filter.
	FetchMany(ctx context.Context, table string, filter Filter, page Pagination) ([]*resource.Record, PageInfo, error)
	// Save inserts rec if its id is zero or absent, and updates the existing
	// record otherwise. It returns the id of the saved record.
	Save(ctx context.Context, table string, rec *resource.Record) (int64, error)
	// Delete removes the record with the given id, or returns NotFound.
	Delete(ctx context.Context, table string, id int64) error
	// LockState returns who holds the record.
	LockState(ctx context.Context, table string, id int64) (LockInfo, error)
	// CheckOut locks the record for actor, or returns LockConflict.
	CheckOut(ctx context.Context, table string, id int64, actor uuid.UUID) error
	// CheckIn releases the record, or returns LockConflict if another actor
	// holds it.
	CheckIn(ctx context.Context, table string, id int64, actor uuid.UUID) error
}

// Filter restricts FetchMany results.
type Filter struct {
	// Equals keeps records whose field equals the given value when both are
	// rendered as strings.
	Equals map[string]interface{}
}

// Where returns a copy of f with an additional equality condition.
func (f Filter) Where(field string, v interface{}) Filter {
	eq := make(map[string]interface{}, len(f.Equals)+1)
	for k, x := range f.Equals {
		eq[k] = x
	}
	eq[field] = v
	return Filter{Equals: eq}
}

// Pagination selects a page of records. The first record returned is at
// position Offset + (Page-1)*PerPage of the sorted result set.
type Pagination struct {
	Offset  int
	Page    int
	PerPage int
	// Sort is a field name, optionally prefixed with "-" for descending order.
	// Empty sorts by id.
	Sort string
}

// Pagination defaults. PerPage is capped at MaxPerPage.
const (
	DefaultPage    = 1
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// Normalize returns p with defaults applied, a non-negative offset and
// PerPage capped at MaxPerPage.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Window returns the bounds of the page within a result set of n records.
// Pages past the end yield an empty window at n.
func (p Pagination) Window(n int) (start, end int) {
	p = p.Normalize()
	if p.Offset >= n {
		return n, n
	}
	rest := n - p.Offset
	if p.Page-1 > rest/p.PerPage {
		return n, n
	}
	start = p.Offset + (p.Page-1)*p.PerPage
	if start >= n {
		return n, n
	}
	end = start + p.PerPage
	if end > n {
		end = n
	}
	return start, end
}

// PageInfo describes the page returned by FetchMany.
type PageInfo struct {
	Page       int
	PerPage    int
	Offset     int
	TotalItems int
	TotalPages int
}

// LockInfo describes who has a record checked out.
type LockInfo struct {
	// CheckedOut is the holder, uuid.Nil when the record is free.
	CheckedOut uuid.UUID
	// Since is when the record was checked out.
	Since time.Time
}

// Locked returns true if someone holds the record.
func (l LockInfo) Locked() bool { return l.CheckedOut != uuid.Nil }

// LockedByOther returns true if someone other than actor holds the record.
func (l LockInfo) LockedByOther(actor uuid.UUID) bool {
	return l.Locked() && l.CheckedOut != actor
}
