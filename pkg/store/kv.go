package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/eshiol/j3-rest-api/pkg/resource"
	"github.com/eshiol/j3-rest-api/pkg/storage"
	"github.com/eshiol/j3-rest-api/pkg/transform"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Config configures a KV store.
type Config struct {
	// DB is the key-value store records are written to.
	DB *pebble.DB
	// Logger is the logger used by the store.
	Logger *zap.Logger
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// KV is a Store backed by pebble. Records are JSON objects stored under
// "<table>/<id>" with the id zero padded, so key order is id order. The last
// issued id of each table lives under "<table>#seq".
type KV struct {
	Config
	// mu serializes read-modify-write cycles.
	mu sync.Mutex
}

var _ Store = (*KV)(nil)

// Open returns a KV store for cfg.
func Open(cfg Config) *KV {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Logger = cfg.Logger.Named("store")
	return &KV{Config: cfg}
}

func ready(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ValidateTable(table)
}

func recordKey(table string, id int64) []byte {
	return []byte(fmt.Sprintf("%s/%020d", table, id))
}

func tablePrefix(table string) []byte { return []byte(table + "/") }

func seqKey(table string) []byte { return []byte(table + "#seq") }

func (s *KV) now() string {
	return s.Now().UTC().Format(transform.InternalFormat)
}

// FetchOne implements Store.
func (s *KV) FetchOne(ctx context.Context, table string, id int64) (*resource.Record, error) {
	if err := ready(ctx, table); err != nil {
		return nil, err
	}
	return s.get(s.DB, table, id)
}

func (s *KV) get(r pebble.Reader, table string, id int64) (*resource.Record, error) {
	rec := &resource.Record{}
	if err := storage.Get(r, recordKey(table, id), rec); err != nil {
		return nil, errors.Wrapf(err, "[store] - %s %d", table, id)
	}
	return rec, nil
}

// FetchMany implements Store.
func (s *KV) FetchMany(
	ctx context.Context,
	table string,
	filter Filter,
	page Pagination,
) ([]*resource.Record, PageInfo, error) {
	if err := ready(ctx, table); err != nil {
		return nil, PageInfo{}, err
	}
	var matched []*resource.Record
	if err := storage.Iterate(s.DB, tablePrefix(table), func(_, value []byte) error {
		rec := &resource.Record{}
		if err := rec.UnmarshalJSON(value); err != nil {
			return errors.Wrapf(err, "[store] - decode %s record", table)
		}
		if filter.matches(rec) {
			matched = append(matched, rec)
		}
		return nil
	}); err != nil {
		return nil, PageInfo{}, err
	}
	sortRecords(matched, page.Sort)

	page = page.Normalize()
	info := PageInfo{
		Page:       page.Page,
		PerPage:    page.PerPage,
		Offset:     page.Offset,
		TotalItems: len(matched),
	}
	info.TotalPages = (info.TotalItems + info.PerPage - 1) / info.PerPage
	start, end := page.Window(len(matched))
	return matched[start:end], info, nil
}

func (f Filter) matches(rec *resource.Record) bool {
	for field, want := range f.Equals {
		got, ok := rec.Get(field)
		if !ok || cast.ToString(got) != cast.ToString(want) {
			return false
		}
	}
	return true
}

func sortRecords(recs []*resource.Record, by string) {
	if by == "" {
		return
	}
	desc := strings.HasPrefix(by, "-")
	field := strings.TrimPrefix(by, "-")
	sort.SliceStable(recs, func(i, j int) bool {
		a, _ := recs[i].Get(field)
		b, _ := recs[j].Get(field)
		if desc {
			return less(b, a)
		}
		return less(a, b)
	})
}

func less(a, b interface{}) bool {
	fa, errA := cast.ToFloat64E(a)
	fb, errB := cast.ToFloat64E(b)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return cast.ToString(a) < cast.ToString(b)
}

// Save implements Store. Updates merge rec into the stored record.
func (s *KV) Save(ctx context.Context, table string, rec *resource.Record) (int64, error) {
	if err := ready(ctx, table); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := rec.Get(FieldID)
	id := cast.ToInt64(v)
	if id == 0 {
		return s.insert(table, rec)
	}
	return id, s.update(table, id, rec)
}

func (s *KV) insert(table string, rec *resource.Record) (int64, error) {
	txn := storage.BeginTxn(s.DB)
	defer func() { _ = txn.Close() }()
	var last int64
	if err := storage.Get(txn, seqKey(table), &last); err != nil && !errors.Is(err, NotFound) {
		return 0, err
	}
	id := last + 1
	now := s.now()
	out := resource.NewRecord(FieldID, id)
	for _, k := range rec.Keys() {
		if k == FieldID {
			continue
		}
		v, _ := rec.Get(k)
		out.Set(k, v)
	}
	out.Set(FieldCreated, now).Set(FieldModified, now)
	if !out.Has(FieldCheckedOut) {
		out.Set(FieldCheckedOut, "").Set(FieldCheckedOutTime, transform.NullDate)
	}
	if err := storage.Set(txn, seqKey(table), id); err != nil {
		return 0, err
	}
	if err := storage.Set(txn, recordKey(table, id), out); err != nil {
		return 0, err
	}
	if err := txn.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	s.Logger.Debug("inserted record", zap.String("table", table), zap.Int64("id", id))
	return id, nil
}

func (s *KV) update(table string, id int64, rec *resource.Record) error {
	stored, err := s.get(s.DB, table, id)
	if err != nil {
		return err
	}
	for _, k := range rec.Keys() {
		switch k {
		case FieldID, FieldCreated, FieldCheckedOut, FieldCheckedOutTime:
			continue
		}
		v, _ := rec.Get(k)
		stored.Set(k, v)
	}
	stored.Set(FieldModified, s.now())
	if err := storage.Set(s.DB, recordKey(table, id), stored); err != nil {
		return err
	}
	s.Logger.Debug("updated record", zap.String("table", table), zap.Int64("id", id))
	return nil
}

// Delete implements Store.
func (s *KV) Delete(ctx context.Context, table string, id int64) error {
	if err := ready(ctx, table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := storage.Exists(s.DB, recordKey(table, id))
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(NotFound, "[store] - %s %d", table, id)
	}
	return storage.Delete(s.DB, recordKey(table, id))
}

// LockState implements Store.
func (s *KV) LockState(ctx context.Context, table string, id int64) (LockInfo, error) {
	rec, err := s.FetchOne(ctx, table, id)
	if err != nil {
		return LockInfo{}, err
	}
	return lockInfo(rec), nil
}

func lockInfo(rec *resource.Record) LockInfo {
	var info LockInfo
	if v, ok := rec.Get(FieldCheckedOut); ok {
		if actor, err := uuid.Parse(cast.ToString(v)); err == nil {
			info.CheckedOut = actor
		}
	}
	if v, ok := rec.Get(FieldCheckedOutTime); ok {
		info.Since, _ = transform.ParseTime(cast.ToString(v))
	}
	return info
}

// CheckOut implements Store. Checking out a record already held by actor
// refreshes the lock time.
func (s *KV) CheckOut(ctx context.Context, table string, id int64, actor uuid.UUID) error {
	return s.setLock(ctx, table, id, actor, func(rec *resource.Record) {
		rec.Set(FieldCheckedOut, actor.String()).Set(FieldCheckedOutTime, s.now())
	})
}

// CheckIn implements Store. Checking in a free record is a no-op.
func (s *KV) CheckIn(ctx context.Context, table string, id int64, actor uuid.UUID) error {
	return s.setLock(ctx, table, id, actor, func(rec *resource.Record) {
		rec.Set(FieldCheckedOut, "").Set(FieldCheckedOutTime, transform.NullDate)
	})
}

func (s *KV) setLock(
	ctx context.Context,
	table string,
	id int64,
	actor uuid.UUID,
	apply func(rec *resource.Record),
) error {
	if err := ready(ctx, table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.get(s.DB, table, id)
	if err != nil {
		return err
	}
	if lockInfo(rec).LockedByOther(actor) {
		return errors.Wrapf(LockConflict, "[store] - %s %d", table, id)
	}
	apply(rec)
	return storage.Set(s.DB, recordKey(table, id), rec)
}
