// Package repository implements tenant-scoped data access over GORM.
//
// Repositories execute statements inside whatever session or transaction they
// are bound to and never begin, commit or roll back on their own. Callers that
// need atomic multi-repository writes bind every repository to the same
// transaction with WithTx.
package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/pavitra93/go-simulation-admin/shared/models"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 100
)

// EntityPtr constrains the pointer type of a persisted entity.
type EntityPtr[T any] interface {
	*T
	models.Entity
}

// Page selects a window of a result set.
type Page struct {
	Skip  int `form:"skip" json:"skip"`
	Limit int `form:"limit" json:"limit"`
}

// Options tunes pagination.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultOptions returns the conventional page sizes.
func DefaultOptions() Options {
	return Options{DefaultLimit: defaultPageLimit, MaxLimit: maxPageLimit}
}

func (o Options) normalize() Options {
	if o.MaxLimit <= 0 {
		o.MaxLimit = maxPageLimit
	}
	if o.DefaultLimit <= 0 || o.DefaultLimit > o.MaxLimit {
		o.DefaultLimit = min(defaultPageLimit, o.MaxLimit)
	}
	return o
}

// Window returns the offset and limit actually applied for p.
func (o Options) Window(p Page) (skip, limit int) {
	skip = max(p.Skip, 0)
	limit = p.Limit
	if limit <= 0 {
		limit = o.DefaultLimit
	}
	if limit > o.MaxLimit {
		limit = o.MaxLimit
	}
	return skip, limit
}

// protectedFields are never written by Update. Both Go and column names are listed.
var protectedFields = map[string]struct{}{
	models.ColumnLogicalID: {}, "LogicalID": {},
	models.ColumnSequenceID: {}, "SequenceID": {},
	models.ColumnCreatedAt: {}, "CreatedAt": {},
	models.ColumnTenantRef: {}, "TenantRef": {},
	models.ColumnUpdatedAt: {}, "UpdatedAt": {},
	models.ColumnIsDeleted: {}, "IsDeleted": {},
}

// Repository is the generic data-access surface shared by every entity.
type Repository[T any, PT EntityPtr[T]] struct {
	db    *gorm.DB
	opts  Options
	table string
	scope models.Scoper
}

// New returns a repository for entity type T.
func New[T any, PT EntityPtr[T]](db *gorm.DB, opts Options) *Repository[T, PT] {
	zero := PT(new(T))
	return &Repository[T, PT]{
		db:    db,
		opts:  opts.normalize(),
		table: zero.TableName(),
		scope: zero,
	}
}

// WithTx returns a copy of the repository bound to tx.
func (r *Repository[T, PT]) WithTx(tx *gorm.DB) *Repository[T, PT] {
	clone := *r
	clone.db = tx
	return &clone
}

// DB returns the session the repository is bound to.
func (r *Repository[T, PT]) DB() *gorm.DB {
	return r.db
}

// Table returns the table name of T.
func (r *Repository[T, PT]) Table() string {
	return r.table
}

// Options returns the pagination settings.
func (r *Repository[T, PT]) Options() Options {
	return r.opts
}

func (r *Repository[T, PT]) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// Scoped starts a query on T restricted to active rows of tenantRef.
// Entity repositories build their own queries on top of it.
func (r *Repository[T, PT]) Scoped(ctx context.Context, tenantRef uuid.UUID) (*gorm.DB, error) {
	filter, err := r.filter(tenantRef, true)
	if err != nil {
		return nil, err
	}
	return r.conn(ctx).Model(new(T)).Where(filter), nil
}

func (r *Repository[T, PT]) filter(tenantRef uuid.UUID, activeOnly bool) (clause.Expression, error) {
	var (
		expr clause.Expression
		err  error
	)
	if activeOnly {
		expr, err = models.ActiveTenantFilter(r.scope, tenantRef)
	} else {
		expr, err = models.TenantFilter(r.scope, tenantRef)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", r.table, ErrScopeViolation, err)
	}
	return expr, nil
}

func (r *Repository[T, PT]) schema() (*schema.Schema, error) {
	stmt := &gorm.Statement{DB: r.db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("%s: parse model: %w", r.table, err)
	}
	return stmt.Schema, nil
}

// GetByID returns the active record id owned by tenantRef, or ErrNotFound.
func (r *Repository[T, PT]) GetByID(ctx context.Context, tenantRef, id uuid.UUID) (PT, error) {
	return r.take(ctx, tenantRef, id, true)
}

// GetByIDWithDeleted is GetByID without the active filter.
func (r *Repository[T, PT]) GetByIDWithDeleted(ctx context.Context, tenantRef, id uuid.UUID) (PT, error) {
	return r.take(ctx, tenantRef, id, false)
}

func (r *Repository[T, PT]) take(ctx context.Context, tenantRef, id uuid.UUID, activeOnly bool) (PT, error) {
	filter, err := r.filter(tenantRef, activeOnly)
	if err != nil {
		return nil, err
	}
	var out T
	if err := r.conn(ctx).Where(filter).Where(models.IDFilter(id)).Take(&out).Error; err != nil {
		return nil, translateError(r.table, err)
	}
	return PT(&out), nil
}

// First returns the first active record of tenantRef matching query, or ErrNotFound.
func (r *Repository[T, PT]) First(ctx context.Context, tenantRef uuid.UUID, query any, args ...any) (PT, error) {
	q, err := r.Scoped(ctx, tenantRef)
	if err != nil {
		return nil, err
	}
	var out T
	if err := q.Where(query, args...).Take(&out).Error; err != nil {
		return nil, translateError(r.table, err)
	}
	return PT(&out), nil
}

// List returns a page of active records of tenantRef, newest first.
func (r *Repository[T, PT]) List(ctx context.Context, tenantRef uuid.UUID, page Page) ([]PT, error) {
	q, err := r.Scoped(ctx, tenantRef)
	if err != nil {
		return nil, err
	}
	return r.Find(q, page)
}

// Find runs q with the repository's ordering and page clamping.
func (r *Repository[T, PT]) Find(q *gorm.DB, page Page) ([]PT, error) {
	skip, limit := r.opts.Window(page)
	var rows []T
	if err := q.Scopes(models.NewestFirst).Offset(skip).Limit(limit).Find(&rows).Error; err != nil {
		return nil, translateError(r.table, err)
	}
	out := make([]PT, len(rows))
	for i := range rows {
		out[i] = PT(&rows[i])
	}
	return out, nil
}

// Count returns the number of active records of tenantRef.
func (r *Repository[T, PT]) Count(ctx context.Context, tenantRef uuid.UUID) (int64, error) {
	q, err := r.Scoped(ctx, tenantRef)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, translateError(r.table, err)
	}
	return n, nil
}

// Create inserts entity under tenantRef. The logical id is generated when
// unset, timestamps are stamped and the engine assigns the sequence key.
func (r *Repository[T, PT]) Create(ctx context.Context, tenantRef uuid.UUID, entity PT) (PT, error) {
	if entity == nil {
		return nil, fmt.Errorf("%s: create: nil entity", r.table)
	}
	if _, err := r.filter(tenantRef, false); err != nil {
		return nil, err
	}
	entity.BindTenant(tenantRef)
	rec := entity.Record()
	rec.SequenceID = 0
	rec.Stamp()
	if err := r.conn(ctx).Create(entity).Error; err != nil {
		return nil, translateError(r.table, err)
	}
	return entity, nil
}

// Update applies changes to existing. Keys are Go field names or column
// names; protected fields are ignored and unknown keys are rejected. The
// persisted record is reloaded into existing and returned.
func (r *Repository[T, PT]) Update(ctx context.Context, existing PT, changes map[string]any) (PT, error) {
	if existing == nil {
		return nil, fmt.Errorf("%s: update: nil entity", r.table)
	}
	owner := existing.OwnerRef()
	filter, err := r.filter(owner, true)
	if err != nil {
		return nil, err
	}
	values, err := r.columns(changes)
	if err != nil {
		return nil, err
	}

	rec := existing.Record()
	prev := rec.UpdatedAt
	values[models.ColumnUpdatedAt] = rec.Touch()

	res := r.conn(ctx).Model(new(T)).Where(filter).Where(models.IDFilter(rec.LogicalID)).Updates(values)
	if res.Error != nil {
		rec.UpdatedAt = prev
		return nil, translateError(r.table, res.Error)
	}
	if res.RowsAffected == 0 {
		rec.UpdatedAt = prev
		return nil, ErrNotFound
	}

	fresh, err := r.GetByID(ctx, owner, rec.LogicalID)
	if err != nil {
		return nil, err
	}
	*existing = *fresh
	return existing, nil
}

func (r *Repository[T, PT]) columns(changes map[string]any) (map[string]any, error) {
	sch, err := r.schema()
	if err != nil {
		return nil, err
	}
	values := make(map[string]any, len(changes)+1)
	for key, value := range changes {
		if _, ok := protectedFields[key]; ok {
			continue
		}
		field := sch.LookUpField(key)
		if field == nil || field.DBName == "" {
			return nil, fmt.Errorf("%s: %w: %q", r.table, ErrInvalidField, key)
		}
		if _, ok := protectedFields[field.DBName]; ok {
			continue
		}
		values[field.DBName] = value
	}
	return values, nil
}

// SoftDelete marks the active record id of tenantRef as deleted. It reports
// false when no such record is visible.
func (r *Repository[T, PT]) SoftDelete(ctx context.Context, tenantRef, id uuid.UUID) (bool, error) {
	entity, err := r.GetByID(ctx, tenantRef, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	entity.Record().MarkDeleted()
	if err := r.saveState(ctx, entity); err != nil {
		return false, err
	}
	return true, nil
}

// Restore reverses a soft delete. Restoring an active record only refreshes
// its timestamp. A restored row that collides with an active unique key
// fails with a conflict.
func (r *Repository[T, PT]) Restore(ctx context.Context, tenantRef, id uuid.UUID) (PT, error) {
	entity, err := r.GetByIDWithDeleted(ctx, tenantRef, id)
	if err != nil {
		return nil, err
	}
	entity.Record().Restore()
	if err := r.saveState(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *Repository[T, PT]) saveState(ctx context.Context, entity PT) error {
	filter, err := r.filter(entity.OwnerRef(), false)
	if err != nil {
		return err
	}
	rec := entity.Record()
	res := r.conn(ctx).Model(new(T)).Where(filter).Where(models.IDFilter(rec.LogicalID)).Updates(map[string]any{
		models.ColumnIsDeleted: rec.IsDeleted,
		models.ColumnUpdatedAt: rec.UpdatedAt,
	})
	if res.Error != nil {
		return translateError(r.table, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Search returns active records of tenantRef where any of fields contains
// term, ignoring case. With no fields every string column is searched. An
// empty term lists the tenant's records.
func (r *Repository[T, PT]) Search(ctx context.Context, tenantRef uuid.UUID, term string, fields []string, page Page) ([]PT, error) {
	q, err := r.Scoped(ctx, tenantRef)
	if err != nil {
		return nil, err
	}
	cols, err := r.searchColumns(fields)
	if err != nil {
		return nil, err
	}
	if term = strings.TrimSpace(term); term != "" && len(cols) > 0 {
		q = q.Where(containsAny(cols, term))
	}
	return r.Find(q, page)
}

func (r *Repository[T, PT]) searchColumns(fields []string) ([]string, error) {
	sch, err := r.schema()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		var cols []string
		for _, f := range sch.Fields {
			if searchable(f) {
				cols = append(cols, f.DBName)
			}
		}
		return cols, nil
	}
	cols := make([]string, 0, len(fields))
	for _, name := range fields {
		f := sch.LookUpField(name)
		if !searchable(f) {
			return nil, fmt.Errorf("%s: %w: %q is not searchable", r.table, ErrInvalidField, name)
		}
		cols = append(cols, f.DBName)
	}
	return cols, nil
}

// searchable reports whether f is a text column. Columns declared with an
// explicit SQL type such as text keep a string Go type.
func searchable(f *schema.Field) bool {
	return f != nil && f.DBName != "" && f.IndirectFieldType.Kind() == reflect.String
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsAny builds a case-insensitive substring match across cols. A single
// column is returned bare: GORM joins a one-element OR group with OR.
func containsAny(cols []string, term string) clause.Expression {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	exprs := make([]clause.Expression, 0, len(cols))
	for _, col := range cols {
		exprs = append(exprs, clause.Expr{
			SQL:  `LOWER(?) LIKE ? ESCAPE '\'`,
			Vars: []any{clause.Column{Table: clause.CurrentTable, Name: col}, pattern},
		})
	}
	if len(exprs) == 1 {
		return exprs[0]
	}
	return clause.Or(exprs...)
}
