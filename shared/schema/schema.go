// Package schema derives the indexes and constraints of every table from its
// name and base kind, and applies them at migration time. Runtime entity types
// carry no schema-generation logic.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/pavitra93/go-simulation-admin/shared/models"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

type Kind string

const (
	KindIndex      Kind = "index"
	KindUnique     Kind = "unique"
	KindForeignKey Kind = "foreign_key"
	KindCheck      Kind = "check"
)

// activePredicate restricts partial indexes to rows visible by default.
const activePredicate = models.ColumnIsDeleted + " = false"

// Artifact is one named schema object.
type Artifact struct {
	Name  string
	Kind  Kind
	Table string
	SQL   string
}

// Table declares a table and the domain keys that must be unique among its
// active rows. Tenant-scoped keys are prefixed with tenant_ref automatically.
type Table struct {
	Name   string
	Model  models.Entity
	Unique [][]string
}

// For declares the table of model.
func For(model models.Entity, unique ...[]string) Table {
	return Table{Name: model.TableName(), Model: model, Unique: unique}
}

// Scoped reports whether rows of the table belong to a tenant.
func (t Table) Scoped() bool {
	return t.Model.ScopeColumn() == models.ColumnTenantRef
}

// Artifacts returns the schema objects of t for dialect, in creation order.
func (t Table) Artifacts(dialect string) []Artifact {
	var out []Artifact
	add := func(kind Kind, name, format string, args ...any) {
		out = append(out, Artifact{Name: name, Kind: kind, Table: t.Name, SQL: fmt.Sprintf(format, args...)})
	}

	name := "ux_" + t.Name + "_" + models.ColumnLogicalID
	add(KindUnique, name, "CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)", name, t.Name, models.ColumnLogicalID)

	name = "ix_" + t.Name + "_active"
	add(KindIndex, name, "CREATE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s",
		name, t.Name, models.ColumnSequenceID, activePredicate)

	if t.Scoped() {
		name = "ix_" + t.Name + "_tenant_active"
		add(KindIndex, name, "CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s) WHERE %s",
			name, t.Name, models.ColumnTenantRef, models.ColumnSequenceID, activePredicate)
	}

	for _, cols := range t.Unique {
		name = "ux_" + t.Name + "_" + strings.Join(cols, "_")
		keyCols := cols
		if t.Scoped() {
			keyCols = append([]string{models.ColumnTenantRef}, cols...)
		}
		add(KindUnique, name, "CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s",
			name, t.Name, strings.Join(keyCols, ", "), activePredicate)
	}

	// SQLite cannot add constraints to an existing table.
	if dialect != DialectPostgres {
		return out
	}

	if t.Scoped() {
		name = "fk_" + t.Name + "_tenant"
		add(KindForeignKey, name, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			t.Name, name, models.ColumnTenantRef, models.Tenant{}.TableName(), models.ColumnLogicalID)
	}

	name = "ck_" + t.Name + "_updated_after_created"
	add(KindCheck, name, "ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s >= %s)",
		t.Name, name, models.ColumnUpdatedAt, models.ColumnCreatedAt)
	return out
}

// Registry lists every table, tenants first so foreign keys resolve.
func Registry() []Table {
	return []Table{
		For(&models.Tenant{}, []string{"slug"}, []string{"subdomain"}),
		For(&models.User{}, []string{"email"}),
		For(&models.Organization{}, []string{"name"}),
		For(&models.Permission{}, []string{"user_ref", "resource", "action"}),
		For(&models.SimulationModel{}, []string{"name", "version"}),
		For(&models.Scenario{}, []string{"name"}),
		For(&models.Analysis{}),
		For(&models.UsageStat{}),
	}
}

// Plan renders the DDL of tables for dialect without touching a database.
func Plan(dialect string, tables ...Table) string {
	var b strings.Builder
	for _, t := range tables {
		fmt.Fprintf(&b, "-- %s\n", t.Name)
		for _, a := range t.Artifacts(dialect) {
			b.WriteString(a.SQL)
			b.WriteString(";\n")
		}
	}
	return b.String()
}

// Migrate creates or alters the columns of tables with AutoMigrate and then
// applies their derived indexes and constraints. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *gorm.DB, log logrus.FieldLogger, tables ...Table) error {
	db = db.WithContext(ctx)
	dialect := db.Dialector.Name()

	for _, t := range tables {
		if err := db.AutoMigrate(t.Model); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", t.Name, err)
		}
		for _, a := range t.Artifacts(dialect) {
			if a.Kind == KindForeignKey || a.Kind == KindCheck {
				exists, err := hasConstraint(db, a.Table, a.Name)
				if err != nil {
					return fmt.Errorf("failed to inspect %s: %w", a.Name, err)
				}
				if exists {
					continue
				}
			}
			if err := db.Exec(a.SQL).Error; err != nil {
				return fmt.Errorf("failed to apply %s: %w", a.Name, err)
			}
			log.WithFields(logrus.Fields{"table": a.Table, "artifact": a.Name, "kind": a.Kind}).Debug("Schema artifact applied")
		}
		log.WithField("table", t.Name).Info("Table migrated")
	}
	return nil
}

func hasConstraint(db *gorm.DB, table, name string) (bool, error) {
	var n int64
	err := db.Raw(
		"SELECT COUNT(*) FROM information_schema.table_constraints WHERE table_schema = CURRENT_SCHEMA() AND table_name = ? AND constraint_name = ?",
		table, name,
	).Scan(&n).Error
	return n > 0, err
}
