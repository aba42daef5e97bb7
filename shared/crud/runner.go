// Package crud holds the service and HTTP layers shared by every entity:
// transactional writes with retry, change events after commit, and the
// generic gin handlers mounted by the admin and simulation services.
package crud

import (
	"context"

	"gorm.io/gorm"

	"github.com/pavitra93/go-simulation-admin/shared/events"
	"github.com/pavitra93/go-simulation-admin/shared/logging"
	"github.com/pavitra93/go-simulation-admin/shared/utils"
)

// Runner owns transaction boundaries. Repositories bound to the tx passed to
// a unit of work share its commit or rollback.
type Runner struct {
	db     *gorm.DB
	retry  utils.RetryPolicy
	events events.Publisher
}

// NewRunner returns a runner on db. A nil publisher drops events.
func NewRunner(db *gorm.DB, retry utils.RetryPolicy, pub events.Publisher) *Runner {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Runner{db: db, retry: retry, events: pub}
}

// DB returns the root session.
func (r *Runner) DB() *gorm.DB {
	return r.db
}

// Work is one attempt of a transactional unit. It returns the events to
// publish once the transaction commits.
type Work func(tx *gorm.DB) ([]events.ChangeEvent, error)

// InTx runs work in a transaction, retrying the whole transaction on
// transient failures. Events are published only after a successful commit.
func (r *Runner) InTx(ctx context.Context, work Work) error {
	var pending []events.ChangeEvent
	err := utils.Retry(ctx, r.retry, func(ctx context.Context) error {
		pending = nil
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			evs, err := work(tx)
			if err != nil {
				return err
			}
			pending = evs
			return nil
		})
	})
	if err != nil {
		return err
	}
	r.publish(ctx, pending)
	return nil
}

// Read runs a read-only call with retry and no transaction.
func (r *Runner) Read(ctx context.Context, fn func(db *gorm.DB) error) error {
	return utils.Retry(ctx, r.retry, func(ctx context.Context) error {
		return fn(r.db)
	})
}

func (r *Runner) publish(ctx context.Context, evs []events.ChangeEvent) {
	if len(evs) == 0 {
		return
	}
	if err := r.events.Publish(ctx, evs...); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("events", len(evs)).Warn("Change events not published")
	}
}
