package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the sqlite migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/period"
	"github.com/xraph/tollgate/plan"
	tollgatestore "github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/usage"
)

// compile-time interface check
var _ tollgatestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tollgate/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tollgate/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	_, err := s.sdb.NewInsert(toPlanModel(p)).Exec(ctx)
	if isUniqueViolation(err) {
		return plan.ErrExists
	}
	return err
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	m := new(planModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", planID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, plan.ErrNotFound
		}
		return nil, err
	}
	return fromPlanModel(m)
}

func (s *Store) GetPlanByName(ctx context.Context, name string) (*plan.Plan, error) {
	m := new(planModel)
	err := s.sdb.NewSelect(m).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, plan.ErrNotFound
		}
		return nil, err
	}
	return fromPlanModel(m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	q := s.sdb.NewSelect(&models)

	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("price_amount ASC, name ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) UpdatePlan(ctx context.Context, p *plan.Plan) error {
	m := toPlanModel(p)
	m.UpdatedAt = now()
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return plan.ErrExists
		}
		return err
	}
	return expectRow(res, plan.ErrNotFound)
}

func (s *Store) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	res, err := s.sdb.NewUpdate((*planModel)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", now()).
		Where("id = ?", planID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, plan.ErrNotFound)
}

// ==================== Organization Store ====================

func (s *Store) CreateOrganization(ctx context.Context, o *organization.Organization) error {
	_, err := s.sdb.NewInsert(toOrganizationModel(o)).Exec(ctx)
	if isUniqueViolation(err) {
		return organization.ErrExists
	}
	return err
}

func (s *Store) DeleteOrganization(ctx context.Context, orgID id.OrgID) error {
	_, err := s.sdb.NewDelete((*organizationModel)(nil)).
		Where("id = ?", orgID.String()).
		Exec(ctx)
	return err
}

func (s *Store) GetOrganization(ctx context.Context, orgID id.OrgID) (*organization.Organization, error) {
	m := new(organizationModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", orgID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, organization.ErrNotFound
		}
		return nil, err
	}
	return fromOrganizationModel(m)
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (*organization.Organization, error) {
	m := new(organizationModel)
	err := s.sdb.NewSelect(m).
		Where("slug = ?", slug).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, organization.ErrNotFound
		}
		return nil, err
	}
	return fromOrganizationModel(m)
}

func (s *Store) ListOrganizations(ctx context.Context, opts organization.ListOpts) ([]*organization.Organization, int64, error) {
	var total int64
	if err := s.sdb.NewRaw(`SELECT COUNT(*) FROM tollgate_organizations`).Scan(ctx, &total); err != nil {
		return nil, 0, err
	}

	var models []organizationModel
	q := s.sdb.NewSelect(&models)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, 0, err
	}

	result := make([]*organization.Organization, len(models))
	for i := range models {
		o, err := fromOrganizationModel(&models[i])
		if err != nil {
			return nil, 0, err
		}
		result[i] = o
	}
	return result, total, nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.sdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if isUniqueViolation(err) {
		return subscription.ErrConflict
	}
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subscription.ErrNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListActiveSubscriptions(ctx context.Context, orgID id.OrgID) ([]*subscription.Subscription, error) {
	return s.ListSubscriptions(ctx, orgID, subscription.ListOpts{Status: subscription.StatusActive})
}

func (s *Store) ListSubscriptions(ctx context.Context, orgID id.OrgID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.sdb.NewSelect(&models).Where("org_id = ?", orgID.String())

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) ExpireSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	at = at.UTC()
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("status = ?", string(subscription.StatusExpired)).
		Set("expired_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", subID.String()).
		Where("status = ?", string(subscription.StatusActive)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Already expired, or missing.
		if _, err := s.GetSubscription(ctx, subID); err != nil {
			return err
		}
	}
	return nil
}

// SupersedeSubscription expires the org's active subscriptions and inserts
// sub in one transaction. A concurrent writer that inserted an active row
// first trips the partial unique index and nothing is changed.
func (s *Store) SupersedeSubscription(ctx context.Context, sub *subscription.Subscription) (expired int64, err error) {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() //nolint:errcheck // the original error is returned
		}
	}()

	at := sub.StartDate.UTC()
	res, err := tx.NewUpdate((*subscriptionModel)(nil)).
		Set("status = ?", string(subscription.StatusExpired)).
		Set("expired_at = ?", at).
		Set("updated_at = ?", at).
		Where("org_id = ?", sub.OrgID.String()).
		Where("status = ?", string(subscription.StatusActive)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	expired, err = res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err = tx.NewInsert(toSubscriptionModel(sub)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			err = subscription.ErrConflict
		}
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return expired, nil
}

// ==================== Usage Store ====================

// upsertUsageSQL creates the (org, metric) row or adds to it. A row from
// an earlier window is rolled into the new one with the added amount as
// its count. Every SET expression reads the pre-update row.
const upsertUsageSQL = `
INSERT INTO tollgate_usage (id, org_id, metric, count, period_start, period_end, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (org_id, metric) DO UPDATE SET
    count = CASE WHEN tollgate_usage.period_start < excluded.period_start
        THEN excluded.count ELSE tollgate_usage.count + excluded.count END,
    last_reset_at = CASE WHEN tollgate_usage.period_start < excluded.period_start
        THEN excluded.updated_at ELSE tollgate_usage.last_reset_at END,
    period_start = CASE WHEN tollgate_usage.period_start < excluded.period_start
        THEN excluded.period_start ELSE tollgate_usage.period_start END,
    period_end = CASE WHEN tollgate_usage.period_start < excluded.period_start
        THEN excluded.period_end ELSE tollgate_usage.period_end END,
    updated_at = CASE WHEN tollgate_usage.period_start < excluded.period_start OR excluded.count <> 0
        THEN excluded.updated_at ELSE tollgate_usage.updated_at END
RETURNING count`

const decrementUsageSQL = `
UPDATE tollgate_usage
SET count = count - ?, updated_at = ?
WHERE org_id = ? AND metric = ? AND period_start = ? AND count >= ?
RETURNING count`

func (s *Store) GetOrCreateUsage(ctx context.Context, orgID id.OrgID, metric string, w period.Window, now time.Time) (*usage.Record, error) {
	return s.IncrementUsage(ctx, orgID, metric, 0, w, now)
}

func (s *Store) IncrementUsage(ctx context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*usage.Record, error) {
	count, err := s.upsertUsage(ctx, orgID, metric, delta, w, now)
	if err != nil {
		return nil, err
	}
	return s.usageRecord(ctx, orgID, metric, count)
}

func (s *Store) DecrementUsage(ctx context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*usage.Record, error) {
	if _, err := s.upsertUsage(ctx, orgID, metric, 0, w, now); err != nil {
		return nil, err
	}

	var count int64
	err := s.sdb.NewRaw(decrementUsageSQL,
		delta, now.UTC(), orgID.String(), metric, w.Start.UTC(), delta,
	).Scan(ctx, &count)
	if err != nil {
		if isNoRows(err) {
			return nil, nil //nolint:nilnil // guard did not match
		}
		return nil, err
	}
	return s.usageRecord(ctx, orgID, metric, count)
}

func (s *Store) upsertUsage(ctx context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (int64, error) {
	var count int64
	err := s.sdb.NewRaw(upsertUsageSQL,
		id.NewUsageID().String(),
		orgID.String(),
		metric,
		delta,
		w.Start.UTC(),
		w.End.UTC(),
		now.UTC(),
		now.UTC(),
	).Scan(ctx, &count)
	return count, err
}

// usageRecord loads the (org, metric) row and stamps it with count, the
// value returned by the statement that changed it.
func (s *Store) usageRecord(ctx context.Context, orgID id.OrgID, metric string, count int64) (*usage.Record, error) {
	m := new(usageModel)
	err := s.sdb.NewSelect(m).
		Where("org_id = ?", orgID.String()).
		Where("metric = ?", metric).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := fromUsageModel(m)
	if err != nil {
		return nil, err
	}
	rec.Count = count
	return rec, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// rowsAffected is the part of an Exec result expectRow needs.
type rowsAffected interface {
	RowsAffected() (int64, error)
}

func expectRow(res rowsAffected, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a failed UNIQUE constraint.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
