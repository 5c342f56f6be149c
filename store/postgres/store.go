package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the postgres migration executor
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tollgate/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("tollgate/postgres: migration failed: %w", err)
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
	_, err := s.pg.NewInsert(toPlanModel(p)).Exec(ctx)
	if isUniqueViolation(err) {
		return plan.ErrExists
	}
	return err
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	m := new(planModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", planID.String()).
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
	err := s.pg.NewSelect(m).
		Where("name = $1", name).
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
	q := s.pg.NewSelect(&models)

	if opts.ActiveOnly {
		q = q.Where("active = $1", true)
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
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return plan.ErrExists
		}
		return err
	}
	return expectRow(res, plan.ErrNotFound)
}

func (s *Store) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	res, err := s.pg.NewUpdate((*planModel)(nil)).
		Set("active = $1", false).
		Set("updated_at = $2", now()).
		Where("id = $3", planID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res, plan.ErrNotFound)
}

// ==================== Organization Store ====================

func (s *Store) CreateOrganization(ctx context.Context, o *organization.Organization) error {
	_, err := s.pg.NewInsert(toOrganizationModel(o)).Exec(ctx)
	if isUniqueViolation(err) {
		return organization.ErrExists
	}
	return err
}

func (s *Store) DeleteOrganization(ctx context.Context, orgID id.OrgID) error {
	_, err := s.pg.NewDelete((*organizationModel)(nil)).
		Where("id = $1", orgID.String()).
		Exec(ctx)
	return err
}

func (s *Store) GetOrganization(ctx context.Context, orgID id.OrgID) (*organization.Organization, error) {
	m := new(organizationModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", orgID.String()).
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
	err := s.pg.NewSelect(m).
		Where("slug = $1", slug).
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
	if err := s.pg.NewRaw(`SELECT COUNT(*) FROM tollgate_organizations`).Scan(ctx, &total); err != nil {
		return nil, 0, err
	}

	var models []organizationModel
	q := s.pg.NewSelect(&models)
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
	_, err := s.pg.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if isUniqueViolation(err) {
		return subscription.ErrConflict
	}
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
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
	q := s.pg.NewSelect(&models).Where("org_id = $1", orgID.String())

	if opts.Status != "" {
		q = q.Where("status = $2", string(opts.Status))
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
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("status = $1", string(subscription.StatusExpired)).
		Set("expired_at = $2", at).
		Set("updated_at = $3", at).
		Where("id = $4", subID.String()).
		Where("status = $5", string(subscription.StatusActive)).
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

// supersedeSQL expires the org's active subscriptions and inserts the new
// one in a single statement. The insert reads the expired set, so the
// update runs first; a concurrent writer that inserted an active row in
// the meantime trips the partial unique index.
const supersedeSQL = `
WITH expired AS (
    UPDATE tollgate_subscriptions
    SET status = 'expired', expired_at = $1, updated_at = $1
    WHERE org_id = $2 AND status = 'active'
    RETURNING id
), inserted AS (
    INSERT INTO tollgate_subscriptions (id, org_id, plan_id, status, start_date, end_date, created_at, updated_at)
    SELECT $3, $2, $4, $5, $6, $7, $8, $9
    WHERE (SELECT COUNT(*) FROM expired) >= 0
    RETURNING id
)
SELECT COUNT(*) FROM expired`

func (s *Store) SupersedeSubscription(ctx context.Context, sub *subscription.Subscription) (int64, error) {
	var expired int64
	err := s.pg.NewRaw(supersedeSQL,
		sub.StartDate.UTC(),
		sub.OrgID.String(),
		sub.ID.String(),
		sub.PlanID.String(),
		string(sub.Status),
		sub.StartDate,
		sub.EndDate,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Scan(ctx, &expired)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, subscription.ErrConflict
		}
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
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT (org_id, metric) DO UPDATE SET
    count = CASE WHEN tollgate_usage.period_start < EXCLUDED.period_start
        THEN EXCLUDED.count ELSE tollgate_usage.count + EXCLUDED.count END,
    last_reset_at = CASE WHEN tollgate_usage.period_start < EXCLUDED.period_start
        THEN EXCLUDED.updated_at ELSE tollgate_usage.last_reset_at END,
    period_start = CASE WHEN tollgate_usage.period_start < EXCLUDED.period_start
        THEN EXCLUDED.period_start ELSE tollgate_usage.period_start END,
    period_end = CASE WHEN tollgate_usage.period_start < EXCLUDED.period_start
        THEN EXCLUDED.period_end ELSE tollgate_usage.period_end END,
    updated_at = CASE WHEN tollgate_usage.period_start < EXCLUDED.period_start OR EXCLUDED.count <> 0
        THEN EXCLUDED.updated_at ELSE tollgate_usage.updated_at END
RETURNING count`

const decrementUsageSQL = `
UPDATE tollgate_usage
SET count = count - $1, updated_at = $2
WHERE org_id = $3 AND metric = $4 AND period_start = $5 AND count >= $1
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
	err := s.pg.NewRaw(decrementUsageSQL,
		delta, now.UTC(), orgID.String(), metric, w.Start.UTC(),
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
	err := s.pg.NewRaw(upsertUsageSQL,
		id.NewUsageID().String(),
		orgID.String(),
		metric,
		delta,
		w.Start.UTC(),
		w.End.UTC(),
		now.UTC(),
	).Scan(ctx, &count)
	return count, err
}

// usageRecord loads the (org, metric) row and stamps it with count, the
// value returned by the statement that changed it.
func (s *Store) usageRecord(ctx context.Context, orgID id.OrgID, metric string, count int64) (*usage.Record, error) {
	m := new(usageModel)
	err := s.pg.NewSelect(m).
		Where("org_id = $1", orgID.String()).
		Where("metric = $2", metric).
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

// isUniqueViolation reports a unique_violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "SQLSTATE 23505")
}
