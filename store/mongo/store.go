package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/period"
	"github.com/xraph/tollgate/plan"
	tollgatestore "github.com/xraph/tollgate/store"
	"github.com/xraph/tollgate/subscription"
	"github.com/xraph/tollgate/usage"
)

// Collection name constants.
const (
	colPlans         = "tollgate_plans"
	colOrganizations = "tollgate_organizations"
	colSubscriptions = "tollgate_subscriptions"
	colUsage         = "tollgate_usage"
)

// compile-time interface check
var _ tollgatestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tollgate collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("tollgate/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toPlanModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return plan.ErrExists
		}
		return fmt.Errorf("tollgate/mongo: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": planID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, plan.ErrNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get plan: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) GetPlanByName(ctx context.Context, name string) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"name": name}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, plan.ErrNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get plan by name: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel

	filter := bson.M{}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "price_amount", Value: 1}, {Key: "name", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tollgate/mongo: list plans: %w", err)
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

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return plan.ErrExists
		}
		return fmt.Errorf("tollgate/mongo: update plan: %w", err)
	}
	if res.MatchedCount() == 0 {
		return plan.ErrNotFound
	}
	return nil
}

func (s *Store) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	res, err := s.mdb.NewUpdate((*planModel)(nil)).
		Filter(bson.M{"_id": planID.String()}).
		Set("active", false).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tollgate/mongo: archive plan: %w", err)
	}
	if res.MatchedCount() == 0 {
		return plan.ErrNotFound
	}
	return nil
}

// ==================== Organization Store ====================

func (s *Store) CreateOrganization(ctx context.Context, o *organization.Organization) error {
	_, err := s.mdb.NewInsert(toOrganizationModel(o)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return organization.ErrExists
		}
		return fmt.Errorf("tollgate/mongo: create organization: %w", err)
	}
	return nil
}

func (s *Store) DeleteOrganization(ctx context.Context, orgID id.OrgID) error {
	_, err := s.mdb.Collection(colOrganizations).DeleteOne(ctx, bson.M{"_id": orgID.String()})
	if err != nil {
		return fmt.Errorf("tollgate/mongo: delete organization: %w", err)
	}
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, orgID id.OrgID) (*organization.Organization, error) {
	var m organizationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": orgID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, organization.ErrNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get organization: %w", err)
	}
	return fromOrganizationModel(&m)
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (*organization.Organization, error) {
	var m organizationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"slug": slug}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, organization.ErrNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get organization by slug: %w", err)
	}
	return fromOrganizationModel(&m)
}

func (s *Store) ListOrganizations(ctx context.Context, opts organization.ListOpts) ([]*organization.Organization, int64, error) {
	total, err := s.mdb.Collection(colOrganizations).CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("tollgate/mongo: count organizations: %w", err)
	}

	var models []organizationModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, 0, fmt.Errorf("tollgate/mongo: list organizations: %w", err)
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
	_, err := s.mdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return subscription.ErrConflict
		}
		return fmt.Errorf("tollgate/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("tollgate/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListActiveSubscriptions(ctx context.Context, orgID id.OrgID) ([]*subscription.Subscription, error) {
	return s.ListSubscriptions(ctx, orgID, subscription.ListOpts{Status: subscription.StatusActive})
}

func (s *Store) ListSubscriptions(ctx context.Context, orgID id.OrgID, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{"org_id": orgID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tollgate/mongo: list subscriptions: %w", err)
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
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String(), "status": string(subscription.StatusActive)}).
		Set("status", string(subscription.StatusExpired)).
		Set("expired_at", at).
		Set("updated_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tollgate/mongo: expire subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		// Already expired, or missing.
		if _, err := s.GetSubscription(ctx, subID); err != nil {
			return err
		}
	}
	return nil
}

// SupersedeSubscription expires the org's active subscriptions and inserts
// sub in one transaction, so a failed insert leaves the old subscription
// active. Transactions need a replica set or sharded cluster.
func (s *Store) SupersedeSubscription(ctx context.Context, sub *subscription.Subscription) (int64, error) {
	session, err := s.mdb.Client().StartSession()
	if err != nil {
		return 0, fmt.Errorf("tollgate/mongo: supersede subscription: %w", err)
	}
	defer session.EndSession(ctx)

	at := sub.StartDate.UTC()
	expired, err := session.WithTransaction(ctx, func(sctx context.Context) (any, error) {
		res, err := s.mdb.Collection(colSubscriptions).UpdateMany(sctx,
			bson.M{"org_id": sub.OrgID.String(), "status": string(subscription.StatusActive)},
			bson.M{"$set": bson.M{
				"status":     string(subscription.StatusExpired),
				"expired_at": at,
				"updated_at": at,
			}},
		)
		if err != nil {
			return int64(0), fmt.Errorf("tollgate/mongo: supersede subscription: %w", err)
		}
		if err := s.CreateSubscription(sctx, sub); err != nil {
			return int64(0), err
		}
		return res.ModifiedCount, nil
	})
	if err != nil {
		return 0, err
	}
	return expired.(int64), nil //nolint:forcetypeassert // set by the callback above
}

// ==================== Usage Store ====================

func (s *Store) GetOrCreateUsage(ctx context.Context, orgID id.OrgID, metric string, w period.Window, now time.Time) (*usage.Record, error) {
	return s.IncrementUsage(ctx, orgID, metric, 0, w, now)
}

func (s *Store) IncrementUsage(ctx context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*usage.Record, error) {
	if err := s.rollover(ctx, orgID, metric, w, now); err != nil {
		return nil, err
	}

	filter := bson.M{"org_id": orgID.String(), "metric": metric}
	set := bson.M{}
	onInsert := bson.M{
		"_id":          id.NewUsageID().String(),
		"period_start": w.Start.UTC(),
		"period_end":   w.End.UTC(),
		"created_at":   now.UTC(),
	}
	if delta != 0 {
		set["updated_at"] = now.UTC()
	} else {
		onInsert["updated_at"] = now.UTC()
	}
	update := bson.M{
		"$inc":         bson.M{"count": delta},
		"$setOnInsert": onInsert,
	}
	if len(set) > 0 {
		update["$set"] = set
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var m usageModel
	err := s.mdb.Collection(colUsage).FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if mongo.IsDuplicateKeyError(err) {
		// Lost the insert race on the (org_id, metric) index; the
		// document exists now.
		err = s.mdb.Collection(colUsage).FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	}
	if err != nil {
		return nil, fmt.Errorf("tollgate/mongo: increment usage: %w", err)
	}
	return fromUsageModel(&m)
}

func (s *Store) DecrementUsage(ctx context.Context, orgID id.OrgID, metric string, delta int64, w period.Window, now time.Time) (*usage.Record, error) {
	if _, err := s.GetOrCreateUsage(ctx, orgID, metric, w, now); err != nil {
		return nil, err
	}

	filter := bson.M{
		"org_id":       orgID.String(),
		"metric":       metric,
		"period_start": w.Start.UTC(),
		"count":        bson.M{"$gte": delta},
	}
	update := bson.M{
		"$inc": bson.M{"count": -delta},
		"$set": bson.M{"updated_at": now.UTC()},
	}

	var m usageModel
	err := s.mdb.Collection(colUsage).
		FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil //nolint:nilnil // guard did not match
		}
		return nil, fmt.Errorf("tollgate/mongo: decrement usage: %w", err)
	}
	return fromUsageModel(&m)
}

// rollover moves a record from an earlier window into w with a zero
// count. The filter only matches a stale document, so concurrent callers
// reset it once.
func (s *Store) rollover(ctx context.Context, orgID id.OrgID, metric string, w period.Window, now time.Time) error {
	_, err := s.mdb.Collection(colUsage).UpdateOne(ctx,
		bson.M{
			"org_id":       orgID.String(),
			"metric":       metric,
			"period_start": bson.M{"$lt": w.Start.UTC()},
		},
		bson.M{"$set": bson.M{
			"count":         int64(0),
			"period_start":  w.Start.UTC(),
			"period_end":    w.End.UTC(),
			"last_reset_at": now.UTC(),
			"updated_at":    now.UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("tollgate/mongo: roll over usage: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tollgate collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPlans: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "active", Value: 1}, {Key: "price_amount", Value: 1}}},
		},
		colOrganizations: {
			{
				Keys:    bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{
				Keys: bson.D{{Key: "org_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": string(subscription.StatusActive)}),
			},
		},
		colUsage: {
			{
				Keys:    bson.D{{Key: "org_id", Value: 1}, {Key: "metric", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
