// Package repository provides Postgres data access for campaigns, their
// rules, processed transactions, and embedded schema migrations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/piukhq/vela-sub000/internal/model"
)

var (
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrDuplicateTransaction = errors.New("transaction already processed")
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type CampaignStore struct {
	db *pgxpool.Pool
}

func NewCampaignStore(db *pgxpool.Pool) *CampaignStore {
	return &CampaignStore{db: db}
}

// Get reads a single campaign with its rules. The saga calls this fresh on
// every attempt; nothing here is cached so a concurrent cancellation is
// always observed.
func (s *CampaignStore) Get(ctx context.Context, retailer, slug string) (*model.Campaign, error) {
	campaigns, err := s.query(ctx, sq.Eq{"retailer_slug": retailer, "slug": slug})
	if err != nil {
		return nil, err
	}
	if len(campaigns) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrCampaignNotFound, retailer, slug)
	}
	return &campaigns[0], nil
}

// Active returns the retailer's ACTIVE campaigns whose start/end window
// covers the given instant.
func (s *CampaignStore) Active(ctx context.Context, retailer string, at time.Time) ([]model.Campaign, error) {
	return s.query(ctx, sq.And{
		sq.Eq{"retailer_slug": retailer, "status": model.CampaignActive},
		sq.Or{sq.Eq{"start_date": nil}, sq.LtOrEq{"start_date": at}},
		sq.Or{sq.Eq{"end_date": nil}, sq.GtOrEq{"end_date": at}},
	})
}

// BySlugs returns the subset of the requested campaigns that exist, in no
// particular order. Missing slugs are simply absent from the result.
func (s *CampaignStore) BySlugs(ctx context.Context, retailer string, slugs []string) ([]model.Campaign, error) {
	return s.query(ctx, sq.Eq{"retailer_slug": retailer, "slug": slugs})
}

// CountActive counts the retailer's ACTIVE campaigns across the whole
// portfolio, not just a batch.
func (s *CampaignStore) CountActive(ctx context.Context, retailer string) (int, error) {
	query, args, err := psql.Select("count(*)").
		From("campaigns").
		Where(sq.Eq{"retailer_slug": retailer, "status": model.CampaignActive}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active campaigns: %w", err)
	}
	return n, nil
}

// SetStatus flips a campaign's status locally. Activation stamps the start
// date, ending or cancelling stamps the end date.
func (s *CampaignStore) SetStatus(ctx context.Context, slug string, status model.CampaignStatus, at time.Time) error {
	update := psql.Update("campaigns").
		Set("status", status).
		Set("updated_at", at).
		Where(sq.Eq{"slug": slug})

	switch status {
	case model.CampaignActive:
		update = update.Set("start_date", at)
	case model.CampaignEnded, model.CampaignCancelled:
		update = update.Set("end_date", at)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCampaignNotFound, slug)
	}
	return nil
}

func (s *CampaignStore) query(ctx context.Context, where any) ([]model.Campaign, error) {
	query, args, err := psql.Select("slug", "retailer_slug", "name", "status", "loyalty_type", "start_date", "end_date").
		From("campaigns").
		Where(where).
		OrderBy("slug").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []model.Campaign
	var slugs []string
	index := map[string]int{}
	for rows.Next() {
		var c model.Campaign
		if err := rows.Scan(&c.Slug, &c.RetailerSlug, &c.Name, &c.Status, &c.LoyaltyType, &c.StartDate, &c.EndDate); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		index[c.Slug] = len(campaigns)
		campaigns = append(campaigns, c)
		slugs = append(slugs, c.Slug)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(campaigns) == 0 {
		return nil, nil
	}

	if err := s.loadEarnRules(ctx, slugs, campaigns, index); err != nil {
		return nil, err
	}
	if err := s.loadRewardRules(ctx, slugs, campaigns, index); err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (s *CampaignStore) loadEarnRules(ctx context.Context, slugs []string, campaigns []model.Campaign, index map[string]int) error {
	query, args, err := psql.Select("id", "campaign_slug", "threshold", "increment", "increment_multiplier", "max_amount").
		From("earn_rules").
		Where(sq.Eq{"campaign_slug": slugs}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return err
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("select earn rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r model.EarnRule
		if err := rows.Scan(&r.ID, &r.CampaignSlug, &r.Threshold, &r.Increment, &r.IncrementMultiplier, &r.MaxAmount); err != nil {
			return fmt.Errorf("scan earn rule: %w", err)
		}
		i := index[r.CampaignSlug]
		campaigns[i].EarnRules = append(campaigns[i].EarnRules, r)
	}
	return rows.Err()
}

func (s *CampaignStore) loadRewardRules(ctx context.Context, slugs []string, campaigns []model.Campaign, index map[string]int) error {
	query, args, err := psql.Select("campaign_slug", "reward_goal", "reward_slug", "allocation_window", "reward_cap").
		From("reward_rules").
		Where(sq.Eq{"campaign_slug": slugs}).
		ToSql()
	if err != nil {
		return err
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("select reward rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var slug string
		var r model.RewardRule
		if err := rows.Scan(&slug, &r.RewardGoal, &r.RewardSlug, &r.AllocationWindow, &r.RewardCap); err != nil {
			return fmt.Errorf("scan reward rule: %w", err)
		}
		rule := r
		campaigns[index[slug]].RewardRule = &rule
	}
	return rows.Err()
}

// RecordTransaction persists the immutable processed-transaction record.
// A duplicate transaction id reports ErrDuplicateTransaction and writes
// nothing.
func (s *CampaignStore) RecordTransaction(ctx context.Context, tx model.ProcessedTransaction) error {
	query, args, err := psql.Insert("processed_transactions").
		Columns("transaction_id", "account_holder_id", "retailer_slug", "amount", "datetime", "campaign_slugs").
		Values(tx.TransactionID, tx.AccountHolderID, tx.RetailerSlug, tx.Amount, tx.Datetime, tx.CampaignSlugs).
		Suffix("ON CONFLICT (transaction_id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert processed transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.TransactionID)
	}
	return nil
}
