package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/piukhq/vela-sub000/internal/client"
	"github.com/piukhq/vela-sub000/internal/model"
	"github.com/piukhq/vela-sub000/internal/repository"
	"github.com/piukhq/vela-sub000/internal/taskstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type statusCall struct {
	slug   string
	status model.CampaignStatus
}

type fakeCampaignStore struct {
	campaigns map[string]*model.Campaign
	active    []model.Campaign
	activeErr error
	getErr    error

	countActive    int
	countActiveErr error

	statusCalls  []statusCall
	setStatusErr error

	recorded  []model.ProcessedTransaction
	recordErr error
}

func (f *fakeCampaignStore) Get(ctx context.Context, retailer, slug string) (*model.Campaign, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.campaigns[slug]
	if !ok {
		return nil, repository.ErrCampaignNotFound
	}
	return c, nil
}

func (f *fakeCampaignStore) Active(ctx context.Context, retailer string, at time.Time) ([]model.Campaign, error) {
	return f.active, f.activeErr
}

func (f *fakeCampaignStore) BySlugs(ctx context.Context, retailer string, slugs []string) ([]model.Campaign, error) {
	var out []model.Campaign
	for _, slug := range slugs {
		if c, ok := f.campaigns[slug]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCampaignStore) CountActive(ctx context.Context, retailer string) (int, error) {
	return f.countActive, f.countActiveErr
}

func (f *fakeCampaignStore) SetStatus(ctx context.Context, slug string, status model.CampaignStatus, at time.Time) error {
	if f.setStatusErr != nil {
		return f.setStatusErr
	}
	f.statusCalls = append(f.statusCalls, statusCall{slug: slug, status: status})
	return nil
}

func (f *fakeCampaignStore) RecordTransaction(ctx context.Context, tx model.ProcessedTransaction) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, tx)
	return nil
}

type fakeTaskStore struct {
	specs   []taskstore.Spec
	ids     []uuid.UUID
	deleted []uuid.UUID
	params  map[uuid.UUID]map[string]string
	audits  []any

	createErrOn int // 1-based call index that fails; 0 never fails
	getOrSetErr error
}

func (f *fakeTaskStore) CreateTask(ctx context.Context, spec taskstore.Spec) (uuid.UUID, error) {
	if f.createErrOn > 0 && len(f.specs)+1 == f.createErrOn {
		return uuid.Nil, context.DeadlineExceeded
	}
	id := uuid.New()
	f.specs = append(f.specs, spec)
	f.ids = append(f.ids, id)
	return id, nil
}

func (f *fakeTaskStore) DeleteTasks(ctx context.Context, ids []uuid.UUID) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeTaskStore) GetOrSetParam(ctx context.Context, taskID uuid.UUID, name string, factory func() string) (string, error) {
	if f.getOrSetErr != nil {
		return "", f.getOrSetErr
	}
	if f.params == nil {
		f.params = map[uuid.UUID]map[string]string{}
	}
	if f.params[taskID] == nil {
		f.params[taskID] = map[string]string{}
	}
	if v, ok := f.params[taskID][name]; ok {
		return v, nil
	}
	v := factory()
	f.params[taskID][name] = v
	return v, nil
}

func (f *fakeTaskStore) RecordAudit(ctx context.Context, taskID uuid.UUID, entry any) error {
	f.audits = append(f.audits, entry)
	return nil
}

type adjustCall struct {
	retailer      string
	holder        string
	campaign      string
	change        int64
	isTransaction bool
	token         string
}

type fakeLedger struct {
	adjusts   []adjustCall
	balances  []int64 // returned in call order; last value repeats
	adjustErr []error // per-call; nil or exhausted means success

	createCalls []string
	deleteCalls []string
	balancesErr error
}

func (f *fakeLedger) Adjust(ctx context.Context, retailer, holder, campaign string, change int64, isTransaction bool, token string, meta client.AdjustmentMetadata) (int64, error) {
	n := len(f.adjusts)
	f.adjusts = append(f.adjusts, adjustCall{
		retailer: retailer, holder: holder, campaign: campaign,
		change: change, isTransaction: isTransaction, token: token,
	})
	if n < len(f.adjustErr) && f.adjustErr[n] != nil {
		return 0, f.adjustErr[n]
	}
	if len(f.balances) == 0 {
		return 0, nil
	}
	if n >= len(f.balances) {
		return f.balances[len(f.balances)-1], nil
	}
	return f.balances[n], nil
}

func (f *fakeLedger) CreateCampaignBalances(ctx context.Context, retailer, campaign, token string) error {
	f.createCalls = append(f.createCalls, campaign)
	return f.balancesErr
}

func (f *fakeLedger) DeleteCampaignBalances(ctx context.Context, retailer, campaign, token string) error {
	f.deleteCalls = append(f.deleteCalls, campaign)
	return f.balancesErr
}

type allocationCall struct {
	rewardSlug     string
	params         client.AllocationParams
	conversionDate time.Time
	token          string
}

type fakeRewards struct {
	issued   []allocationCall
	pendings []allocationCall
	issueErr error

	cancelled []string
	converted []string
	deleted   []string
	lifecycleErr error
}

func (f *fakeRewards) Issue(ctx context.Context, retailer, rewardSlug string, req client.AllocationParams, token string) error {
	if f.issueErr != nil {
		return f.issueErr
	}
	f.issued = append(f.issued, allocationCall{rewardSlug: rewardSlug, params: req, token: token})
	return nil
}

func (f *fakeRewards) IssuePending(ctx context.Context, retailer, rewardSlug string, req client.AllocationParams, conversionDate time.Time, token string) error {
	if f.issueErr != nil {
		return f.issueErr
	}
	f.pendings = append(f.pendings, allocationCall{rewardSlug: rewardSlug, params: req, conversionDate: conversionDate, token: token})
	return nil
}

func (f *fakeRewards) CancelRewards(ctx context.Context, retailer, rewardSlug, campaign, token string) error {
	if f.lifecycleErr != nil {
		return f.lifecycleErr
	}
	f.cancelled = append(f.cancelled, campaign)
	return nil
}

func (f *fakeRewards) ConvertPendingRewards(ctx context.Context, retailer, campaign, token string) error {
	if f.lifecycleErr != nil {
		return f.lifecycleErr
	}
	f.converted = append(f.converted, campaign)
	return nil
}

func (f *fakeRewards) DeletePendingRewards(ctx context.Context, retailer, campaign, token string) error {
	if f.lifecycleErr != nil {
		return f.lifecycleErr
	}
	f.deleted = append(f.deleted, campaign)
	return nil
}

type fakeMirror struct {
	calls  []statusCall
	errFor map[string]error // by campaign slug
}

func (f *fakeMirror) UpdateStatus(ctx context.Context, retailer, rewardSlug, campaign string, status model.CampaignStatus) error {
	if err := f.errFor[campaign]; err != nil {
		return err
	}
	f.calls = append(f.calls, statusCall{slug: campaign, status: status})
	return nil
}

type fakeBus struct {
	topics    []string
	published [][]byte
	err       error
}

func (f *fakeBus) Publish(topic string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.published = append(f.published, data)
	return nil
}
