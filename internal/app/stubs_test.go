package app

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/WeAreKoji/getkoji-sub002/internal/domain"
	"github.com/WeAreKoji/getkoji-sub002/internal/store"
	"github.com/WeAreKoji/getkoji-sub002/pkg/stripeclient"
)

// fakeRepo is an in-memory Repository that mirrors the conditional-update
// semantics of the SQL layer, so service tests exercise the same guards the
// real store enforces.
type fakeRepo struct {
	accounts  map[uuid.UUID]*domain.CreatorPayoutAccount // keyed by creator ID
	subs      map[uuid.UUID]*domain.Subscription
	payments  []domain.SubscriptionPayment
	transfers map[uuid.UUID]*domain.FailedTransfer
	referrals map[uuid.UUID]*domain.CreatorReferral
	events    map[uuid.UUID]*domain.RevenueEvent
	refunds   map[uuid.UUID]*domain.RefundRequest

	accrueErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts:  make(map[uuid.UUID]*domain.CreatorPayoutAccount),
		subs:      make(map[uuid.UUID]*domain.Subscription),
		transfers: make(map[uuid.UUID]*domain.FailedTransfer),
		referrals: make(map[uuid.UUID]*domain.CreatorReferral),
		events:    make(map[uuid.UUID]*domain.RevenueEvent),
		refunds:   make(map[uuid.UUID]*domain.RefundRequest),
	}
}

func (f *fakeRepo) GetPayoutAccountByCreatorID(ctx context.Context, creatorID uuid.UUID) (*domain.CreatorPayoutAccount, error) {
	acct, ok := f.accounts[creatorID]
	if !ok {
		return nil, store.ErrPayoutAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (f *fakeRepo) EnsurePayoutAccount(ctx context.Context, creatorID uuid.UUID) (*domain.CreatorPayoutAccount, error) {
	if acct, ok := f.accounts[creatorID]; ok {
		cp := *acct
		return &cp, nil
	}
	acct := &domain.CreatorPayoutAccount{ID: uuid.New(), CreatorID: creatorID}
	f.accounts[creatorID] = acct
	cp := *acct
	return &cp, nil
}

func (f *fakeRepo) SetPayoutAccountStripeID(ctx context.Context, creatorID uuid.UUID, stripeAccountID string) (*domain.CreatorPayoutAccount, error) {
	acct, ok := f.accounts[creatorID]
	if !ok {
		return nil, store.ErrPayoutAccountNotFound
	}
	if acct.StripeAccountID == nil {
		acct.StripeAccountID = &stripeAccountID
	}
	cp := *acct
	return &cp, nil
}

func (f *fakeRepo) UpdatePayoutAccountFlags(ctx context.Context, creatorID uuid.UUID, onboardingComplete, payoutsEnabled, chargesEnabled bool) (*domain.CreatorPayoutAccount, error) {
	acct, ok := f.accounts[creatorID]
	if !ok {
		return nil, store.ErrPayoutAccountNotFound
	}
	acct.OnboardingComplete = onboardingComplete
	acct.PayoutsEnabled = payoutsEnabled
	acct.ChargesEnabled = chargesEnabled
	cp := *acct
	return &cp, nil
}

func (f *fakeRepo) GetSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, store.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeRepo) ListSubscriptionsBySubscriberID(ctx context.Context, subscriberID uuid.UUID) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for _, sub := range f.subs {
		if sub.SubscriberID == subscriberID {
			subs = append(subs, *sub)
		}
	}
	return subs, nil
}

func (f *fakeRepo) UpdateSubscriptionPrice(ctx context.Context, id uuid.UUID, priceID string) (*domain.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok || sub.Status != domain.SubscriptionActive {
		return nil, store.ErrSubscriptionNotFound
	}
	sub.StripePriceID = priceID
	cp := *sub
	return &cp, nil
}

func (f *fakeRepo) PauseSubscription(ctx context.Context, id uuid.UUID, pauseUntil time.Time) (*domain.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok || sub.Status != domain.SubscriptionActive {
		return nil, store.ErrSubscriptionNotFound
	}
	sub.Status = domain.SubscriptionPaused
	sub.PauseUntil = &pauseUntil
	cp := *sub
	return &cp, nil
}

func (f *fakeRepo) ResumeSubscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok || sub.Status != domain.SubscriptionPaused {
		return nil, store.ErrSubscriptionNotFound
	}
	sub.Status = domain.SubscriptionActive
	sub.PauseUntil = nil
	cp := *sub
	return &cp, nil
}

func (f *fakeRepo) MarkSubscriptionCancelAtPeriodEnd(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok || sub.Status == domain.SubscriptionCanceled {
		return nil, store.ErrSubscriptionNotFound
	}
	sub.CancelAtPeriodEnd = true
	cp := *sub
	return &cp, nil
}

func (f *fakeRepo) GetLatestPaymentBySubscriptionID(ctx context.Context, subscriptionID uuid.UUID) (*domain.SubscriptionPayment, error) {
	var latest *domain.SubscriptionPayment
	for i := range f.payments {
		p := &f.payments[i]
		if p.SubscriptionID != subscriptionID {
			continue
		}
		if latest == nil || p.PaidAt.After(latest.PaidAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, store.ErrPaymentNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeRepo) CreateFailedTransfer(ctx context.Context, ft *domain.FailedTransfer) error {
	if ft.ID == uuid.Nil {
		ft.ID = uuid.New()
	}
	ft.CreatedAt = time.Now().UTC()
	cp := *ft
	f.transfers[ft.ID] = &cp
	return nil
}

func (f *fakeRepo) ListRetryableTransfers(ctx context.Context, maxRetries, limit int) ([]domain.FailedTransfer, error) {
	var out []domain.FailedTransfer
	for _, ft := range f.transfers {
		if ft.ResolvedAt == nil && ft.RetryCount < maxRetries {
			out = append(out, *ft)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) ClaimTransferAttempt(ctx context.Context, id uuid.UUID, maxRetries int, attemptAt, staleBefore time.Time) (*domain.FailedTransfer, error) {
	ft, ok := f.transfers[id]
	if !ok {
		return nil, nil
	}
	if ft.ResolvedAt != nil || ft.RetryCount >= maxRetries {
		return nil, nil
	}
	if ft.LastRetryAt != nil && !ft.LastRetryAt.Before(staleBefore) {
		return nil, nil
	}
	ft.LastRetryAt = &attemptAt
	cp := *ft
	return &cp, nil
}

func (f *fakeRepo) ResolveTransfer(ctx context.Context, id uuid.UUID, stripeTransferID string, resolvedAt time.Time) (*domain.FailedTransfer, error) {
	ft, ok := f.transfers[id]
	if !ok {
		return nil, store.ErrTransferNotFound
	}
	if ft.ResolvedAt != nil {
		return nil, nil
	}
	ft.ResolvedAt = &resolvedAt
	ft.StripeTransferID = &stripeTransferID
	cp := *ft
	return &cp, nil
}

func (f *fakeRepo) RecordTransferFailure(ctx context.Context, id uuid.UUID, errorMessage string) (*domain.FailedTransfer, error) {
	ft, ok := f.transfers[id]
	if !ok {
		return nil, store.ErrTransferNotFound
	}
	ft.RetryCount++
	ft.ErrorMessage = errorMessage
	cp := *ft
	return &cp, nil
}

func (f *fakeRepo) GetReferralByReferredCreatorID(ctx context.Context, creatorID uuid.UUID) (*domain.CreatorReferral, error) {
	for _, ref := range f.referrals {
		if ref.ReferredCreatorID == creatorID {
			cp := *ref
			return &cp, nil
		}
	}
	return nil, store.ErrReferralNotFound
}

func (f *fakeRepo) ActivateReferral(ctx context.Context, id uuid.UUID, activatedAt time.Time) (*domain.CreatorReferral, error) {
	ref, ok := f.referrals[id]
	if !ok || ref.Status != domain.ReferralPending {
		return nil, nil
	}
	ref.Status = domain.ReferralActive
	ref.ActivatedAt = &activatedAt
	cp := *ref
	return &cp, nil
}

func (f *fakeRepo) AccrueCommission(ctx context.Context, id uuid.UUID, amount int64) error {
	if f.accrueErr != nil {
		return f.accrueErr
	}
	ref, ok := f.referrals[id]
	if !ok || ref.ActivatedAt == nil {
		return store.ErrReferralNotFound
	}
	ref.TotalCommission += amount
	ref.UnpaidCommission += amount
	return nil
}

func (f *fakeRepo) ExpireReferrals(ctx context.Context, now time.Time, windowMonths int) ([]domain.CreatorReferral, error) {
	var expired []domain.CreatorReferral
	for _, ref := range f.referrals {
		if ref.Status != domain.ReferralActive || ref.ActivatedAt == nil {
			continue
		}
		if !ref.ActivatedAt.AddDate(0, windowMonths, 0).After(now) {
			ref.Status = domain.ReferralExpired
			expired = append(expired, *ref)
		}
	}
	return expired, nil
}

func (f *fakeRepo) ListReferralsWithUnpaidCommission(ctx context.Context, limit int) ([]domain.CreatorReferral, error) {
	var out []domain.CreatorReferral
	for _, ref := range f.referrals {
		if ref.UnpaidCommission > 0 {
			out = append(out, *ref)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) DeductUnpaidCommission(ctx context.Context, id uuid.UUID, amount int64) (bool, error) {
	ref, ok := f.referrals[id]
	if !ok || ref.UnpaidCommission < amount {
		return false, nil
	}
	ref.UnpaidCommission -= amount
	return true, nil
}

func (f *fakeRepo) ListUnprocessedRevenueEvents(ctx context.Context, limit int) ([]domain.RevenueEvent, error) {
	var out []domain.RevenueEvent
	for _, ev := range f.events {
		if ev.ProcessedAt == nil {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) MarkRevenueEventProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	ev, ok := f.events[id]
	if !ok || ev.ProcessedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	ev.ProcessedAt = &now
	return true, nil
}

func (f *fakeRepo) LifetimeQualifyingRevenue(ctx context.Context, creatorID uuid.UUID, asOf time.Time) (int64, error) {
	var total int64
	for _, ev := range f.events {
		if ev.CreatorID == creatorID && !ev.OccurredAt.After(asOf) {
			total += ev.Amount
		}
	}
	return total, nil
}

func (f *fakeRepo) CreateRefundRequest(ctx context.Context, req *domain.RefundRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt = time.Now().UTC()
	cp := *req
	f.refunds[req.ID] = &cp
	return nil
}

func (f *fakeRepo) GetRefundRequestByID(ctx context.Context, id uuid.UUID) (*domain.RefundRequest, error) {
	req, ok := f.refunds[id]
	if !ok {
		return nil, store.ErrRefundNotFound
	}
	cp := *req
	return &cp, nil
}

func (f *fakeRepo) ListRefundRequestsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.RefundRequest, error) {
	var out []domain.RefundRequest
	for _, req := range f.refunds {
		if req.UserID == userID {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeRepo) DecideRefundRequest(ctx context.Context, id uuid.UUID, status domain.RefundStatus, stripeRefundID, adminNotes *string, decidedAt time.Time) (*domain.RefundRequest, error) {
	req, ok := f.refunds[id]
	if !ok {
		return nil, store.ErrRefundNotFound
	}
	if req.Status != domain.RefundPending {
		return nil, store.ErrRefundAlreadyDecided
	}
	req.Status = status
	req.StripeRefundID = stripeRefundID
	req.AdminNotes = adminNotes
	req.DecidedAt = &decidedAt
	cp := *req
	return &cp, nil
}

func (f *fakeRepo) SetRefundStripeID(ctx context.Context, id uuid.UUID, stripeRefundID string) (*domain.RefundRequest, error) {
	req, ok := f.refunds[id]
	if !ok || req.Status != domain.RefundProcessed {
		return nil, store.ErrRefundNotFound
	}
	req.StripeRefundID = &stripeRefundID
	cp := *req
	return &cp, nil
}

func (f *fakeRepo) ReopenRefundRequest(ctx context.Context, id uuid.UUID) error {
	req, ok := f.refunds[id]
	if !ok || req.Status != domain.RefundProcessed || req.StripeRefundID != nil {
		return store.ErrRefundNotFound
	}
	req.Status = domain.RefundPending
	req.AdminNotes = nil
	req.DecidedAt = nil
	return nil
}

// fakeProcessor records processor calls and returns configurable errors.
type fakeProcessor struct {
	createAccountErr error
	accountLinkErr   error
	getAccountErr    error
	subErr           error
	transferErr      error
	refundErr        error

	accountsCreated  int
	priceChanges     []string
	pauses           []time.Time
	resumes          int
	cancels          int
	transfersCreated int
	transferAmounts  []int64
	refundsCreated   int
	lastRefundCharge string
	lastRefundAmount int64
	accountStatus    *stripeclient.AccountStatus
}

func (p *fakeProcessor) CreateAccount(ctx context.Context, creatorRef string) (string, error) {
	if p.createAccountErr != nil {
		return "", p.createAccountErr
	}
	p.accountsCreated++
	return "acct_test", nil
}

func (p *fakeProcessor) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	if p.accountLinkErr != nil {
		return "", p.accountLinkErr
	}
	return "https://connect.stripe.test/onboard/" + accountID, nil
}

func (p *fakeProcessor) GetAccount(ctx context.Context, accountID string) (*stripeclient.AccountStatus, error) {
	if p.getAccountErr != nil {
		return nil, p.getAccountErr
	}
	if p.accountStatus != nil {
		return p.accountStatus, nil
	}
	return &stripeclient.AccountStatus{DetailsSubmitted: true, PayoutsEnabled: true, ChargesEnabled: true}, nil
}

func (p *fakeProcessor) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) error {
	if p.subErr != nil {
		return p.subErr
	}
	p.priceChanges = append(p.priceChanges, newPriceID)
	return nil
}

func (p *fakeProcessor) PauseSubscription(ctx context.Context, subscriptionID string, resumesAt time.Time) error {
	if p.subErr != nil {
		return p.subErr
	}
	p.pauses = append(p.pauses, resumesAt)
	return nil
}

func (p *fakeProcessor) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	if p.subErr != nil {
		return p.subErr
	}
	p.resumes++
	return nil
}

func (p *fakeProcessor) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	if p.subErr != nil {
		return p.subErr
	}
	p.cancels++
	return nil
}

func (p *fakeProcessor) CreateTransfer(ctx context.Context, destinationAccountID string, amount int64, currency, description string) (string, error) {
	if p.transferErr != nil {
		return "", p.transferErr
	}
	p.transfersCreated++
	p.transferAmounts = append(p.transferAmounts, amount)
	return "tr_test", nil
}

func (p *fakeProcessor) CreateRefund(ctx context.Context, chargeID string, amount int64) (string, error) {
	if p.refundErr != nil {
		return "", p.refundErr
	}
	p.refundsCreated++
	p.lastRefundCharge = chargeID
	p.lastRefundAmount = amount
	return "re_test", nil
}

// stripeAccountDisabled is a processor view of an account that cannot
// receive payouts yet.
var stripeAccountDisabled = stripeclient.AccountStatus{DetailsSubmitted: true}

// fakePublisher records published routing keys.
type fakePublisher struct {
	keys []string
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *fakePublisher) published(routingKey string) int {
	n := 0
	for _, k := range p.keys {
		if k == routingKey {
			n++
		}
	}
	return n
}

// seedAccount registers a payout account with the given enablement.
func (f *fakeRepo) seedAccount(creatorID uuid.UUID, stripeAccountID string, payoutsEnabled bool) {
	f.accounts[creatorID] = &domain.CreatorPayoutAccount{
		ID:                 uuid.New(),
		CreatorID:          creatorID,
		StripeAccountID:    &stripeAccountID,
		OnboardingComplete: true,
		PayoutsEnabled:     payoutsEnabled,
		ChargesEnabled:     payoutsEnabled,
	}
}
