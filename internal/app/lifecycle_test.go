package app

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/WeAreKoji/getkoji-sub002/internal/domain"
)

func seedSubscription(repo *fakeRepo, subscriberID uuid.UUID, status domain.SubscriptionStatus) *domain.Subscription {
	ref := "sub_stripe_" + uuid.NewString()[:8]
	sub := &domain.Subscription{
		ID:                   uuid.New(),
		SubscriberID:         subscriberID,
		CreatorID:            uuid.New(),
		StripeSubscriptionID: &ref,
		StripePriceID:        "price_old",
		Status:               status,
		CurrentPeriodEnd:     time.Now().UTC().AddDate(0, 1, 0),
	}
	repo.subs[sub.ID] = sub
	return sub
}

func TestChangePrice_ActiveSubscription(t *testing.T) {
	repo := newFakeRepo()
	processor := &fakeProcessor{}
	publisher := &fakePublisher{}
	subscriber := uuid.New()
	sub := seedSubscription(repo, subscriber, domain.SubscriptionActive)

	lc := NewLifecycle(repo, processor, publisher)
	updated, err := lc.ChangePrice(context.Background(), subscriber, ChangePriceCommand{
		SubscriptionID: sub.ID,
		NewPriceID:     "price_new",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.StripePriceID != "price_new" {
		t.Errorf("expected price_new, got %s", updated.StripePriceID)
	}
	if len(processor.priceChanges) != 1 {
		t.Errorf("expected 1 processor price change, got %d", len(processor.priceChanges))
	}
	if publisher.published(domain.EventSubscriptionPriceChanged) != 1 {
		t.Error("expected a price-changed event")
	}
}

func TestChangePrice_RejectedWhenNotActive(t *testing.T) {
	repo := newFakeRepo()
	processor := &fakeProcessor{}
	subscriber := uuid.New()

	for _, status := range []domain.SubscriptionStatus{domain.SubscriptionPaused, domain.SubscriptionCanceled, domain.SubscriptionPastDue} {
		sub := seedSubscription(repo, subscriber, status)
		lc := NewLifecycle(repo, processor, &fakePublisher{})

		_, err := lc.ChangePrice(context.Background(), subscriber, ChangePriceCommand{
			SubscriptionID: sub.ID,
			NewPriceID:     "price_new",
		})
		if !errors.Is(err, ErrNoMatchingSubscription) {
			t.Errorf("status %s: expected ErrNoMatchingSubscription, got %v", status, err)
		}
	}
	if len(processor.priceChanges) != 0 {
		t.Error("processor must not be called for inactive subscriptions")
	}
}

func TestLifecycle_OwnershipEnforced(t *testing.T) {
	repo := newFakeRepo()
	sub := seedSubscription(repo, uuid.New(), domain.SubscriptionActive)
	lc := NewLifecycle(repo, &fakeProcessor{}, &fakePublisher{})

	stranger := uuid.New()
	if _, err := lc.Get(context.Background(), stranger, sub.ID); !errors.Is(err, ErrNoMatchingSubscription) {
		t.Errorf("expected ErrNoMatchingSubscription for foreign subscription, got %v", err)
	}
}

func TestPause_RequiresFutureResumeTime(t *testing.T) {
	repo := newFakeRepo()
	subscriber := uuid.New()
	sub := seedSubscription(repo, subscriber, domain.SubscriptionActive)
	lc := NewLifecycle(repo, &fakeProcessor{}, &fakePublisher{})

	_, err := lc.Pause(context.Background(), subscriber, PauseCommand{
		SubscriptionID: sub.ID,
		ResumeAt:       time.Now().UTC().Add(-time.Hour),
	})
	if !errors.Is(err, ErrResumeTimeNotFuture) {
		t.Fatalf("expected ErrResumeTimeNotFuture, got %v", err)
	}
}

func TestPauseThenResume(t *testing.T) {
	repo := newFakeRepo()
	processor := &fakeProcessor{}
	publisher := &fakePublisher{}
	subscriber := uuid.New()
	sub := seedSubscription(repo, subscriber, domain.SubscriptionActive)
	lc := NewLifecycle(repo, processor, publisher)

	resumeAt := time.Now().UTC().AddDate(0, 2, 0)
	paused, err := lc.Pause(context.Background(), subscriber, PauseCommand{SubscriptionID: sub.ID, ResumeAt: resumeAt})
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if paused.Status != domain.SubscriptionPaused {
		t.Errorf("expected paused, got %s", paused.Status)
	}
	if paused.PauseUntil == nil || !paused.PauseUntil.Equal(resumeAt) {
		t.Error("expected pause_until to record the resume target")
	}

	// Early resume before the scheduled target.
	resumed, err := lc.Resume(context.Background(), subscriber, ResumeCommand{SubscriptionID: sub.ID})
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if resumed.Status != domain.SubscriptionActive {
		t.Errorf("expected active, got %s", resumed.Status)
	}
	if resumed.PauseUntil != nil {
		t.Error("expected pause_until cleared on resume")
	}
	if processor.resumes != 1 {
		t.Errorf("expected 1 processor resume, got %d", processor.resumes)
	}
	if publisher.published(domain.EventSubscriptionPaused) != 1 || publisher.published(domain.EventSubscriptionResumed) != 1 {
		t.Error("expected paused and resumed events")
	}
}

func TestResume_RejectedWhenNotPaused(t *testing.T) {
	repo := newFakeRepo()
	subscriber := uuid.New()
	sub := seedSubscription(repo, subscriber, domain.SubscriptionActive)
	lc := NewLifecycle(repo, &fakeProcessor{}, &fakePublisher{})

	_, err := lc.Resume(context.Background(), subscriber, ResumeCommand{SubscriptionID: sub.ID})
	if !errors.Is(err, ErrNoMatchingSubscription) {
		t.Fatalf("expected ErrNoMatchingSubscription, got %v", err)
	}
}

func TestCancel_FlagsPeriodEndWithoutChangingStatus(t *testing.T) {
	repo := newFakeRepo()
	processor := &fakeProcessor{}
	publisher := &fakePublisher{}
	subscriber := uuid.New()
	sub := seedSubscription(repo, subscriber, domain.SubscriptionActive)
	lc := NewLifecycle(repo, processor, publisher)

	updated, err := lc.Cancel(context.Background(), subscriber, CancelCommand{SubscriptionID: sub.ID})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !updated.CancelAtPeriodEnd {
		t.Error("expected cancel_at_period_end flag set")
	}
	if updated.Status != domain.SubscriptionActive {
		t.Errorf("cancellation must never flip status immediately, got %s", updated.Status)
	}
	if processor.cancels != 1 {
		t.Errorf("expected 1 processor cancel, got %d", processor.cancels)
	}
	if publisher.published(domain.EventSubscriptionCanceled) != 1 {
		t.Error("expected a canceled event")
	}
}

func TestCancel_PausedSubscriptionAllowed(t *testing.T) {
	repo := newFakeRepo()
	subscriber := uuid.New()
	sub := seedSubscription(repo, subscriber, domain.SubscriptionPaused)
	lc := NewLifecycle(repo, &fakeProcessor{}, &fakePublisher{})

	updated, err := lc.Cancel(context.Background(), subscriber, CancelCommand{SubscriptionID: sub.ID})
	if err != nil {
		t.Fatalf("cancel of paused subscription failed: %v", err)
	}
	if !updated.CancelAtPeriodEnd || updated.Status != domain.SubscriptionPaused {
		t.Error("expected flag set while status stays paused")
	}
}

func TestCancel_TerminalRejected(t *testing.T) {
	repo := newFakeRepo()
	subscriber := uuid.New()
	sub := seedSubscription(repo, subscriber, domain.SubscriptionCanceled)
	lc := NewLifecycle(repo, &fakeProcessor{}, &fakePublisher{})

	_, err := lc.Cancel(context.Background(), subscriber, CancelCommand{SubscriptionID: sub.ID})
	if !errors.Is(err, ErrNoMatchingSubscription) {
		t.Fatalf("expected ErrNoMatchingSubscription, got %v", err)
	}
}

func TestLifecycle_MissingProcessorRefIsFatal(t *testing.T) {
	repo := newFakeRepo()
	processor := &fakeProcessor{}
	subscriber := uuid.New()
	sub := seedSubscription(repo, subscriber, domain.SubscriptionActive)
	repo.subs[sub.ID].StripeSubscriptionID = nil
	lc := NewLifecycle(repo, processor, &fakePublisher{})

	_, err := lc.Cancel(context.Background(), subscriber, CancelCommand{SubscriptionID: sub.ID})
	if !errors.Is(err, ErrMissingProcessorRef) {
		t.Fatalf("expected ErrMissingProcessorRef, got %v", err)
	}
	if processor.cancels != 0 {
		t.Error("processor must not be called without an external reference")
	}
}

// divergingProcessor flips the local record mid-call, modeling a concurrent
// writer racing the transition between the processor confirm and the local
// update.
type divergingProcessor struct {
	*fakeProcessor
	repo  *fakeRepo
	subID uuid.UUID
}

func (p *divergingProcessor) PauseSubscription(ctx context.Context, subscriptionID string, resumesAt time.Time) error {
	p.repo.subs[p.subID].Status = domain.SubscriptionCanceled
	return nil
}

func TestLifecycle_PostProcessorDivergenceIsLoggedCritical(t *testing.T) {
	repo := newFakeRepo()
	subscriber := uuid.New()
	sub := seedSubscription(repo, subscriber, domain.SubscriptionActive)
	processor := &divergingProcessor{fakeProcessor: &fakeProcessor{}, repo: repo, subID: sub.ID}
	lc := NewLifecycle(repo, processor, &fakePublisher{})

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	_, err := lc.Pause(context.Background(), subscriber, PauseCommand{
		SubscriptionID: sub.ID,
		ResumeAt:       time.Now().UTC().AddDate(0, 1, 0),
	})
	if !errors.Is(err, ErrNoMatchingSubscription) {
		t.Fatalf("expected ErrNoMatchingSubscription, got %v", err)
	}
	if !strings.Contains(buf.String(), "CRITICAL") {
		t.Error("a processor-confirmed transition losing the local update must be logged CRITICAL")
	}
}

func TestLifecycle_ProcessorFailureLeavesLocalStateUntouched(t *testing.T) {
	repo := newFakeRepo()
	processor := &fakeProcessor{subErr: errors.New("stripe unavailable")}
	subscriber := uuid.New()
	sub := seedSubscription(repo, subscriber, domain.SubscriptionActive)
	lc := NewLifecycle(repo, processor, &fakePublisher{})

	_, err := lc.Pause(context.Background(), subscriber, PauseCommand{
		SubscriptionID: sub.ID,
		ResumeAt:       time.Now().UTC().AddDate(0, 1, 0),
	})
	if err == nil {
		t.Fatal("expected processor error to surface")
	}
	if repo.subs[sub.ID].Status != domain.SubscriptionActive {
		t.Error("local status must not change when the processor call fails")
	}
}
