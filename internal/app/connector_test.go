package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestInitiateOnboarding_CreatesAccountOnce(t *testing.T) {
	repo := newFakeRepo()
	processor := &fakeProcessor{}
	creator := uuid.New()

	connector := NewConnector(repo, processor, "https://app.getkoji.test")

	link, err := connector.InitiateOnboarding(context.Background(), creator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if link.StripeAccountID != "acct_test" {
		t.Errorf("expected acct_test, got %s", link.StripeAccountID)
	}
	if !strings.HasPrefix(link.URL, "https://connect.stripe.test/onboard/") {
		t.Errorf("unexpected onboarding URL %s", link.URL)
	}

	// A second call mints a fresh link but never a second account.
	if _, err := connector.InitiateOnboarding(context.Background(), creator); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processor.accountsCreated != 1 {
		t.Errorf("expected exactly one account created, got %d", processor.accountsCreated)
	}
}

func TestRefreshStatus_PersistsProcessorFlags(t *testing.T) {
	repo := newFakeRepo()
	processor := &fakeProcessor{}
	creator := uuid.New()
	repo.seedAccount(creator, "acct_1", false)

	connector := NewConnector(repo, processor, "https://app.getkoji.test")
	acct, err := connector.RefreshStatus(context.Background(), creator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acct.PayoutsEnabled || !acct.OnboardingComplete {
		t.Error("expected flags refreshed from the processor")
	}
	if !repo.accounts[creator].PayoutsEnabled {
		t.Error("expected refreshed flags persisted")
	}
}

func TestRefreshStatus_NotConnected(t *testing.T) {
	repo := newFakeRepo()
	connector := NewConnector(repo, &fakeProcessor{}, "https://app.getkoji.test")

	_, err := connector.RefreshStatus(context.Background(), uuid.New())
	if !errors.Is(err, ErrPayoutAccountNotConnected) {
		t.Fatalf("expected ErrPayoutAccountNotConnected, got %v", err)
	}
}

func TestStatus_NeverConnectedIsNotAnError(t *testing.T) {
	repo := newFakeRepo()
	connector := NewConnector(repo, &fakeProcessor{}, "https://app.getkoji.test")

	status, err := connector.Status(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Connected {
		t.Error("expected Connected=false for a creator who never onboarded")
	}
}

func TestStatus_ReadsCachedFlagsWithoutProcessorCall(t *testing.T) {
	repo := newFakeRepo()
	processor := &fakeProcessor{getAccountErr: errors.New("processor must not be called")}
	creator := uuid.New()
	repo.seedAccount(creator, "acct_1", true)

	connector := NewConnector(repo, processor, "https://app.getkoji.test")
	status, err := connector.Status(context.Background(), creator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Connected || !status.PayoutsEnabled {
		t.Errorf("expected cached flags returned, got %+v", status)
	}
}
