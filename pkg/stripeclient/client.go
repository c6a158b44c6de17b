/**
 * @description
 * This package provides a client for the Stripe API surface this service
 * depends on: Connect accounts and onboarding links, subscription mutation
 * with an explicit proration mode per call, payout transfers, and refunds.
 * It wraps the official SDK behind domain-shaped methods so the application
 * layer can depend on a small interface and tests can stub it.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v82: The official Stripe SDK.
 */
package stripeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// ProcessorError wraps a Stripe failure with enough context for operator
// diagnosis. The original Stripe message is preserved verbatim for audit.
// Retryable distinguishes transient failures (timeouts, rate limits, 5xx)
// from precondition and validation failures that must never be retried.
type ProcessorError struct {
	Op        string
	EntityRef string
	Msg       string
	Retryable bool
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("stripe %s failed for %s: %s", e.Op, e.EntityRef, e.Msg)
}

// IsRetryable reports whether err is a transient processor failure.
func IsRetryable(err error) bool {
	var pe *ProcessorError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

func wrapErr(op, entityRef string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		retryable := stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.Type == stripe.ErrorTypeAPI
		return &ProcessorError{Op: op, EntityRef: entityRef, Msg: stripeErr.Msg, Retryable: retryable}
	}
	// Non-Stripe errors here are transport-level (timeouts, connection resets).
	return &ProcessorError{Op: op, EntityRef: entityRef, Msg: err.Error(), Retryable: true}
}

// AccountStatus carries the enablement flags Stripe reports for a connect
// account.
type AccountStatus struct {
	DetailsSubmitted bool
	PayoutsEnabled   bool
	ChargesEnabled   bool
}

// Client is a thin wrapper over the Stripe SDK.
type Client struct {
	api *client.API
}

// NewClient creates a Stripe client with a bounded request timeout.
func NewClient(secretKey string) *Client {
	api := &client.API{}
	api.Init(secretKey, stripe.NewBackends(&http.Client{Timeout: 30 * time.Second}))
	return &Client{api: api}
}

// CreateAccount creates an Express connect account for a creator and returns
// its reference.
func (c *Client) CreateAccount(ctx context.Context, creatorRef string) (string, error) {
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Metadata: map[string]string{
			"creator_id": creatorRef,
		},
	}
	params.Context = ctx
	acct, err := c.api.Accounts.New(params)
	if err != nil {
		return "", wrapErr("account create", creatorRef, err)
	}
	return acct.ID, nil
}

// CreateAccountLink mints a fresh single-use onboarding URL for an account.
func (c *Client) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx
	link, err := c.api.AccountLinks.New(params)
	if err != nil {
		return "", wrapErr("account link create", accountID, err)
	}
	return link.URL, nil
}

// GetAccount polls the current enablement flags for a connect account.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, wrapErr("account get", accountID, err)
	}
	return &AccountStatus{
		DetailsSubmitted: acct.DetailsSubmitted,
		PayoutsEnabled:   acct.PayoutsEnabled,
		ChargesEnabled:   acct.ChargesEnabled,
	}, nil
}

// ChangeSubscriptionPrice swaps the subscription's price item. Stripe computes
// the proration credit/charge for the remaining period; proration mode is
// explicit on the call rather than relying on account defaults.
func (c *Client) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, newPriceID string) error {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	sub, err := c.api.Subscriptions.Get(subscriptionID, getParams)
	if err != nil {
		return wrapErr("subscription get", subscriptionID, err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return &ProcessorError{Op: "subscription update", EntityRef: subscriptionID, Msg: "subscription has no items"}
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(newPriceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	if _, err := c.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return wrapErr("subscription update", subscriptionID, err)
	}
	return nil
}

// PauseSubscription suspends billing until resumesAt. No charges accrue while
// paused.
func (c *Client) PauseSubscription(ctx context.Context, subscriptionID string, resumesAt time.Time) error {
	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior:  stripe.String("void"),
			ResumesAt: stripe.Int64(resumesAt.Unix()),
		},
	}
	params.Context = ctx
	if _, err := c.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return wrapErr("subscription pause", subscriptionID, err)
	}
	return nil
}

// ResumeSubscription clears the billing pause immediately, regardless of the
// originally scheduled resume time.
func (c *Client) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	// Clearing pause_collection requires sending an empty value.
	params.AddExtra("pause_collection", "")
	if _, err := c.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return wrapErr("subscription resume", subscriptionID, err)
	}
	return nil
}

// CancelSubscriptionAtPeriodEnd schedules cancellation for the end of the
// current billing period. The subscription stays billable-state untouched
// until then, so the subscriber keeps access already paid for.
func (c *Client) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	if _, err := c.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return wrapErr("subscription cancel", subscriptionID, err)
	}
	return nil
}

// CreateTransfer moves funds from the platform balance to a connect account
// and returns the transfer reference for audit.
func (c *Client) CreateTransfer(ctx context.Context, destinationAccountID string, amount int64, currency, description string) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(currency),
		Destination: stripe.String(destinationAccountID),
		Description: stripe.String(description),
	}
	params.Context = ctx
	tr, err := c.api.Transfers.New(params)
	if err != nil {
		return "", wrapErr("transfer create", destinationAccountID, err)
	}
	return tr.ID, nil
}

// CreateRefund issues a partial or full reversal against a charge and returns
// the refund reference.
func (c *Client) CreateRefund(ctx context.Context, chargeID string, amount int64) (string, error) {
	params := &stripe.RefundParams{
		Charge: stripe.String(chargeID),
		Amount: stripe.Int64(amount),
	}
	params.Context = ctx
	ref, err := c.api.Refunds.New(params)
	if err != nil {
		return "", wrapErr("refund create", chargeID, err)
	}
	return ref.ID, nil
}
