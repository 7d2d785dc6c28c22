package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/izahid19/ekart/internal/domain"
	"github.com/izahid19/ekart/internal/event"
	"github.com/izahid19/ekart/internal/merge"
	apperrors "github.com/izahid19/ekart/pkg/errors"
)

const (
	checkpointAttempts = 3
	checkpointBackoff  = 25 * time.Millisecond
)

// syncServer fetches the server cart and folds the pending guest cart into
// it. Each line the cart API accepted is removed from the stored guest cart
// straight away, so a later attempt never applies it twice. The guest cart
// is cleared only once every line has been accepted, and the server cart is
// fetched again so the result reflects what the backend actually holds.
func (c *Controller) syncServer(ctx context.Context) (domain.Cart, error) {
	server, err := c.api.GetCart(ctx, c.credential)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			c.dropCredential(ctx)
		}
		return domain.Cart{}, err
	}

	guest, err := c.guest.Load(ctx)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("load guest cart: %w", err)
	}

	plan := merge.Merge(server.Items, guest)
	if plan.IsNoop() {
		mergesTotal.WithLabelValues(mergeNoop).Inc()
		return server, nil
	}

	log := c.log(ctx)
	log.InfoContext(ctx, "merging guest cart into server cart",
		slog.Int("server_lines", len(server.Items)),
		slog.Int("guest_lines", len(plan.ToCreate)),
	)

	// plan.ToCreate follows the coalesced guest order, so the lines still
	// pending after create i are remaining[i+1:].
	remaining := merge.Coalesce(guest)
	for i, create := range plan.ToCreate {
		if _, err := c.api.AddItem(ctx, c.credential, create.ProductID, create.Quantity); err != nil {
			return domain.Cart{}, c.abandonMerge(ctx, err, i, len(remaining)-i)
		}
		mergedLinesTotal.Inc()

		if err := c.checkpoint(ctx, remaining[i+1:]); err != nil {
			// The line is on the server but still stored locally; stop before
			// the two drift further apart.
			return domain.Cart{}, c.abandonMerge(ctx, fmt.Errorf("checkpoint guest cart: %w", err), i+1, len(remaining)-i-1)
		}
	}

	if err := c.guest.Clear(ctx); err != nil {
		log.WarnContext(ctx, "failed to clear migrated guest cart",
			slog.String("error", err.Error()),
		)
	}

	merged, err := c.api.GetCart(ctx, c.credential)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			c.dropCredential(ctx)
		}
		return domain.Cart{}, fmt.Errorf("fetch merged cart: %w", err)
	}

	mergesTotal.WithLabelValues(mergeApplied).Inc()
	if len(merged.Items) != len(plan.Result) {
		log.DebugContext(ctx, "server cart differs from merge prediction",
			slog.Int("predicted_lines", len(plan.Result)),
			slog.Int("actual_lines", len(merged.Items)),
		)
	}

	if err := c.events.PublishCartMerged(ctx, event.CartMergedData{
		SessionID:   c.sessionID,
		ServerLines: len(server.Items),
		GuestLines:  len(plan.ToCreate),
		Created:     plan.ToCreate,
		ResultLines: len(merged.Items),
	}); err != nil {
		log.WarnContext(ctx, "failed to publish cart merged event",
			slog.String("error", err.Error()),
		)
	}

	return merged, nil
}

// checkpoint stores the guest lines still pending after an accepted create.
// It retries a failed write a few times before giving up.
func (c *Controller) checkpoint(ctx context.Context, pending []domain.LineItem) error {
	var err error
	for attempt := 0; attempt < checkpointAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(checkpointBackoff << (attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(err, ctx.Err())
			case <-timer.C:
			}
		}
		if err = c.guest.Save(ctx, pending); err == nil {
			return nil
		}
		c.log(ctx).WarnContext(ctx, "guest cart checkpoint failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// abandonMerge records a merge that stopped after applied lines, with
// pending lines still stored locally, and returns the cause.
func (c *Controller) abandonMerge(ctx context.Context, cause error, applied, pending int) error {
	log := c.log(ctx)
	reason := mergeFailed
	if errors.Is(cause, apperrors.ErrUnauthorized) {
		reason = mergeUnauthorized
		log.WarnContext(ctx, "credential rejected during merge, guest data not migrated",
			slog.Int("applied", applied),
			slog.Int("pending", pending),
		)
		c.dropCredential(ctx)
	} else {
		log.WarnContext(ctx, "guest cart merge interrupted, guest data kept for retry",
			slog.Int("applied", applied),
			slog.Int("pending", pending),
			slog.String("error", cause.Error()),
		)
	}
	mergesTotal.WithLabelValues(reason).Inc()

	if err := c.events.PublishCartMergeFailed(ctx, event.CartMergeFailedData{
		SessionID:      c.sessionID,
		Reason:         reason,
		Applied:        applied,
		RemainingLines: pending,
	}); err != nil {
		log.WarnContext(ctx, "failed to publish cart merge failed event",
			slog.String("error", err.Error()),
		)
	}

	return fmt.Errorf("merge guest cart: %w", cause)
}
