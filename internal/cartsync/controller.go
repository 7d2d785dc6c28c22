// Package cartsync keeps a shopper's displayed cart consistent across the
// guest and authenticated states of one browsing session.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/izahid19/ekart/internal/domain"
	"github.com/izahid19/ekart/internal/event"
	"github.com/izahid19/ekart/internal/pricing"
	apperrors "github.com/izahid19/ekart/pkg/errors"
	"github.com/izahid19/ekart/pkg/logger"
)

// State is the authentication state of a session.
type State string

const (
	Anonymous     State = "anonymous"
	Authenticated State = "authenticated"
)

// GuestStore persists the anonymous cart.
type GuestStore interface {
	Load(ctx context.Context) ([]domain.LineItem, error)
	Save(ctx context.Context, items []domain.LineItem) error
	Clear(ctx context.Context) error
}

// CartAPI is the remote cart service. Every call returns the server cart as
// it stands after the call.
type CartAPI interface {
	GetCart(ctx context.Context, credential string) (domain.Cart, error)
	AddItem(ctx context.Context, credential, productID string, quantity int) (domain.Cart, error)
	UpdateQuantity(ctx context.Context, credential, productID string, direction domain.Direction) (domain.Cart, error)
	RemoveItem(ctx context.Context, credential, productID string) (domain.Cart, error)
}

// EventPublisher receives merge outcomes.
type EventPublisher interface {
	PublishCartMerged(ctx context.Context, data event.CartMergedData) error
	PublishCartMergeFailed(ctx context.Context, data event.CartMergeFailedData) error
}

// View is what the storefront displays: the current cart and its pricing.
type View struct {
	State     State            `json:"state"`
	Cart      domain.Cart      `json:"cart"`
	Breakdown domain.Breakdown `json:"breakdown"`
}

// Deps are the collaborators a Controller is built from.
type Deps struct {
	Guest      GuestStore
	API        CartAPI
	Calculator *pricing.Calculator
	Events     EventPublisher
	Logger     *slog.Logger
	// Currency stamped on order drafts; pricing.DefaultCurrency when empty.
	Currency string
}

var tracer = otel.Tracer("github.com/izahid19/ekart/internal/cartsync")

// Controller drives one browsing session. Operations are serialized: a call
// waits for the outstanding one to finish or for its own context to end.
type Controller struct {
	sessionID string
	guest     GuestStore
	api       CartAPI
	calc      *pricing.Calculator
	events    EventPublisher
	logger    *slog.Logger
	currency  string

	sem *semaphore.Weighted

	// state and credential are only touched while sem is held.
	state      State
	credential string

	mu   sync.RWMutex
	view View
}

// New creates an anonymous controller for sessionID with an empty view.
// Call Refresh to load the persisted guest cart.
func New(sessionID string, deps Deps) *Controller {
	currency := deps.Currency
	if currency == "" {
		currency = pricing.DefaultCurrency
	}
	events := deps.Events
	if events == nil {
		events = event.NopProducer{}
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	calc := deps.Calculator
	if calc == nil {
		calc = pricing.NewCalculator(pricing.DefaultPolicy())
	}

	c := &Controller{
		sessionID: sessionID,
		guest:     deps.Guest,
		api:       deps.API,
		calc:      calc,
		events:    events,
		logger:    log,
		currency:  currency,
		sem:       semaphore.NewWeighted(1),
		state:     Anonymous,
	}
	c.view = c.buildView(Anonymous, domain.NewCart(nil))
	return c
}

// SessionID returns the session this controller drives.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// View returns the last known-good view. It never blocks on a running
// operation.
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v := c.view
	v.Cart = v.Cart.Clone()
	return v
}

// Refresh reloads the cart for the current state. Authenticated sessions
// fold any pending guest cart into the server cart first.
func (c *Controller) Refresh(ctx context.Context) (View, error) {
	err := c.do(ctx, "refresh", func(ctx context.Context) error {
		if c.state == Anonymous {
			return c.showGuest(ctx)
		}
		cart, err := c.syncServer(ctx)
		if err != nil {
			return err
		}
		c.setView(Authenticated, cart)
		return nil
	})
	return c.View(), err
}

// Login moves the session to Authenticated under credential and migrates
// the guest cart into the server cart. On failure the session stays
// anonymous and whatever guest lines were not yet migrated remain stored.
// A session that is already signed in only accepts its own credential
// again; another account has to start from a fresh session.
func (c *Controller) Login(ctx context.Context, credential string) (View, error) {
	if credential == "" {
		return c.View(), apperrors.InvalidInput("credential is required")
	}

	err := c.do(WithCredential(ctx, credential), "login", func(ctx context.Context) error {
		c.state = Authenticated
		c.credential = credential

		cart, err := c.syncServer(ctx)
		if err != nil {
			c.state = Anonymous
			c.credential = ""
			if showErr := c.showGuest(ctx); showErr != nil {
				c.log(ctx).ErrorContext(ctx, "failed to reload guest cart after failed login",
					slog.String("error", showErr.Error()),
				)
			}
			return err
		}

		c.setView(Authenticated, cart)
		c.log(ctx).InfoContext(ctx, "session authenticated",
			slog.Int("server_lines", len(cart.Items)),
		)
		return nil
	})
	return c.View(), err
}

// Logout returns the session to Anonymous. Nothing from the server cart is
// copied back into the guest cart.
func (c *Controller) Logout(ctx context.Context) (View, error) {
	err := c.do(ctx, "logout", func(ctx context.Context) error {
		c.state = Anonymous
		c.credential = ""
		return c.showGuest(ctx)
	})
	return c.View(), err
}

// AddItem adds one unit of product.
func (c *Controller) AddItem(ctx context.Context, product domain.Product) (View, error) {
	if product.ID == "" {
		return c.View(), apperrors.InvalidInput("product id is required")
	}

	err := c.do(ctx, "add_item", func(ctx context.Context) error {
		if c.state == Authenticated {
			return c.remote(ctx, func(ctx context.Context) (domain.Cart, error) {
				return c.api.AddItem(ctx, c.credential, product.ID, 1)
			})
		}

		return c.mutateGuest(ctx, func(items []domain.LineItem) ([]domain.LineItem, error) {
			if i := domain.IndexOf(items, product.ID); i >= 0 {
				items[i].Quantity++
				return items, nil
			}
			return append(items, domain.NewLineItem(product, 1)), nil
		})
	})
	return c.View(), err
}

// UpdateQuantity steps productID's quantity one unit in direction. A
// decrease at quantity 1 removes the line.
func (c *Controller) UpdateQuantity(ctx context.Context, productID string, direction domain.Direction) (View, error) {
	if productID == "" {
		return c.View(), apperrors.InvalidInput("product id is required")
	}
	if !direction.Valid() {
		return c.View(), apperrors.InvalidInput(fmt.Sprintf("unknown direction %q", direction))
	}

	err := c.do(ctx, "update_quantity", func(ctx context.Context) error {
		if c.state == Authenticated {
			return c.remote(ctx, func(ctx context.Context) (domain.Cart, error) {
				if direction == domain.Decrease && c.displayedQuantity(productID) == 1 {
					return c.api.RemoveItem(ctx, c.credential, productID)
				}
				return c.api.UpdateQuantity(ctx, c.credential, productID, direction)
			})
		}

		return c.mutateGuest(ctx, func(items []domain.LineItem) ([]domain.LineItem, error) {
			i := domain.IndexOf(items, productID)
			if i < 0 {
				return nil, apperrors.NotFound("cart item", productID)
			}
			switch {
			case direction == domain.Increase:
				items[i].Quantity++
			case items[i].Quantity > 1:
				items[i].Quantity--
			default:
				items = append(items[:i], items[i+1:]...)
			}
			return items, nil
		})
	})
	return c.View(), err
}

// RemoveItem deletes productID's line. Removing an absent product is a no-op.
func (c *Controller) RemoveItem(ctx context.Context, productID string) (View, error) {
	if productID == "" {
		return c.View(), apperrors.InvalidInput("product id is required")
	}

	err := c.do(ctx, "remove_item", func(ctx context.Context) error {
		if c.state == Authenticated {
			return c.remote(ctx, func(ctx context.Context) (domain.Cart, error) {
				return c.api.RemoveItem(ctx, c.credential, productID)
			})
		}

		return c.mutateGuest(ctx, func(items []domain.LineItem) ([]domain.LineItem, error) {
			if i := domain.IndexOf(items, productID); i >= 0 {
				items = append(items[:i], items[i+1:]...)
			}
			return items, nil
		})
	})
	return c.View(), err
}

// Checkout builds the order request for the displayed cart.
func (c *Controller) Checkout(ctx context.Context) (pricing.OrderDraft, error) {
	var draft pricing.OrderDraft
	err := c.do(ctx, "checkout", func(ctx context.Context) error {
		if c.state != Authenticated {
			return apperrors.Unauthorized("sign in to check out")
		}
		view := c.View()
		if view.Cart.IsEmpty() {
			return apperrors.InvalidInput("cart is empty")
		}
		draft = c.calc.BuildOrderDraft(view.Cart.Items, c.currency)
		return nil
	})
	return draft, err
}

// OrderPlaced resets the displayed cart once the backend has turned it into
// an order and emptied it.
func (c *Controller) OrderPlaced(ctx context.Context) (View, error) {
	err := c.do(ctx, "order_placed", func(ctx context.Context) error {
		if c.state != Authenticated {
			return apperrors.Unauthorized("sign in to place an order")
		}
		c.setView(Authenticated, domain.NewCart(nil))
		c.log(ctx).InfoContext(ctx, "order placed, cart reset")
		return nil
	})
	return c.View(), err
}

// HandOver moves this session's state into dst, a freshly created
// controller for a new session ID: the credential, the displayed cart and
// any guest lines still pending. This controller is left anonymous with an
// empty guest cart.
func (c *Controller) HandOver(ctx context.Context, dst *Controller) error {
	if dst == c {
		return apperrors.InvalidInput("cannot hand a session over to itself")
	}

	return c.do(ctx, "hand_over", func(ctx context.Context) error {
		items, err := c.guest.Load(ctx)
		if err != nil {
			return fmt.Errorf("load guest cart: %w", err)
		}

		state, credential, cart := c.state, c.credential, c.View().Cart
		err = dst.do(WithCredential(ctx, credential), "adopt", func(ctx context.Context) error {
			if len(items) > 0 {
				if err := dst.guest.Save(ctx, items); err != nil {
					return fmt.Errorf("save guest cart: %w", err)
				}
			}
			dst.state = state
			dst.credential = credential
			if state == Anonymous {
				cart = domain.NewCart(items)
			}
			dst.setView(state, cart)
			return nil
		})
		if err != nil {
			return err
		}

		c.state = Anonymous
		c.credential = ""
		c.setView(Anonymous, domain.NewCart(nil))
		if err := c.guest.Clear(ctx); err != nil {
			c.log(ctx).WarnContext(ctx, "failed to clear handed-over guest cart",
				slog.String("error", err.Error()),
			)
		}
		c.log(ctx).InfoContext(ctx, "session handed over",
			slog.String("new_session_id", dst.sessionID),
		)
		return nil
	})
}

// do serializes fn against every other operation on this controller and
// wraps it in a span and a duration observation. An authenticated session
// rejects calls that do not present its credential.
func (c *Controller) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%s: wait for pending cart operation: %w", op, err)
	}
	defer c.sem.Release(1)

	ctx, span := tracer.Start(ctx, "cartsync."+op, trace.WithAttributes(
		attribute.String("session.id", c.sessionID),
		attribute.String("cart.state", string(c.state)),
	))
	defer span.End()

	start := time.Now()
	err := c.authorize(ctx)
	if err == nil {
		err = fn(ctx)
	}
	operationDuration.WithLabelValues(op, outcomeLabel(err)).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log(ctx).WarnContext(ctx, "cart operation failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// remote applies an authenticated mutation. The view only moves on success;
// a rejected credential drops the session back to Anonymous.
func (c *Controller) remote(ctx context.Context, call func(ctx context.Context) (domain.Cart, error)) error {
	cart, err := call(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthorized) {
			c.dropCredential(ctx)
		}
		return err
	}
	c.setView(Authenticated, cart)
	return nil
}

// mutateGuest loads the guest cart, applies fn and persists the result.
func (c *Controller) mutateGuest(ctx context.Context, fn func(items []domain.LineItem) ([]domain.LineItem, error)) error {
	items, err := c.guest.Load(ctx)
	if err != nil {
		return fmt.Errorf("load guest cart: %w", err)
	}

	items, err = fn(items)
	if err != nil {
		return err
	}

	if err := c.guest.Save(ctx, items); err != nil {
		return fmt.Errorf("save guest cart: %w", err)
	}
	c.setView(Anonymous, domain.NewCart(items))
	return nil
}

// showGuest replaces the view with the persisted guest cart.
func (c *Controller) showGuest(ctx context.Context) error {
	items, err := c.guest.Load(ctx)
	if err != nil {
		return fmt.Errorf("load guest cart: %w", err)
	}
	c.setView(Anonymous, domain.NewCart(items))
	return nil
}

// dropCredential abandons the authenticated state after the cart API
// rejected the credential.
func (c *Controller) dropCredential(ctx context.Context) {
	c.state = Anonymous
	c.credential = ""
	if err := c.showGuest(ctx); err != nil {
		c.setView(Anonymous, domain.NewCart(nil))
	}
	c.log(ctx).WarnContext(ctx, "credential rejected by cart api, session is anonymous again")
}

func (c *Controller) displayedQuantity(productID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.view.Cart.FindItemIndex(productID); i >= 0 {
		return c.view.Cart.Items[i].Quantity
	}
	return 0
}

func (c *Controller) setView(state State, cart domain.Cart) {
	v := c.buildView(state, cart)
	c.mu.Lock()
	c.view = v
	c.mu.Unlock()
}

func (c *Controller) buildView(state State, cart domain.Cart) View {
	cart = cart.Clone()
	cart.Recalculate()
	return View{
		State:     state,
		Cart:      cart,
		Breakdown: c.calc.Compute(cart.Items),
	}
}

func (c *Controller) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(logger.WithSessionID(ctx, c.sessionID), c.logger)
}
