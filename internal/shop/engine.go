// Package shop holds the conversation engine that walks a user through the
// browse, cart and checkout flow.
package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Proton-105/himera-shop/internal/commerce"
	"github.com/Proton-105/himera-shop/internal/domain"
	apperrors "github.com/Proton-105/himera-shop/internal/errors"
	"github.com/Proton-105/himera-shop/internal/event"
	"github.com/Proton-105/himera-shop/internal/presenter"
	"github.com/Proton-105/himera-shop/internal/session"
	"github.com/Proton-105/himera-shop/internal/state"
	"github.com/Proton-105/himera-shop/pkg/metrics"
)

// Sessions is the per-actor persistence the engine relies on.
type Sessions interface {
	CartSessions
	State(ctx context.Context, actor domain.UserID) (state.State, error)
	SetState(ctx context.Context, actor domain.UserID, st state.State) error
}

// Deps are the engine collaborators.
type Deps struct {
	Sessions  Sessions
	Catalog   commerce.Catalog
	Carts     commerce.Carts
	Customers commerce.Customers
	Presenter presenter.Presenter
	Log       *slog.Logger
}

// Engine runs one conversation step per event.
type Engine struct {
	sessions  Sessions
	catalog   commerce.Catalog
	carts     commerce.Carts
	customers commerce.Customers
	presenter presenter.Presenter
	resolver  *CartResolver
	log       *slog.Logger
}

func NewEngine(deps Deps) *Engine {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		sessions:  deps.Sessions,
		catalog:   deps.Catalog,
		carts:     deps.Carts,
		customers: deps.Customers,
		presenter: deps.Presenter,
		resolver:  NewCartResolver(deps.Sessions, deps.Carts, log),
		log:       log,
	}
}

// Handle resolves the actor's state, runs the matching handler and persists
// the state it returns. Nothing is persisted when the handler fails.
func (e *Engine) Handle(ctx context.Context, ev event.UserEvent) error {
	current, err := e.currentState(ctx, ev)
	if err != nil {
		return err
	}

	next, err := e.dispatch(ctx, current, ev)
	if err != nil {
		return err
	}

	if !state.IsTransitionAllowed(current, next) {
		e.log.WarnContext(ctx, "unexpected state transition",
			slog.String("actor", ev.Actor.String()),
			slog.String("from", current.String()),
			slog.String("to", next.String()),
		)
	}

	if err := e.sessions.SetState(ctx, ev.Actor, next); err != nil {
		return apperrors.NewStoreError(err)
	}

	if current != next {
		metrics.RecordStateTransition(current.String(), next.String())
		e.log.DebugContext(ctx, "state changed",
			slog.String("actor", ev.Actor.String()),
			slog.String("from", current.String()),
			slog.String("to", next.String()),
		)
	}

	return nil
}

func (e *Engine) currentState(ctx context.Context, ev event.UserEvent) (state.State, error) {
	if ev.IsStart() {
		return state.StateStart, nil
	}

	current, err := e.sessions.State(ctx, ev.Actor)
	switch {
	case err == nil:
		return current, nil
	case errors.Is(err, session.ErrNotFound), errors.Is(err, state.ErrUnknownState):
		if errors.Is(err, state.ErrUnknownState) {
			e.log.WarnContext(ctx, "discarding unreadable state", slog.String("actor", ev.Actor.String()), slog.Any("error", err))
		}
		if perr := e.presenter.Present(ctx, ev.Actor, presenter.StartHintView()); perr != nil {
			e.log.WarnContext(ctx, "failed to send start hint", slog.String("actor", ev.Actor.String()), slog.Any("error", perr))
		}
		return "", apperrors.NewUnknownUserError()
	default:
		return "", apperrors.NewStoreError(err)
	}
}

func (e *Engine) dispatch(ctx context.Context, current state.State, ev event.UserEvent) (state.State, error) {
	// Outside Start, free text only reaches states that ask for it and
	// selections only reach menu states.
	if current != state.StateStart && (ev.Kind == event.KindText) != current.AcceptsText() {
		return e.stall(ctx, current, ev)
	}

	switch current {
	case state.StateStart:
		return e.handleStart(ctx, ev)
	case state.StateMenuChoose:
		return e.handleMenuChoose(ctx, ev)
	case state.StateDescription:
		return e.handleDescription(ctx, ev)
	case state.StateCart:
		return e.handleCart(ctx, ev)
	case state.StateWaitingEmail:
		return e.handleWaitingEmail(ctx, ev)
	default:
		return "", apperrors.NewStateError(fmt.Sprintf("no handler for state %q", current))
	}
}

func (e *Engine) handleStart(ctx context.Context, ev event.UserEvent) (state.State, error) {
	products, err := e.catalog.ListProducts(ctx)
	if err != nil {
		return "", err
	}

	if err := e.present(ctx, ev.Actor, presenter.MenuView(products)); err != nil {
		return "", err
	}
	return state.StateMenuChoose, nil
}

func (e *Engine) handleMenuChoose(ctx context.Context, ev event.UserEvent) (state.State, error) {
	sel, ok := selection(ev)
	switch {
	case ok && sel.Is(event.VerbDescription, 1):
		return e.showProduct(ctx, ev.Actor, sel.Args[0])
	case ok && sel.Is(event.VerbCart, 0):
		return e.showCart(ctx, ev.Actor)
	default:
		return e.stall(ctx, state.StateMenuChoose, ev)
	}
}

func (e *Engine) handleDescription(ctx context.Context, ev event.UserEvent) (state.State, error) {
	sel, ok := selection(ev)
	switch {
	case ok && sel.Is(event.VerbBack, 0):
		return e.handleStart(ctx, ev)
	case ok && sel.Is(event.VerbBuy, 2):
		quantity, err := strconv.Atoi(sel.Args[1])
		if err != nil || quantity <= 0 {
			return e.stall(ctx, state.StateDescription, ev)
		}
		return e.buy(ctx, ev, sel.Args[0], quantity)
	case ok && sel.Is(event.VerbCart, 0):
		return e.showCart(ctx, ev.Actor)
	default:
		return e.stall(ctx, state.StateDescription, ev)
	}
}

func (e *Engine) handleCart(ctx context.Context, ev event.UserEvent) (state.State, error) {
	sel, ok := selection(ev)
	switch {
	case ok && sel.Is(event.VerbMenu, 0):
		return e.handleStart(ctx, ev)
	case ok && sel.Is(event.VerbRemove, 1):
		return e.removeLine(ctx, ev.Actor, sel.Args[0])
	case ok && sel.Is(event.VerbPay, 0):
		if err := e.present(ctx, ev.Actor, presenter.EmailPromptView()); err != nil {
			return "", err
		}
		return state.StateWaitingEmail, nil
	default:
		return e.stall(ctx, state.StateCart, ev)
	}
}

// handleWaitingEmail registers the raw text as the email. The backend decides
// whether it is valid; a rejected address keeps the actor in WaitingEmail.
func (e *Engine) handleWaitingEmail(ctx context.Context, ev event.UserEvent) (state.State, error) {
	if err := e.customers.RegisterCustomer(ctx, domain.Customer{UserID: ev.Actor, Email: ev.Token}); err != nil {
		if apperrors.IsUserInput(err) {
			if perr := e.present(ctx, ev.Actor, presenter.Message{Text: apperrors.UserMessage(err)}); perr != nil {
				e.log.WarnContext(ctx, "failed to send email hint", slog.String("actor", ev.Actor.String()), slog.Any("error", perr))
			}
		}
		return "", err
	}

	if err := e.present(ctx, ev.Actor, presenter.CheckoutDoneView()); err != nil {
		return "", err
	}
	return state.StateStart, nil
}

func (e *Engine) showProduct(ctx context.Context, actor domain.UserID, productID string) (state.State, error) {
	product, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		return "", err
	}

	var imageURL string
	if product.ImageID != "" {
		image, err := e.catalog.GetImage(ctx, product.ImageID)
		if err != nil {
			return "", err
		}
		imageURL = image.URL
	}

	if err := e.present(ctx, actor, presenter.ProductView(product, imageURL)); err != nil {
		return "", err
	}
	return state.StateDescription, nil
}

func (e *Engine) showCart(ctx context.Context, actor domain.UserID) (state.State, error) {
	cartID, err := e.resolver.Resolve(ctx, actor)
	if err != nil {
		return "", err
	}
	return e.renderCart(ctx, actor, cartID)
}

func (e *Engine) renderCart(ctx context.Context, actor domain.UserID, cartID string) (state.State, error) {
	cart, err := e.carts.GetCart(ctx, cartID)
	if err != nil {
		return "", err
	}

	lines, err := e.carts.GetCartLines(ctx, cartID)
	if err != nil {
		return "", err
	}

	if err := e.present(ctx, actor, presenter.CartView(cart, lines)); err != nil {
		return "", err
	}
	return state.StateCart, nil
}

func (e *Engine) buy(ctx context.Context, ev event.UserEvent, productID string, quantity int) (state.State, error) {
	cartID, err := e.resolver.Resolve(ctx, ev.Actor)
	if err != nil {
		return "", err
	}

	if err := e.carts.AddLine(ctx, cartID, productID, quantity); err != nil {
		return "", err
	}

	if err := e.presenter.Acknowledge(ctx, ev.Actor, ev.Ref, presenter.AddedToCartText); err != nil {
		// The line is already in the cart; a lost toast is not worth failing for.
		e.log.WarnContext(ctx, "failed to acknowledge purchase", slog.String("actor", ev.Actor.String()), slog.Any("error", err))
	}

	return state.StateDescription, nil
}

func (e *Engine) removeLine(ctx context.Context, actor domain.UserID, lineID string) (state.State, error) {
	cartID, ok, err := e.sessions.CartID(ctx, actor)
	if err != nil {
		return "", apperrors.NewStoreError(err)
	}
	if !ok {
		if perr := e.present(ctx, actor, presenter.NoCartView()); perr != nil {
			e.log.WarnContext(ctx, "failed to send no-cart notice", slog.String("actor", actor.String()), slog.Any("error", perr))
		}
		return "", apperrors.NewNoCartError()
	}

	if err := e.carts.RemoveLine(ctx, cartID, lineID); err != nil {
		return "", err
	}
	return e.renderCart(ctx, actor, cartID)
}

// stall keeps the current state for events the state does not understand.
func (e *Engine) stall(ctx context.Context, current state.State, ev event.UserEvent) (state.State, error) {
	e.log.DebugContext(ctx, "ignoring unmatched event",
		slog.String("actor", ev.Actor.String()),
		slog.String("state", current.String()),
		slog.String("kind", ev.Kind.String()),
		slog.String("token", ev.Token),
	)
	return current, nil
}

func (e *Engine) present(ctx context.Context, actor domain.UserID, msg presenter.Message) error {
	if err := e.presenter.Present(ctx, actor, msg); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperrors.NewExternalAPIError("telegram", err)
	}
	return nil
}

func selection(ev event.UserEvent) (event.Selection, bool) {
	if ev.Kind != event.KindSelection {
		return event.Selection{}, false
	}
	return ev.Selection, true
}
