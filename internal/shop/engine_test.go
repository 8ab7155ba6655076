package shop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-shop/internal/domain"
	apperrors "github.com/Proton-105/himera-shop/internal/errors"
	"github.com/Proton-105/himera-shop/internal/event"
	"github.com/Proton-105/himera-shop/internal/presenter"
	"github.com/Proton-105/himera-shop/internal/session"
	"github.com/Proton-105/himera-shop/internal/state"
)

type harness struct {
	engine    *Engine
	backend   *fakeBackend
	presenter *recordingPresenter
	sessions  *session.Sessions
	store     *session.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := session.NewMemoryStore()
	sessions := session.NewSessions(store, discardLogger())
	backend := newFakeBackend()
	pres := &recordingPresenter{}

	engine := NewEngine(Deps{
		Sessions:  sessions,
		Catalog:   backend,
		Carts:     backend,
		Customers: backend,
		Presenter: pres,
		Log:       discardLogger(),
	})

	return &harness{engine: engine, backend: backend, presenter: pres, sessions: sessions, store: store}
}

func (h *harness) state(t *testing.T, actor domain.UserID) state.State {
	t.Helper()
	st, err := h.sessions.State(context.Background(), actor)
	require.NoError(t, err)
	return st
}

func (h *harness) setState(t *testing.T, actor domain.UserID, st state.State) {
	t.Helper()
	require.NoError(t, h.sessions.SetState(context.Background(), actor, st))
}

func start(actor domain.UserID) event.UserEvent {
	return event.UserEvent{Actor: actor, Token: event.CommandStart, Kind: event.KindCommand}
}

func tap(actor domain.UserID, token string) event.UserEvent {
	return event.UserEvent{
		Actor:     actor,
		Token:     token,
		Kind:      event.KindSelection,
		Selection: event.ParseSelection(token),
		Ref:       "cb-" + token,
	}
}

func text(actor domain.UserID, body string) event.UserEvent {
	return event.UserEvent{Actor: actor, Token: body, Kind: event.KindText}
}

func TestEngine_PurchaseScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	const actor = domain.UserID(42)

	require.NoError(t, h.engine.Handle(ctx, start(actor)))
	assert.Equal(t, state.StateMenuChoose, h.state(t, actor))
	assert.Equal(t, presenter.MenuView(h.backend.products), h.presenter.last())

	require.NoError(t, h.engine.Handle(ctx, tap(actor, "/description p1")))
	assert.Equal(t, state.StateDescription, h.state(t, actor))
	product := h.presenter.last()
	assert.Equal(t, "https://cdn.example/salmon.png", product.PhotoURL)
	require.Len(t, product.Choices, 3)
	assert.Equal(t, []presenter.Choice{
		{Label: "1 kg", Token: "/buy p1 1"},
		{Label: "3 kg", Token: "/buy p1 3"},
		{Label: "5 kg", Token: "/buy p1 5"},
	}, product.Choices[0])

	prompts := h.presenter.count()
	require.NoError(t, h.engine.Handle(ctx, tap(actor, "/buy p1 3")))
	assert.Equal(t, state.StateDescription, h.state(t, actor))
	assert.Equal(t, prompts, h.presenter.count(), "purchase acknowledgement must not replace the prompt")
	assert.Equal(t, []acknowledgement{{Ref: "cb-/buy p1 3", Text: presenter.AddedToCartText}}, h.presenter.acks)

	cartID, ok, err := h.sessions.CartID(ctx, actor)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cart-1", cartID)

	require.NoError(t, h.engine.Handle(ctx, tap(actor, "/cart")))
	assert.Equal(t, state.StateCart, h.state(t, actor))
	cart := h.presenter.last()
	assert.Contains(t, cart.Text, "Salmon")
	assert.Contains(t, cart.Text, "3 kg in cart for $30.00")
	assert.Contains(t, cart.Text, "Total: $30.00")
	assert.Equal(t, []presenter.Choice{{Label: "Remove Salmon", Token: "/remove line-1"}}, cart.Choices[0])

	require.NoError(t, h.engine.Handle(ctx, tap(actor, "/pay")))
	assert.Equal(t, state.StateWaitingEmail, h.state(t, actor))
	assert.Equal(t, presenter.EmailPromptView(), h.presenter.last())

	require.NoError(t, h.engine.Handle(ctx, text(actor, "a@b.com")))
	assert.Equal(t, state.StateStart, h.state(t, actor))
	assert.Equal(t, []domain.Customer{{UserID: actor, Email: "a@b.com"}}, h.backend.customers)
	assert.Equal(t, presenter.CheckoutDoneView(), h.presenter.last())

	assert.Equal(t, int32(1), h.backend.cartsMade)
}

func TestEngine_StartAlwaysResets(t *testing.T) {
	for _, prior := range state.All {
		prior := prior
		t.Run(prior.String(), func(t *testing.T) {
			h := newHarness(t)
			h.setState(t, 7, prior)

			require.NoError(t, h.engine.Handle(context.Background(), start(7)))
			assert.Equal(t, state.StateMenuChoose, h.state(t, 7))
		})
	}
}

func TestEngine_AnyEventInStartShowsMenu(t *testing.T) {
	h := newHarness(t)
	h.setState(t, 7, state.StateStart)

	require.NoError(t, h.engine.Handle(context.Background(), text(7, "hello")))
	assert.Equal(t, state.StateMenuChoose, h.state(t, 7))
	assert.Equal(t, "Please choose:", h.presenter.last().Text)
}

func TestEngine_UnknownUser(t *testing.T) {
	h := newHarness(t)

	err := h.engine.Handle(context.Background(), tap(9, "/cart"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownUser))
	assert.True(t, apperrors.IsUserInput(err))
	assert.Equal(t, presenter.StartHintView(), h.presenter.last())
	assert.Empty(t, h.store.Snapshot(), "nothing is written for unknown users")
}

func TestEngine_CorruptedStateAsksForStart(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Set(context.Background(), session.StateKey(9), "LEGACY"))

	err := h.engine.Handle(context.Background(), tap(9, "/cart"))
	assert.ErrorIs(t, err, apperrors.ErrUnknownUser)
}

func TestEngine_UnmatchedEventsStall(t *testing.T) {
	testCases := []struct {
		name  string
		state state.State
		event event.UserEvent
	}{
		{name: "menu free text", state: state.StateMenuChoose, event: text(1, "hi")},
		{name: "menu unknown verb", state: state.StateMenuChoose, event: tap(1, "/pay")},
		{name: "menu description without id", state: state.StateMenuChoose, event: tap(1, "/description")},
		{name: "buy missing quantity", state: state.StateDescription, event: tap(1, "/buy p1")},
		{name: "buy non-numeric quantity", state: state.StateDescription, event: tap(1, "/buy p1 lots")},
		{name: "buy zero quantity", state: state.StateDescription, event: tap(1, "/buy p1 0")},
		{name: "cart remove without id", state: state.StateCart, event: tap(1, "/remove")},
		{name: "cart typed pay", state: state.StateCart, event: text(1, "/pay")},
		{name: "waiting email button", state: state.StateWaitingEmail, event: tap(1, "/menu")},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.setState(t, 1, tc.state)

			for i := 0; i < 2; i++ {
				require.NoError(t, h.engine.Handle(context.Background(), tc.event))
				assert.Equal(t, tc.state, h.state(t, 1))
			}

			assert.Zero(t, h.presenter.count())
			assert.Empty(t, h.presenter.acks)
			assert.Zero(t, h.backend.cartsMade)
			assert.Empty(t, h.backend.customers)
		})
	}
}

func TestEngine_BackendFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.setState(t, 3, state.StateDescription)
	h.backend.failAdd = apperrors.NewExternalAPIError("commerce", errors.New("503"))

	err := h.engine.Handle(context.Background(), tap(3, "/buy p1 1"))
	require.Error(t, err)
	assert.False(t, apperrors.IsUserInput(err))
	assert.Equal(t, state.StateDescription, h.state(t, 3))

	h.setState(t, 3, state.StateCart)
	h.backend.failListing = apperrors.NewExternalAPIError("commerce", errors.New("503"))

	require.Error(t, h.engine.Handle(context.Background(), tap(3, "/menu")))
	assert.Equal(t, state.StateCart, h.state(t, 3))
}

func TestEngine_RemoveRequiresCart(t *testing.T) {
	h := newHarness(t)
	h.setState(t, 5, state.StateCart)

	err := h.engine.Handle(context.Background(), tap(5, "/remove line-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNoCart)
	assert.Equal(t, state.StateCart, h.state(t, 5))
	assert.Equal(t, presenter.NoCartView(), h.presenter.last())
	assert.Zero(t, h.backend.cartsMade)
}

func TestEngine_RemoveLastLineShowsEmptyCart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.setState(t, 5, state.StateDescription)

	require.NoError(t, h.engine.Handle(ctx, tap(5, "/buy p2 1")))
	require.NoError(t, h.engine.Handle(ctx, tap(5, "/cart")))
	require.NoError(t, h.engine.Handle(ctx, tap(5, "/remove line-1")))

	assert.Equal(t, state.StateCart, h.state(t, 5))
	cart := h.presenter.last()
	assert.Equal(t, "Total: $0.00", cart.Text)
	assert.Equal(t, [][]presenter.Choice{
		{{Label: "Pay", Token: "/pay"}},
		{{Label: "Menu", Token: "/menu"}},
	}, cart.Choices)
}

func TestEngine_ShowCartCreatesCartLazily(t *testing.T) {
	h := newHarness(t)
	h.setState(t, 8, state.StateMenuChoose)

	require.NoError(t, h.engine.Handle(context.Background(), tap(8, "/cart")))
	assert.Equal(t, state.StateCart, h.state(t, 8))
	assert.Equal(t, int32(1), h.backend.cartsMade)
	assert.Equal(t, "Total: $0.00", h.presenter.last().Text)
}

func TestEngine_BackFromDescription(t *testing.T) {
	h := newHarness(t)
	h.setState(t, 8, state.StateDescription)

	require.NoError(t, h.engine.Handle(context.Background(), tap(8, "/back")))
	assert.Equal(t, state.StateMenuChoose, h.state(t, 8))
	assert.Equal(t, "Please choose:", h.presenter.last().Text)
}

func TestEngine_ProductWithoutImage(t *testing.T) {
	h := newHarness(t)
	h.setState(t, 8, state.StateMenuChoose)

	require.NoError(t, h.engine.Handle(context.Background(), tap(8, "/description p2")))
	assert.Empty(t, h.presenter.last().PhotoURL)
}

type faultyStore struct {
	*session.MemoryStore
	failGet, failSet, failSetIfAbsent bool
}

var errStoreDown = errors.New("store down")

func (s *faultyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.failGet {
		return "", false, errStoreDown
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *faultyStore) Set(ctx context.Context, key, value string) error {
	if s.failSet {
		return errStoreDown
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func (s *faultyStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	if s.failSetIfAbsent {
		return false, errStoreDown
	}
	return s.MemoryStore.SetIfAbsent(ctx, key, value)
}

func TestEngine_StoreFailureAbortsWithoutWrites(t *testing.T) {
	testCases := []struct {
		name  string
		prior state.State
		event event.UserEvent
		fault func(*faultyStore)
	}{
		{name: "state read", prior: state.StateMenuChoose, event: tap(5, "/cart"), fault: func(s *faultyStore) { s.failGet = true }},
		{name: "state write", prior: state.StateMenuChoose, event: tap(5, "/description p1"), fault: func(s *faultyStore) { s.failSet = true }},
		{name: "cart claim", prior: state.StateDescription, event: tap(5, "/buy p1 3"), fault: func(s *faultyStore) { s.failSetIfAbsent = true }},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			store := &faultyStore{MemoryStore: session.NewMemoryStore()}
			sessions := session.NewSessions(store, discardLogger())
			backend := newFakeBackend()
			engine := NewEngine(Deps{
				Sessions:  sessions,
				Catalog:   backend,
				Carts:     backend,
				Customers: backend,
				Presenter: &recordingPresenter{},
				Log:       discardLogger(),
			})

			require.NoError(t, sessions.SetState(context.Background(), 5, tc.prior))
			before := store.Snapshot()
			tc.fault(store)

			err := engine.Handle(context.Background(), tc.event)

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.CodeStore, appErr.Code)
			assert.ErrorIs(t, err, errStoreDown)
			assert.Equal(t, before, store.Snapshot(), "no partial writes")
		})
	}
}

func TestEngine_StartDeepLinkInWaitingEmail(t *testing.T) {
	h := newHarness(t)
	h.setState(t, 7, state.StateWaitingEmail)

	ev, ok := event.Normalize(telebot.Update{ID: 1, Message: &telebot.Message{
		ID: 3, Chat: &telebot.Chat{ID: 7}, Text: "/start ref42",
	}})
	require.True(t, ok)

	require.NoError(t, h.engine.Handle(context.Background(), ev))
	assert.Equal(t, state.StateMenuChoose, h.state(t, 7))
	assert.Empty(t, h.backend.customers)
}

func TestEngine_RejectedEmailStaysWaiting(t *testing.T) {
	h := newHarness(t)
	h.setState(t, 7, state.StateWaitingEmail)
	h.backend.failCustomer = apperrors.NewValidationError("Please send a valid email address.")

	err := h.engine.Handle(context.Background(), text(7, "not-an-email"))
	require.Error(t, err)
	assert.True(t, apperrors.IsUserInput(err))
	assert.Equal(t, state.StateWaitingEmail, h.state(t, 7))
	assert.Contains(t, h.presenter.last().Text, "valid email")
}

func TestEngine_TextOnlyReachesTextStates(t *testing.T) {
	h := newHarness(t)
	h.setState(t, 7, state.StateCart)
	prompts := h.presenter.count()

	require.NoError(t, h.engine.Handle(context.Background(), text(7, "/pay")))
	assert.Equal(t, state.StateCart, h.state(t, 7), "typed text must not act as a button")
	assert.Equal(t, prompts, h.presenter.count())
}
