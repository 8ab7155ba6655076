package shop

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Proton-105/himera-shop/internal/domain"
	apperrors "github.com/Proton-105/himera-shop/internal/errors"
	"github.com/Proton-105/himera-shop/internal/presenter"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend is an in-memory commerce backend.
type fakeBackend struct {
	mu          sync.Mutex
	products    []domain.Product
	images      map[string]string
	carts       map[string][]domain.CartLine
	customers   []domain.Customer
	cartsMade   int32
	nextLine    int
	failListing  error
	failAdd      error
	failCustomer error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		products: []domain.Product{
			{ID: "p1", Name: "Salmon", Description: "Fresh salmon", Price: "$10.00", Stock: 20, ImageID: "img-1"},
			{ID: "p2", Name: "Trout", Description: "River trout", Price: "$7.00", Stock: 5},
		},
		images: map[string]string{"img-1": "https://cdn.example/salmon.png"},
		carts:  make(map[string][]domain.CartLine),
	}
}

func (f *fakeBackend) ListProducts(context.Context) ([]domain.Product, error) {
	if f.failListing != nil {
		return nil, f.failListing
	}
	return f.products, nil
}

func (f *fakeBackend) GetProduct(_ context.Context, id string) (domain.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, apperrors.NewPermanentAPIError("commerce", fmt.Errorf("product %s not found", id))
}

func (f *fakeBackend) GetImage(_ context.Context, id string) (domain.Image, error) {
	return domain.Image{ID: id, URL: f.images[id]}, nil
}

func (f *fakeBackend) CreateCart(context.Context, domain.UserID) (domain.Cart, error) {
	n := atomic.AddInt32(&f.cartsMade, 1)
	id := fmt.Sprintf("cart-%d", n)

	f.mu.Lock()
	f.carts[id] = nil
	f.mu.Unlock()

	return domain.Cart{ID: id}, nil
}

func (f *fakeBackend) GetCart(_ context.Context, id string) (domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	for _, line := range f.carts[id] {
		total += line.Quantity * 10
	}
	return domain.Cart{ID: id, Total: fmt.Sprintf("$%d.00", total)}, nil
}

func (f *fakeBackend) GetCartLines(_ context.Context, id string) ([]domain.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CartLine(nil), f.carts[id]...), nil
}

func (f *fakeBackend) AddLine(_ context.Context, cartID, productID string, quantity int) error {
	if f.failAdd != nil {
		return f.failAdd
	}

	product, err := f.GetProduct(context.Background(), productID)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextLine++
	f.carts[cartID] = append(f.carts[cartID], domain.CartLine{
		ID:          fmt.Sprintf("line-%d", f.nextLine),
		ProductID:   productID,
		Name:        product.Name,
		Description: product.Description,
		UnitPrice:   product.Price,
		Quantity:    quantity,
		Total:       fmt.Sprintf("$%d.00", quantity*10),
	})
	return nil
}

func (f *fakeBackend) RemoveLine(_ context.Context, cartID, lineID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines := f.carts[cartID]
	for i, line := range lines {
		if line.ID == lineID {
			f.carts[cartID] = append(lines[:i], lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeBackend) RegisterCustomer(_ context.Context, customer domain.Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCustomer != nil {
		return f.failCustomer
	}
	f.customers = append(f.customers, customer)
	return nil
}

type acknowledgement struct {
	Ref  string
	Text string
}

// recordingPresenter keeps every presented screen.
type recordingPresenter struct {
	mu       sync.Mutex
	prompts  []presenter.Message
	acks     []acknowledgement
	notices  []string
	retracts int
}

func (p *recordingPresenter) Present(_ context.Context, _ domain.UserID, msg presenter.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, msg)
	return nil
}

func (p *recordingPresenter) RetractPrompt(context.Context, domain.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retracts++
	return nil
}

func (p *recordingPresenter) Acknowledge(_ context.Context, _ domain.UserID, ref, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acks = append(p.acks, acknowledgement{Ref: ref, Text: text})
	return nil
}

func (p *recordingPresenter) Notify(_ context.Context, _ domain.UserID, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, text)
	return nil
}

func (p *recordingPresenter) last() presenter.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prompts) == 0 {
		return presenter.Message{}
	}
	return p.prompts[len(p.prompts)-1]
}

func (p *recordingPresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}
