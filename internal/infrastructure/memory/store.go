package memory

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	domaddress "github.com/Zhima-Mochi/minishop-checkout/internal/domain/address"
	domcart "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	dominventory "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	domrecon "github.com/Zhima-Mochi/minishop-checkout/internal/domain/reconciliation"
	domsales "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sales"
)

// Store keeps every checkout aggregate in process memory. A transaction holds
// the store lock for its whole duration and undoes its writes on failure, so
// other callers never observe uncommitted state.
type Store struct {
	mu sync.Mutex

	orders     map[string]*domorder.Order
	byExternal map[string]string
	products   map[int64]domcatalog.Product
	stock      map[int64]*dominventory.Item
	carts      map[string]*domcart.Cart
	sales      []domsales.Record
	addresses  map[int64]*domaddress.Address
	recon      []domrecon.Item
	intents    map[string]dompayment.Intent
}

func NewStore() *Store {
	return &Store{
		orders:     make(map[string]*domorder.Order),
		byExternal: make(map[string]string),
		products:   make(map[int64]domcatalog.Product),
		stock:      make(map[int64]*dominventory.Item),
		carts:      make(map[string]*domcart.Cart),
		addresses:  make(map[int64]*domaddress.Address),
		intents:    make(map[string]dompayment.Intent),
	}
}

// PutProduct inserts or replaces a catalog product and its stock level.
func (s *Store) PutProduct(p domcatalog.Product) error {
	item, err := dominventory.NewItem(p.ID, p.Stock)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Stock = 0
	s.products[p.ID] = p
	s.stock[p.ID] = item
	return nil
}

func (s *Store) PutAddress(a domaddress.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.addresses[a.ID] = &cp
}

func (s *Store) Addresses() domaddress.Repository { return &addressRepository{s: s} }

func (s *Store) Intents() dompayment.IntentRepository { return &intentRepository{s: s} }

func (s *Store) Orders() domorder.Repository { return &orderRepository{s: s} }

func (s *Store) Reconciliations() domrecon.Repository { return &reconciliationRepository{s: s} }

func (s *Store) Carts() domcart.Store { return &cartStore{s: s} }

func (s *Store) Inventory() dominventory.Ledger { return &inventoryLedger{s: s} }

func (s *Store) Sales() domsales.Ledger { return &salesLedger{s: s} }

func (s *Store) Catalog() domcatalog.Reader { return &catalogReader{s: s} }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &txn{}
	defer func() {
		if r := recover(); r != nil {
			t.rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, &txView{s: s, t: t}); err != nil {
		t.rollback()
		return err
	}
	return nil
}

// txn is an undo log.
type txn struct {
	undo []func()
}

func (t *txn) onRollback(fn func()) {
	if t != nil {
		t.undo = append(t.undo, fn)
	}
}

func (t *txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// locked runs fn under the store lock unless it already belongs to a transaction holding it.
func (s *Store) locked(t *txn, fn func()) {
	if t != nil {
		fn()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

type txView struct {
	s *Store
	t *txn
}

func (v *txView) Orders() domorder.Repository   { return &orderRepository{s: v.s, t: v.t} }
func (v *txView) Carts() domcart.Store          { return &cartStore{s: v.s, t: v.t} }
func (v *txView) Inventory() dominventory.Ledger { return &inventoryLedger{s: v.s, t: v.t} }
func (v *txView) Sales() domsales.Ledger        { return &salesLedger{s: v.s, t: v.t} }
func (v *txView) Catalog() domcatalog.Reader    { return &catalogReader{s: v.s, t: v.t} }

var _ checkout.Store = (*Store)(nil)
