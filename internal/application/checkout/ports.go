package checkout

import (
	"context"

	domaddress "github.com/Zhima-Mochi/minishop-checkout/internal/domain/address"
	domcart "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	dominventory "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	domrecon "github.com/Zhima-Mochi/minishop-checkout/internal/domain/reconciliation"
	domsales "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sales"
)

type IDGenerator interface {
	NewID() string
}

// CartInvalidator forgets any cached copy of a user's cart.
type CartInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Tx exposes the repositories that take part in order materialization.
// Everything done through a Tx commits or rolls back together; the cart read
// through Carts() is locked until the transaction ends.
type Tx interface {
	Orders() domorder.Repository
	Carts() domcart.Store
	Inventory() dominventory.Ledger
	Sales() domsales.Ledger
	Catalog() domcatalog.Reader
}

// Store is the persistence boundary of the checkout flow.
type Store interface {
	Addresses() domaddress.Repository
	Intents() dompayment.IntentRepository
	Orders() domorder.Repository
	Reconciliations() domrecon.Repository
	// WithinTx runs fn in a single transaction. A non-nil error from fn rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
