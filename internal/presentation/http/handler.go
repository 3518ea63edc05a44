package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	appinventory "github.com/Zhima-Mochi/minishop-checkout/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	domrecon "github.com/Zhima-Mochi/minishop-checkout/internal/domain/reconciliation"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

const (
	componentHTTPHandler = "http_server"
	headerUserID         = "X-User-ID"
	headerUserRole       = "X-User-Role"
	roleAdmin            = "admin"
	maxBodyBytes         = 1 << 20
)

// CartService is the part of the cart application the transport needs.
type CartService interface {
	Get(ctx context.Context, userID string) (*appcart.View, error)
	AddItem(ctx context.Context, userID string, productID int64, quantity int) error
}

// Deps are the use cases served over HTTP. Health and Metrics are optional.
type Deps struct {
	CreateIntent        application.UseCase[checkout.CreateIntentInput, *checkout.CreateIntentResult]
	Capture             application.UseCase[checkout.CaptureInput, *checkout.CaptureResult]
	ListReconciliations application.UseCase[checkout.ListReconciliationsInput, []domrecon.Item]
	GetOrder            application.UseCase[apporder.GetOrderInput, *apporder.OrderView]
	ListOrders          application.UseCase[apporder.ListOrdersInput, []*apporder.OrderView]
	UpdateStatus        application.UseCase[apporder.UpdateStatusInput, *apporder.UpdateStatusResult]
	StockLevel          application.UseCase[appinventory.StockLevelInput, *appinventory.StockLevel]
	Carts               CartService
	Health              func(ctx context.Context) error
	Metrics             http.Handler
}

type Handler struct {
	deps Deps
	log  observability.Logger
	tel  observability.Observability
}

func NewHandler(deps Deps, logger observability.Logger, tel observability.Observability) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	if logger == nil {
		logger = tel.Logger()
	}
	return &Handler{
		deps: deps,
		log:  logger.With(observability.F("component", componentHTTPHandler)),
		tel:  tel,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(ObservabilityMiddleware(h.log, h.tel))

	r.Get("/health", h.handleHealth)
	if h.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Post("/checkout/intents", h.handleCreateIntent)
		r.Post("/checkout/capture", h.handleCapture)
		r.Get("/orders", h.handleListOrders)
		r.Get("/orders/{id}", h.handleGetOrder)
		r.Get("/cart", h.handleGetCart)
		r.Post("/cart/items", h.handleAddCartItem)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Patch("/orders/{id}/status", h.handleUpdateStatus)
			r.Get("/reconciliations", h.handleListReconciliations)
			r.Get("/products/{id}/stock", h.handleStockLevel)
		})
	})
	return r
}

type userKey struct{}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get(headerUserID)
		if uid == "" {
			writeError(w, http.StatusUnauthorized, errors.New("missing "+headerUserID+" header"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, uid)))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerUserRole) != roleAdmin {
			writeError(w, http.StatusForbidden, errors.New("admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(userKey{}).(string)
	return uid
}

type intentItemRequest struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

type createIntentRequest struct {
	AddressID int64               `json:"address_id"`
	Items     []intentItemRequest `json:"items"`
	Total     decimal.Decimal     `json:"total"`
}

type createIntentResponse struct {
	ExternalOrderID string `json:"external_order_id"`
	AddressID       int64  `json:"address_id"`
	Total           string `json:"total"`
}

func (h *Handler) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	items := make([]checkout.IntentItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, checkout.IntentItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
		})
	}

	res, err := h.deps.CreateIntent.Execute(r.Context(), checkout.CreateIntentInput{
		UserID:    userID(r),
		AddressID: req.AddressID,
		Items:     items,
		Total:     req.Total,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createIntentResponse{
		ExternalOrderID: res.ExternalOrderID,
		AddressID:       res.AddressID,
		Total:           res.Total.StringFixed(2),
	})
}

type captureRequest struct {
	ExternalOrderID string `json:"external_order_id"`
	AddressID       int64  `json:"address_id"`
}

type orderItemResponse struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type captureResponse struct {
	OrderID         string              `json:"order_id"`
	ExternalOrderID string              `json:"external_order_id"`
	Status          domorder.Status     `json:"status"`
	Total           string              `json:"total"`
	Items           []orderItemResponse `json:"items"`
	Replayed        bool                `json:"replayed"`
}

func (h *Handler) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.deps.Capture.Execute(r.Context(), checkout.CaptureInput{
		UserID:          userID(r),
		ExternalOrderID: req.ExternalOrderID,
		AddressID:       req.AddressID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, captureResponse{
		OrderID:         res.OrderID,
		ExternalOrderID: res.ExternalOrderID,
		Status:          res.Status,
		Total:           res.Total.StringFixed(2),
		Items:           itemsResponse(res.Items),
		Replayed:        res.Replayed,
	})
}

type orderResponse struct {
	ID              string              `json:"id"`
	ExternalOrderID string              `json:"external_order_id"`
	AddressID       int64               `json:"address_id"`
	Status          domorder.Status     `json:"status"`
	Total           string              `json:"total"`
	Items           []orderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func orderBody(v *apporder.OrderView) orderResponse {
	return orderResponse{
		ID:              v.ID,
		ExternalOrderID: v.ExternalOrderID,
		AddressID:       v.AddressID,
		Status:          v.Status,
		Total:           v.Total,
		Items:           itemsResponse(v.Items),
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.GetOrder.Execute(r.Context(), apporder.GetOrderInput{
		UserID:  userID(r),
		OrderID: chi.URLParam(r, "id"),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderBody(view))
}

type listOrdersResponse struct {
	Orders []orderResponse `json:"orders"`
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	views, err := h.deps.ListOrders.Execute(r.Context(), apporder.ListOrdersInput{UserID: userID(r)})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	body := listOrdersResponse{Orders: make([]orderResponse, 0, len(views))}
	for _, v := range views {
		body.Orders = append(body.Orders, orderBody(v))
	}
	writeJSON(w, http.StatusOK, body)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updateStatusResponse struct {
	Order   orderResponse `json:"order"`
	Changed bool          `json:"changed"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.deps.UpdateStatus.Execute(r.Context(), apporder.UpdateStatusInput{
		OrderID: chi.URLParam(r, "id"),
		Status:  req.Status,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updateStatusResponse{Order: orderBody(res.Order), Changed: res.Changed})
}

type reconciliationResponse struct {
	Reference       string     `json:"reference"`
	Kind            string     `json:"kind"`
	ExternalOrderID string     `json:"external_order_id"`
	UserID          string     `json:"user_id"`
	CapturedAmount  string     `json:"captured_amount"`
	Reason          string     `json:"reason"`
	OccurredAt      time.Time  `json:"occurred_at"`
	OrderID         string     `json:"order_id,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

func (h *Handler) handleListReconciliations(w http.ResponseWriter, r *http.Request) {
	items, err := h.deps.ListReconciliations.Execute(r.Context(), checkout.ListReconciliationsInput{
		OpenOnly: r.URL.Query().Get("open") == "true",
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]reconciliationResponse, 0, len(items))
	for _, it := range items {
		out = append(out, reconciliationResponse{
			Reference:       it.Reference,
			Kind:            string(it.Kind),
			ExternalOrderID: it.ExternalOrderID,
			UserID:          it.UserID,
			CapturedAmount:  it.CapturedAmount.StringFixed(2),
			Reason:          it.Reason,
			OccurredAt:      it.OccurredAt,
			OrderID:         it.OrderID,
			ResolvedAt:      it.ResolvedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type stockLevelResponse struct {
	ProductID int64 `json:"product_id"`
	Available int   `json:"available"`
	Sold      int   `json:"sold"`
	Low       bool  `json:"low"`
}

func (h *Handler) handleStockLevel(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid product id: %w", err))
		return
	}
	level, err := h.deps.StockLevel.Execute(r.Context(), appinventory.StockLevelInput{ProductID: productID})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockLevelResponse{
		ProductID: level.ProductID,
		Available: level.Available,
		Sold:      level.Sold,
		Low:       level.Low,
	})
}

type cartLineResponse struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
}

type cartResponse struct {
	Items []cartLineResponse `json:"items"`
	Total string             `json:"total"`
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Carts.Get(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	body := cartResponse{Items: make([]cartLineResponse, 0, len(view.Lines)), Total: view.Total.StringFixed(2)}
	for _, l := range view.Lines {
		body.Items = append(body.Items, cartLineResponse{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, body)
}

type addCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (h *Handler) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.deps.Carts.AddItem(r.Context(), userID(r), req.ProductID, req.Quantity); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func itemsResponse(items []domorder.Item) []orderItemResponse {
	out := make([]orderItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, orderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			Subtotal:  it.Subtotal.StringFixed(2),
		})
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
