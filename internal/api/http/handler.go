package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/repository"
	"github.com/shestoi/stockflow/internal/service"
	"github.com/shestoi/stockflow/platform/observability"
)

// Handler содержит HTTP-обработчики каталога, резервов и заказов
// Зависит от service слоя, но не знает о деталях хранилищ
type Handler struct {
	catalog      *service.CatalogService
	reservations *service.ReservationManager
	orders       *service.OrderService
	logger       *zap.Logger
}

// NewHandler создаёт новый HTTP handler
func NewHandler(
	catalog *service.CatalogService,
	reservations *service.ReservationManager,
	orders *service.OrderService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		catalog:      catalog,
		reservations: reservations,
		orders:       orders,
		logger:       logger,
	}
}

func (h *Handler) log(r *http.Request) *zap.Logger {
	return observability.LoggerFromContext(r.Context(), h.logger)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// ListProducts обрабатывает GET /products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateProduct обрабатывает POST /products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Name == nil || req.Price == nil {
		writeBadRequest(w, "name and price are required")
		return
	}

	in := service.CreateProductInput{Name: *req.Name, Price: *req.Price}
	if req.StockQuantity != nil {
		in.StockQuantity = *req.StockQuantity
	}
	p, err := h.catalog.CreateProduct(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResponse(p))
}

// GetProduct обрабатывает GET /products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	p, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// UpdateProduct обрабатывает PUT /products/{id}, остаток этим запросом не меняется
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Name == nil || req.Price == nil {
		writeBadRequest(w, "name and price are required")
		return
	}
	if req.StockQuantity != nil {
		writeBadRequest(w, "stock_quantity cannot be updated, use restock")
		return
	}

	p, err := h.catalog.UpdateProduct(r.Context(), service.UpdateProductInput{
		ID:      id,
		Name:    *req.Name,
		Price:   *req.Price,
		Version: req.Version,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// DeleteProduct обрабатывает DELETE /products/{id}
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := h.catalog.DeleteProduct(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestockProduct обрабатывает POST /products/{id}/restock
func (h *Handler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req RestockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Quantity == nil {
		writeBadRequest(w, "quantity is required")
		return
	}

	qty, err := h.catalog.Restock(r.Context(), id, *req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StockResponse{ProductID: id, StockQuantity: qty})
}

// CheckAvailability обрабатывает GET /products/{id}/availability?quantity=N
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	quantity := 1
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		if quantity, err = strconv.Atoi(raw); err != nil {
			writeBadRequest(w, fmt.Sprintf("invalid quantity %q", raw))
			return
		}
	}

	res, err := h.reservations.Validate(r.Context(), id, quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		ProductID: id,
		Quantity:  quantity,
		Available: res.Available,
		UnitPrice: res.UnitPrice.StringFixed(2),
	})
}

// CreateReservation обрабатывает POST /reservations
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req ReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.ProductID == nil || req.Quantity == nil {
		writeBadRequest(w, "product_id and quantity are required")
		return
	}

	res, err := h.reservations.Reserve(r.Context(), *req.ProductID, *req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReserveResponse(res))
}

// GetReservation обрабатывает GET /reservations/{id}
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.reservations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(res))
}

// DeleteReservation обрабатывает DELETE /reservations/{id}
// Повторное снятие отвечает тем же 204
func (h *Handler) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	if err := h.reservations.Release(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostOrders обрабатывает POST /orders - оформление заказа
func (h *Handler) PostOrders(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeBadRequest(w, "items are required")
		return
	}

	items := make([]repository.OrderItem, 0, len(req.Items))
	for i, it := range req.Items {
		if it.ProductID == nil || it.Quantity == nil {
			writeBadRequest(w, fmt.Sprintf("product_id and quantity are required in items[%d]", i))
			return
		}
		item := repository.OrderItem{
			ProductID:     *it.ProductID,
			Quantity:      *it.Quantity,
			ReservationID: it.ReservationID,
		}
		if it.UnitPrice != nil {
			item.UnitPrice = *it.UnitPrice
		}
		items = append(items, item)
	}

	order, err := h.orders.PlaceOrder(r.Context(), items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log(r).Info("order created", zap.Int64("order_id", order.ID))
	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// ListOrders обрабатывает GET /orders и GET /orders?status=...
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var (
		orders []repository.Order
		err    error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		orders, err = h.orders.ListOrdersByStatus(r.Context(), repository.OrderStatus(status))
	} else {
		orders, err = h.orders.ListOrders(r.Context())
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOrder обрабатывает GET /orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// CancelOrder обрабатывает POST /orders/{id}/cancel
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	order, err := h.orders.CancelOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// FulfillOrder обрабатывает POST /orders/{id}/fulfill
func (h *Handler) FulfillOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	order, err := h.orders.FulfillOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}
