package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shestoi/stockflow/internal/repository"
	"github.com/shestoi/stockflow/internal/service"
)

// ProductRequest тело POST /products и PUT /products/{id}
type ProductRequest struct {
	Name          *string          `json:"name"`
	Price         *decimal.Decimal `json:"price"`
	StockQuantity *int             `json:"stock_quantity,omitempty"`
	// Version ожидаемая версия при обновлении, 0 или отсутствие - текущая
	Version int64 `json:"version,omitempty"`
}

// ProductResponse товар в ответе
type ProductResponse struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Price         string    `json:"price"`
	StockQuantity int       `json:"stock_quantity"`
	Version       int64     `json:"version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RestockRequest тело POST /products/{id}/restock
type RestockRequest struct {
	Quantity *int `json:"quantity"`
}

// StockResponse остаток после изменения
type StockResponse struct {
	ProductID     int64 `json:"product_id"`
	StockQuantity int   `json:"stock_quantity"`
}

// AvailabilityResponse ответ GET /products/{id}/availability
type AvailabilityResponse struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Available bool   `json:"available"`
	UnitPrice string `json:"unit_price"`
}

// ReservationRequest тело POST /reservations
type ReservationRequest struct {
	ProductID *int64 `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

// ReservationResponse резерв в ответе
type ReservationResponse struct {
	ReservationID  string     `json:"reservation_id"`
	ProductID      int64      `json:"product_id"`
	Quantity       int        `json:"quantity"`
	UnitPrice      string     `json:"unit_price"`
	StockRemaining *int       `json:"stock_remaining,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

// OrderItemRequest позиция в запросе на оформление
type OrderItemRequest struct {
	ProductID     *int64           `json:"product_id"`
	Quantity      *int             `json:"quantity"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	ReservationID string           `json:"reservation_id,omitempty"`
}

// OrderRequest тело POST /orders
type OrderRequest struct {
	Items []OrderItemRequest `json:"items"`
}

// OrderItemResponse позиция заказа в ответе
type OrderItemResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// OrderResponse заказ в ответе
type OrderResponse struct {
	ID        int64               `json:"id"`
	Status    string              `json:"status"`
	Items     []OrderItemResponse `json:"items"`
	Total     string              `json:"total"`
	Version   int64               `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func toProductResponse(p repository.Product) ProductResponse {
	return ProductResponse{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price.StringFixed(2),
		StockQuantity: p.StockQuantity,
		Version:       p.Version,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toOrderResponse(o repository.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
		})
	}
	return OrderResponse{
		ID:        o.ID,
		Status:    string(o.Status),
		Items:     items,
		Total:     o.Total().StringFixed(2),
		Version:   o.Version,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func toReserveResponse(r service.ReserveResult) ReservationResponse {
	remaining := r.StockRemaining
	return ReservationResponse{
		ReservationID:  r.ReservationID,
		ProductID:      r.ProductID,
		Quantity:       r.Quantity,
		UnitPrice:      r.UnitPrice.StringFixed(2),
		StockRemaining: &remaining,
	}
}

func toReservationResponse(r repository.Reservation) ReservationResponse {
	created := r.CreatedAt
	return ReservationResponse{
		ReservationID: r.ID,
		ProductID:     r.ProductID,
		Quantity:      r.Quantity,
		UnitPrice:     r.UnitPrice.StringFixed(2),
		CreatedAt:     &created,
	}
}
