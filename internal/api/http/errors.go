package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/shestoi/stockflow/internal/repository"
	"github.com/shestoi/stockflow/internal/service"
)

// ErrorResponse тело ответа с ошибкой
// Code машиночитаемый вид ошибки, Available заполняется при нехватке остатка
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Available *int   `json:"available,omitempty"`
}

// statusFor сопоставляет доменную ошибку HTTP статусу и коду
func statusFor(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var (
		shortage   *service.InsufficientStockError
		conflict   *service.ConcurrencyConflictError
		transition *service.InvalidTransitionError
		notify     *service.NotificationError
	)
	switch {
	case errors.As(err, &shortage):
		resp.Code = "insufficient_stock"
		resp.Available = &shortage.Available
		return http.StatusConflict, resp
	case errors.As(err, &transition):
		resp.Code = "invalid_transition"
		return http.StatusConflict, resp
	case errors.As(err, &conflict):
		resp.Code = "concurrency_conflict"
		return http.StatusConflict, resp
	case errors.Is(err, service.ErrProductInUse):
		resp.Code = "product_in_use"
		return http.StatusConflict, resp
	case errors.As(err, &notify):
		resp.Code = "notification_failed"
		return http.StatusBadGateway, resp
	case errors.Is(err, repository.ErrNotFound):
		resp.Code = "not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, service.ErrSessionRequired):
		resp.Code = "session_required"
		return http.StatusUnauthorized, resp
	case errors.Is(err, service.ErrInvalidOrder),
		errors.Is(err, service.ErrInvalidProduct),
		errors.Is(err, service.ErrInvalidQuantity):
		resp.Code = "invalid_request"
		return http.StatusBadRequest, resp
	}

	resp.Error = "internal server error"
	resp.Code = "internal"
	return http.StatusInternalServerError, resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: "invalid_request"})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, resp := statusFor(err)
	log := h.log(r)
	if code >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err), zap.Int("status", code))
	} else {
		log.Debug("request rejected", zap.Error(err), zap.Int("status", code))
	}
	writeJSON(w, code, resp)
}
