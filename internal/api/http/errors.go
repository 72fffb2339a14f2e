package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/shestoi/paybridge/internal/payment"
	"github.com/shestoi/paybridge/internal/repository"
	"github.com/shestoi/paybridge/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError единственное место, где ошибки сервиса превращаются в HTTP-коды.
// Внутренние детали (SQL, ответ провайдера) наружу не отдаются.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		validationErr *payment.ValidationError
		authErr       *payment.AuthError
		providerErr   *payment.ProviderError
	)

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &authErr):
		writeError(w, http.StatusBadRequest, "invalid signature")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, repository.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, service.ErrUnknownProvider):
		writeError(w, http.StatusNotFound, "unknown provider")
	case errors.Is(err, repository.ErrInvoiceAlreadyAttached),
		errors.Is(err, repository.ErrExternalIDTaken):
		writeError(w, http.StatusConflict, "order already has an invoice")
	case errors.Is(err, repository.ErrOrderClosed):
		writeError(w, http.StatusConflict, "order is closed")
	case errors.As(err, &providerErr):
		log.Error("payment provider request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "payment provider error")
	default:
		log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
