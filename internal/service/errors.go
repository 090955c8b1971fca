package service

import (
	"errors"

	"github.com/RomuloBreno/project-easy-briefing/internal/billing"
	"github.com/RomuloBreno/project-easy-briefing/internal/domain"
)

// Analysis errors
var (
	ErrContentRequired = domain.Errorf(domain.EINVALID, "", "Content is required")

	ErrAnalyzerUnavailable = &domain.Error{Code: domain.EUNAVAILABLE, Message: "Analysis service is unavailable, please try again"}
)

// Reconciliation errors
var (
	ErrPaymentNotFound = &domain.Error{Code: domain.ENOTFOUND, Message: "Payment not found at the gateway"}
)

// storeError keeps domain errors raised by a store and wraps everything
// else as a persistence failure.
func storeError(op string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.ErrPersistenceFailure.Wrap(op, err)
}

// gatewayError maps a billing error to the domain taxonomy. Unknown payment
// ids are not retryable; every other failure is reported as the gateway
// being unavailable.
func gatewayError(op string, err error) error {
	if errors.Is(err, billing.ErrPaymentNotFound) {
		return ErrPaymentNotFound.Wrap(op, err)
	}
	return domain.ErrGatewayUnavailable.Wrap(op, err)
}
