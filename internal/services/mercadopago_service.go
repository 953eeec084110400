package services

import (
	"context"
	"fmt"
	"os"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/mercadopago/sdk-go/pkg/refund"
)

// MercadoPagoService wraps the Mercado Pago SDK clients used by checkout,
// webhook processing and refunds
type MercadoPagoService struct {
	preferenceClient preference.Client
	paymentClient    payment.Client
	refundClient     refund.Client
}

// NewMercadoPagoService builds the SDK clients from MP_ACCESS_TOKEN
func NewMercadoPagoService() (*MercadoPagoService, error) {
	accessToken := os.Getenv("MP_ACCESS_TOKEN")
	if accessToken == "" {
		return nil, fmt.Errorf("MP_ACCESS_TOKEN is not set")
	}

	cfg, err := config.New(accessToken)
	if err != nil {
		return nil, fmt.Errorf("mercadopago config error: %w", err)
	}

	return &MercadoPagoService{
		preferenceClient: preference.NewClient(cfg),
		paymentClient:    payment.NewClient(cfg),
		refundClient:     refund.NewClient(cfg),
	}, nil
}

// CreatePreference creates a checkout preference (payment intent) and
// returns the provider response with the redirect init point
func (s *MercadoPagoService) CreatePreference(ctx context.Context, req preference.Request) (*preference.Response, error) {
	resp, err := s.preferenceClient.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mercadopago create preference error: %w", err)
	}
	return resp, nil
}

// GetPayment fetches the current state of a payment by its provider ID.
// Webhook notifications are never trusted for status; this fetch is.
func (s *MercadoPagoService) GetPayment(ctx context.Context, paymentID int) (*payment.Response, error) {
	resp, err := s.paymentClient.Get(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("mercadopago get payment error: %w", err)
	}
	return resp, nil
}

// RefundPayment refunds the full captured amount of a payment
func (s *MercadoPagoService) RefundPayment(ctx context.Context, paymentID int) (*refund.Response, error) {
	resp, err := s.refundClient.Create(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("mercadopago refund error: %w", err)
	}
	return resp, nil
}

// PartialRefundPayment refunds part of a payment's captured amount
func (s *MercadoPagoService) PartialRefundPayment(ctx context.Context, paymentID int, amount float64) (*refund.Response, error) {
	resp, err := s.refundClient.CreatePartialRefund(ctx, paymentID, amount)
	if err != nil {
		return nil, fmt.Errorf("mercadopago partial refund error: %w", err)
	}
	return resp, nil
}
