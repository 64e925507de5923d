package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/dormhub/internal/audit/domain"
	billingdomain "github.com/smallbiznis/dormhub/internal/billing/domain"
	"github.com/smallbiznis/dormhub/internal/clock"
	"github.com/smallbiznis/dormhub/internal/config"
	"github.com/smallbiznis/dormhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/dormhub/internal/observability/metrics"
	"github.com/smallbiznis/dormhub/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/dormhub/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       paymentdomain.Repository
	BillingSvc billingdomain.Service
	Adapters   *adapters.Registry
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	AuditSvc   auditdomain.Service `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.PaymentConfig
	repo       paymentdomain.Repository
	billingSvc billingdomain.Service
	adapters   *adapters.Registry
	obsMetrics *obsmetrics.Metrics
	auditSvc   auditdomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg.Payment,
		repo:       p.Repo,
		billingSvc: p.BillingSvc,
		adapters:   p.Adapters,
		obsMetrics: p.ObsMetrics,
		auditSvc:   p.AuditSvc,
	}
}

// StartCheckout opens a hosted checkout for the stored billing sum. Any
// client-supplied amount is only compared and logged.
func (s *Service) StartCheckout(ctx context.Context, req paymentdomain.StartCheckoutRequest) (paymentdomain.CheckoutResponse, error) {
	log := logger.WithContext(ctx, s.log)

	billing, err := s.loadBilling(ctx, req.BillingID)
	if err != nil {
		return paymentdomain.CheckoutResponse{}, err
	}
	if billing.Status == billingdomain.StatusPaid {
		return paymentdomain.CheckoutResponse{}, paymentdomain.ErrAlreadyPaid
	}
	if !billing.Sum.IsPositive() {
		return paymentdomain.CheckoutResponse{}, paymentdomain.ErrInvalidAmount
	}

	if raw := strings.TrimSpace(req.Amount); raw != "" {
		clientAmount, err := decimal.NewFromString(raw)
		if err != nil || !clientAmount.Equal(billing.Sum) {
			log.Warn("client checkout amount ignored",
				zap.String("billing_id", billing.ID.String()),
				zap.String("client_amount", raw),
				zap.String("billing_sum", billing.Sum.StringFixed(2)),
			)
		}
	}

	gateway, err := s.adapters.Get(req.Provider)
	if err != nil {
		return paymentdomain.CheckoutResponse{}, err
	}
	provider := gateway.Provider()

	checkoutID := s.genID.Generate()
	result, err := gateway.CreateCheckoutSession(ctx, paymentdomain.CheckoutRequest{
		Reference:     checkoutID.String(),
		BillingID:     billing.ID.String(),
		ReceiptNumber: billing.ReceiptNumber,
		Description:   strings.TrimSpace(req.Description),
		CustomerName:  billing.TenantName,
		Amount:        billing.Sum,
		Currency:      billing.Currency,
		SuccessURL:    returnURL(s.cfg.SuccessURL, billing.ID.String(), checkoutID.String()),
		CancelURL:     returnURL(s.cfg.CancelURL, billing.ID.String(), checkoutID.String()),
	})
	if err != nil {
		s.obsMetrics.RecordCheckoutSession(ctx, provider, "error")
		log.Error("create checkout session failed",
			zap.String("billing_id", billing.ID.String()),
			zap.String("provider", provider),
			zap.Error(err),
		)
		if errors.Is(err, paymentdomain.ErrInvalidAmount) || errors.Is(err, paymentdomain.ErrInvalidConfig) {
			return paymentdomain.CheckoutResponse{}, err
		}
		return paymentdomain.CheckoutResponse{}, fmt.Errorf("%w: %w", paymentdomain.ErrGatewayUnavailable, err)
	}

	now := s.clock.Now()
	session := paymentdomain.CheckoutSession{
		ID:                checkoutID,
		BillingID:         billing.ID,
		Provider:          provider,
		ProviderSessionID: result.ProviderSessionID,
		Amount:            billing.Sum,
		Currency:          billing.Currency,
		RedirectURL:       result.RedirectURL,
		Status:            paymentdomain.SessionStatusOpen,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.InsertSession(ctx, s.db, &session); err != nil {
		return paymentdomain.CheckoutResponse{}, err
	}

	s.obsMetrics.RecordCheckoutSession(ctx, provider, "created")
	log.Info("checkout session created",
		zap.String("billing_id", billing.ID.String()),
		zap.String("checkout_id", checkoutID.String()),
		zap.String("provider", provider),
	)
	if s.auditSvc != nil {
		billingID := billing.ID.String()
		_ = s.auditSvc.AuditLog(ctx, "", nil, auditdomain.ActionCheckoutStarted, auditdomain.TargetBilling, &billingID, map[string]any{
			"provider":            provider,
			"checkout_id":         checkoutID.String(),
			"provider_session_id": result.ProviderSessionID,
			"amount":              billing.Sum.StringFixed(2),
		})
	}

	return paymentdomain.CheckoutResponse{
		ID:         result.ProviderSessionID,
		URL:        result.RedirectURL,
		CheckoutID: checkoutID.String(),
		Provider:   provider,
		Amount:     billing.Sum,
		Currency:   billing.Currency,
	}, nil
}

// ResolveRedirect applies the browser return from the gateway.
//
//	pending|overdue --success--> paid
//	pending --cancel--> pending
//	paid --success--> paid (no-op)
func (s *Service) ResolveRedirect(ctx context.Context, outcome paymentdomain.RedirectOutcome) (paymentdomain.ResolveResult, error) {
	log := logger.WithContext(ctx, s.log)

	billing, err := s.loadBilling(ctx, outcome.BillingID)
	if err != nil {
		return paymentdomain.ResolveResult{}, err
	}
	result := paymentdomain.ResolveResult{
		BillingID: billing.ID.String(),
		Status:    string(billing.Status),
	}

	session, err := s.findSession(ctx, billing.ID, outcome.SessionID)
	if err != nil {
		return paymentdomain.ResolveResult{}, err
	}

	if outcome.Canceled || !outcome.Success {
		if session != nil {
			if err := s.repo.UpdateSessionStatus(ctx, s.db, session.ID, paymentdomain.SessionStatusCanceled, s.clock.Now()); err != nil {
				log.Warn("mark checkout session canceled failed", zap.Error(err))
			}
		}
		result.Resolution = paymentdomain.ResolutionCanceled
		if billing.Status == billingdomain.StatusPaid {
			result.Resolution = paymentdomain.ResolutionAlreadyPaid
		}
		log.Info("payment redirect canceled", zap.String("billing_id", result.BillingID))
		return result, nil
	}

	if billing.Status == billingdomain.StatusPaid {
		result.Resolution = paymentdomain.ResolutionAlreadyPaid
		return result, nil
	}

	method := "gateway"
	switch s.cfg.RedirectTrust {
	case config.RedirectTrustWebhook:
		result.Resolution = paymentdomain.ResolutionPendingConfirmation
		return result, nil
	case config.RedirectTrustTrust:
		if session != nil {
			method = "gateway:" + session.Provider
		}
	default:
		if session == nil {
			log.Warn("payment redirect has no checkout session to verify", zap.String("billing_id", result.BillingID))
			result.Resolution = paymentdomain.ResolutionUnverified
			return result, nil
		}
		paid, err := s.verifySession(ctx, session)
		if err != nil {
			return paymentdomain.ResolveResult{}, err
		}
		if !paid {
			log.Warn("payment redirect not confirmed by gateway",
				zap.String("billing_id", result.BillingID),
				zap.String("checkout_id", session.ID.String()),
			)
			result.Resolution = paymentdomain.ResolutionUnverified
			return result, nil
		}
		method = "gateway:" + session.Provider
	}

	marked, err := s.billingSvc.MarkPaid(ctx, billingdomain.MarkPaidRequest{
		BillingID:     billing.ID.String(),
		Source:        billingdomain.PaidSourceRedirect,
		PaymentMethod: method,
	})
	if err != nil {
		return paymentdomain.ResolveResult{}, err
	}
	if session != nil {
		if err := s.repo.UpdateSessionStatus(ctx, s.db, session.ID, paymentdomain.SessionStatusCompleted, s.clock.Now()); err != nil {
			log.Warn("mark checkout session completed failed", zap.Error(err))
		}
	}

	result.Status = string(marked.Billing.Status)
	result.Resolution = paymentdomain.ResolutionPaid
	if !marked.Transitioned {
		result.Resolution = paymentdomain.ResolutionAlreadyPaid
	}
	return result, nil
}

func (s *Service) verifySession(ctx context.Context, session *paymentdomain.CheckoutSession) (bool, error) {
	gateway, err := s.adapters.Get(session.Provider)
	if err != nil {
		return false, err
	}
	state, err := gateway.FetchSessionStatus(ctx, session.ProviderSessionID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", paymentdomain.ErrGatewayUnavailable, err)
	}
	return state.Paid, nil
}

// findSession resolves the checkout the browser returned from. The session
// must belong to the billing named in the redirect.
func (s *Service) findSession(ctx context.Context, billingID snowflake.ID, rawSessionID string) (*paymentdomain.CheckoutSession, error) {
	rawSessionID = strings.TrimSpace(rawSessionID)
	if rawSessionID == "" {
		return s.repo.FindLatestSessionForBilling(ctx, s.db, billingID)
	}

	var session *paymentdomain.CheckoutSession
	if id, err := snowflake.ParseString(rawSessionID); err == nil && id > 0 {
		found, err := s.repo.FindSessionByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		session = found
	}
	if session == nil {
		latest, err := s.repo.FindLatestSessionForBilling(ctx, s.db, billingID)
		if err != nil {
			return nil, err
		}
		if latest != nil && latest.ProviderSessionID == rawSessionID {
			session = latest
		}
	}
	if session == nil || session.BillingID != billingID {
		return nil, nil
	}
	return session, nil
}

func (s *Service) loadBilling(ctx context.Context, rawID string) (billingdomain.BillingRecord, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil || id <= 0 {
		return billingdomain.BillingRecord{}, paymentdomain.ErrInvalidBillingID
	}
	billing, err := s.billingSvc.GetByID(ctx, id.String())
	if err != nil {
		if errors.Is(err, billingdomain.ErrNotFound) {
			return billingdomain.BillingRecord{}, paymentdomain.ErrBillingNotFound
		}
		return billingdomain.BillingRecord{}, err
	}
	return billing, nil
}

func returnURL(base, billingID, checkoutID string) string {
	parsed, err := url.Parse(base)
	if err != nil {
		return base
	}
	query := parsed.Query()
	query.Set("billing_id", billingID)
	query.Set("session_id", checkoutID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
