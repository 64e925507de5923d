package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/dormhub/internal/billing/domain"
	"github.com/smallbiznis/dormhub/internal/clock"
	"github.com/smallbiznis/dormhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/dormhub/internal/observability/metrics"
	"github.com/smallbiznis/dormhub/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/dormhub/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	BillingSvc billingdomain.Service
	Adapters   *adapters.Registry
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	billingSvc billingdomain.Service
	adapters   *adapters.Registry
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		billingSvc: p.BillingSvc,
		adapters:   p.Adapters,
		obsMetrics: p.ObsMetrics,
	}
}

// IngestWebhook verifies and records a gateway event exactly once, then
// applies it. A verified success is an independent writer of paid status.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.WebhookResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.WebhookResult{}, paymentdomain.ErrInvalidProvider
	}
	result := paymentdomain.WebhookResult{Provider: provider}

	gateway, err := s.adapters.Get(provider)
	if err != nil {
		return result, err
	}
	if !json.Valid(payload) {
		return result, paymentdomain.ErrInvalidPayload
	}

	log := logger.WithContext(ctx, s.log).With(zap.String("provider", provider))

	if err := gateway.Verify(ctx, payload, headers); err != nil {
		log.Warn("payment webhook rejected", zap.Error(err))
		return result, err
	}

	event, err := gateway.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			result.Ignored = true
			return result, nil
		}
		return result, err
	}
	if strings.TrimSpace(event.ProviderEventID) == "" {
		return result, paymentdomain.ErrInvalidEvent
	}
	result.EventID = event.ProviderEventID
	result.EventType = event.Type

	session, err := s.resolveSession(ctx, provider, event)
	if err != nil {
		return result, err
	}
	if event.BillingID == 0 && session != nil {
		event.BillingID = session.BillingID
	}
	if event.BillingID != 0 {
		result.BillingID = event.BillingID.String()
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		BillingID:       event.BillingID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return result, err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, provider, event.ProviderEventID)
		if err != nil {
			return result, err
		}
		if stored == nil {
			return result, paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			result.Duplicate = true
			log.Info("payment webhook already processed", zap.String("event_id", event.ProviderEventID))
			return result, nil
		}
	}

	if err := s.apply(ctx, event, session); err != nil {
		return result, err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return result, err
	}
	if inserted {
		s.obsMetrics.RecordPaymentEvent(ctx, provider, event.Type)
	}
	return result, nil
}

func (s *Service) apply(ctx context.Context, event *paymentdomain.PaymentEvent, session *paymentdomain.CheckoutSession) error {
	log := logger.WithContext(ctx, s.log).With(
		zap.String("provider", event.Provider),
		zap.String("event_id", event.ProviderEventID),
	)

	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		if event.BillingID == 0 {
			log.Warn("payment webhook has no billing reference")
			return paymentdomain.ErrInvalidEvent
		}
		if session != nil && !event.Amount.IsZero() && !event.Amount.Equal(session.Amount) {
			log.Warn("payment webhook amount differs from checkout",
				zap.String("event_amount", event.Amount.String()),
				zap.String("checkout_amount", session.Amount.String()),
			)
		}
		_, err := s.billingSvc.MarkPaid(ctx, billingdomain.MarkPaidRequest{
			BillingID:     event.BillingID.String(),
			Source:        billingdomain.PaidSourceWebhook,
			PaymentMethod: "gateway:" + event.Provider,
		})
		if err != nil {
			if errors.Is(err, billingdomain.ErrNotFound) {
				return paymentdomain.ErrBillingNotFound
			}
			return err
		}
		return s.updateSession(ctx, session, paymentdomain.SessionStatusCompleted)
	case paymentdomain.EventTypeSessionExpired:
		return s.updateSession(ctx, session, paymentdomain.SessionStatusExpired)
	case paymentdomain.EventTypePaymentFailed:
		log.Info("payment failed at gateway", zap.Stringer("billing_id", event.BillingID))
		return nil
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) resolveSession(ctx context.Context, provider string, event *paymentdomain.PaymentEvent) (*paymentdomain.CheckoutSession, error) {
	if strings.TrimSpace(event.ProviderSessionID) == "" {
		return nil, nil
	}
	return s.repo.FindSessionByProviderID(ctx, s.db, provider, event.ProviderSessionID)
}

func (s *Service) updateSession(ctx context.Context, session *paymentdomain.CheckoutSession, status paymentdomain.SessionStatus) error {
	if session == nil {
		return nil
	}
	return s.repo.UpdateSessionStatus(ctx, s.db, session.ID, status, s.clock.Now())
}
