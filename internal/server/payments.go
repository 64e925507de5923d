package server

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/dormhub/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/dormhub/internal/payment/domain"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

// checkoutRequest keeps the legacy body shape. Amount is accepted but the
// charged amount always comes from the stored billing.
type checkoutRequest struct {
	BillingID      string         `json:"billingId"`
	BillingIDSnake string         `json:"billing_id"`
	Amount         flexibleString `json:"amount"`
	Description    string         `json:"description"`
	Provider       string         `json:"provider"`
}

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	billingID := strings.TrimSpace(req.BillingID)
	if billingID == "" {
		billingID = strings.TrimSpace(req.BillingIDSnake)
	}
	s.startCheckout(c, billingID, req)
}

func (s *Server) CreateBillingCheckout(c *gin.Context) {
	var req checkoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	s.startCheckout(c, strings.TrimSpace(c.Param("id")), req)
}

func (s *Server) startCheckout(c *gin.Context, billingID string, req checkoutRequest) {
	c.Set("billing_id", billingID)
	resp, err := s.paymentSvc.StartCheckout(c.Request.Context(), paymentdomain.StartCheckoutRequest{
		BillingID:   billingID,
		Amount:      string(req.Amount),
		Description: strings.TrimSpace(req.Description),
		Provider:    strings.TrimSpace(req.Provider),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandlePaymentReturn resolves the gateway redirect and always sends the
// browser back to the application, even when the status update fails.
func (s *Server) HandlePaymentReturn(c *gin.Context) {
	ctx := c.Request.Context()
	outcome := paymentdomain.RedirectOutcome{
		Success:   queryFlag(c, "success"),
		Canceled:  queryFlag(c, "canceled"),
		BillingID: strings.TrimSpace(c.Query("billing_id")),
		SessionID: strings.TrimSpace(c.Query("session_id")),
	}
	c.Set("billing_id", outcome.BillingID)

	params := url.Values{}
	params.Set("billing_id", outcome.BillingID)

	result, err := s.paymentSvc.ResolveRedirect(ctx, outcome)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("payment redirect resolution failed",
			zap.String("billing_id", outcome.BillingID),
			zap.Error(err),
		)
		_, payload := mapError(err)
		params.Set("payment", "error")
		params.Set("error", payload.Type)
	} else {
		params.Set("payment", string(result.Resolution))
		params.Set("status", result.Status)
	}

	c.Redirect(http.StatusFound, strings.TrimRight(s.cfg.PublicURL, "/")+"/billings?"+params.Encode())
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if result.BillingID != "" {
		c.Set("billing_id", result.BillingID)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "data": result})
}

func queryFlag(c *gin.Context, key string) bool {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}
