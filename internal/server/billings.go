package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/dormhub/internal/billing/domain"
	"github.com/smallbiznis/dormhub/internal/providers/pdf"
	"github.com/smallbiznis/dormhub/pkg/db/pagination"
	"go.uber.org/zap"
)

const (
	headerIdempotencyKey = "X-Idempotency-Key"

	maxExportPages = 100
)

type runBillingRequest struct {
	BillingMonth         string         `json:"billing_month"`
	WaterUnits           flexibleString `json:"water_units"`
	PreviousMeterReading flexibleString `json:"previous_meter_reading"`
	CurrentMeterReading  flexibleString `json:"current_meter_reading"`
	DueDate              string         `json:"due_date"`
}

func (s *Server) RunBilling(c *gin.Context) {
	var req runBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	roomID := strings.TrimSpace(c.Param("id"))
	resp, err := s.billingSvc.RunBilling(c.Request.Context(), billingdomain.RunBillingRequest{
		RoomID:               roomID,
		Period:               strings.TrimSpace(req.BillingMonth),
		WaterUnits:           string(req.WaterUnits),
		PreviousMeterReading: string(req.PreviousMeterReading),
		CurrentMeterReading:  string(req.CurrentMeterReading),
		DueDate:              strings.TrimSpace(req.DueDate),
		IdempotencyKey:       strings.TrimSpace(c.GetHeader(headerIdempotencyKey)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("billing_id", resp.Billing.ID.String())
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": resp})
}

type previewBillingRequest struct {
	RoomID               string         `json:"room_id"`
	WaterUnits           flexibleString `json:"water_units"`
	PreviousMeterReading flexibleString `json:"previous_meter_reading"`
	CurrentMeterReading  flexibleString `json:"current_meter_reading"`
}

func (s *Server) PreviewBilling(c *gin.Context) {
	var req previewBillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billingSvc.Preview(c.Request.Context(), billingdomain.PreviewRequest{
		RoomID:               strings.TrimSpace(req.RoomID),
		WaterUnits:           string(req.WaterUnits),
		PreviousMeterReading: string(req.PreviousMeterReading),
		CurrentMeterReading:  string(req.CurrentMeterReading),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type listBillingsQuery struct {
	pagination.Pagination
	Status string `form:"status"`
	RoomID string `form:"room_id"`
	Month  string `form:"month"`
}

func (q listBillingsQuery) request() billingdomain.ListBillingRequest {
	return billingdomain.ListBillingRequest{
		PageToken: q.PageToken,
		PageSize:  q.PageSize,
		Status:    strings.TrimSpace(q.Status),
		RoomID:    strings.TrimSpace(q.RoomID),
		Month:     strings.TrimSpace(q.Month),
	}
}

func (s *Server) ListBillings(c *gin.Context) {
	var query listBillingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billingSvc.List(c.Request.Context(), query.request())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ExportBillings walks every page matching the filters and returns the
// reporting shape of each row.
func (s *Server) ExportBillings(c *gin.Context) {
	var query listBillingsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := query.request()
	rows := make([]billingdomain.ExportRow, 0)
	for page := 0; page < maxExportPages; page++ {
		resp, err := s.billingSvc.List(c.Request.Context(), req)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		for _, billing := range resp.Billings {
			rows = append(rows, billing.Export())
		}
		if !resp.HasMore || resp.NextPageToken == "" {
			break
		}
		req.PageToken = resp.NextPageToken
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) GetBilling(c *gin.Context) {
	resp, err := s.billingSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type markPaidRequest struct {
	PaymentMethod string `json:"payment_method"`
}

func (s *Server) MarkBillingPaid(c *gin.Context) {
	var req markPaidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		method = string(billingdomain.PaidSourceManual)
	}
	billingID := strings.TrimSpace(c.Param("id"))
	c.Set("billing_id", billingID)

	resp, err := s.billingSvc.MarkPaid(c.Request.Context(), billingdomain.MarkPaidRequest{
		BillingID:     billingID,
		Source:        billingdomain.PaidSourceManual,
		PaymentMethod: method,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DownloadReceipt(c *gin.Context) {
	ctx := c.Request.Context()
	billing, err := s.billingSvc.GetByID(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	roomNumber := ""
	if room, err := s.roomSvc.GetByID(ctx, billing.RoomID.String()); err == nil {
		roomNumber = room.Number
	} else {
		s.log.Warn("receipt room lookup failed", zap.String("billing_id", billing.ID.String()), zap.Error(err))
	}

	doc, err := s.pdf.GenerateReceipt(ctx, pdf.ReceiptFromBilling(billing, roomNumber))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+pdf.FileName(billing.ReceiptNumber, billing.TenantName)+`"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}
