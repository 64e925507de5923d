package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	billingdomain "github.com/smallbiznis/dormhub/internal/billing/domain"
)

const dateLayout = "2006-01-02"

type ReceiptData struct {
	Title         string
	ReceiptNumber string
	BillingMonth  string
	TenantName    string
	RoomNumber    string
	DueDate       string
	Status        string
	DatePaid      string
	PaymentMethod string
	Currency      string

	Items []ReceiptItem
	Total string
}

type ReceiptItem struct {
	Description string
	Quantity    string
	Amount      string
}

// ReceiptFromBilling maps a stored billing onto the receipt layout.
func ReceiptFromBilling(record billingdomain.BillingRecord, roomNumber string) ReceiptData {
	data := ReceiptData{
		Title:         "Receipt",
		ReceiptNumber: record.ReceiptNumber,
		BillingMonth:  record.BillingMonth.Format("January 2006"),
		TenantName:    record.TenantName,
		RoomNumber:    roomNumber,
		DueDate:       record.DueDate.Format(dateLayout),
		Status:        string(record.Status),
		PaymentMethod: record.PaymentMethod,
		Currency:      record.Currency,
		Items: []ReceiptItem{
			{Description: "Room rent", Quantity: "1", Amount: record.RoomRent.StringFixed(2)},
			{Description: "Water", Quantity: record.WaterUnits.String(), Amount: record.WaterCost.StringFixed(2)},
			{
				Description: fmt.Sprintf("Electricity (%s to %s)", record.PreviousMeterReading.String(), record.CurrentMeterReading.String()),
				Quantity:    record.ElectricityUnits.String(),
				Amount:      record.ElectricityCost.StringFixed(2),
			},
		},
		Total: record.Sum.StringFixed(2),
	}
	if record.PaidDate != nil {
		data.DatePaid = record.PaidDate.Format(dateLayout)
	} else {
		data.Title = "Billing statement"
	}
	return data
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) ([]byte, error) {
	if strings.TrimSpace(receipt.ReceiptNumber) == "" {
		return nil, fmt.Errorf("receipt number is required")
	}
	if receipt.Title == "" {
		receipt.Title = "Receipt"
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(25,
		text.NewCol(8, receipt.Title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, receipt.ReceiptNumber, props.Text{
			Size:  10,
			Align: align.Right,
			Top:   4,
		}),
	)

	paidLine := "Status: " + receipt.Status
	if receipt.DatePaid != "" {
		paidLine = "Date paid: " + receipt.DatePaid
	}
	m.AddRow(30,
		col.New(6).Add(
			text.New("Billed to", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.TenantName, props.Text{Top: 5}),
			text.New("Room "+receipt.RoomNumber, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Billing month: "+receipt.BillingMonth, props.Text{Align: align.Right}),
			text.New("Due date: "+receipt.DueDate, props.Text{Top: 5, Align: align.Right}),
			text.New(paidLine, props.Text{Top: 10, Align: align.Right}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Units", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range receipt.Items {
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(3, item.Quantity, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(12,
		col.New(6),
		text.NewCol(3, "Total", props.Text{Size: 10, Style: fontstyle.Bold, Top: 3}),
		text.NewCol(3, receipt.Currency+" "+receipt.Total, props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right, Top: 3}),
	)
	if receipt.PaymentMethod != "" {
		m.AddRow(8,
			text.NewCol(12, "Paid via "+receipt.PaymentMethod, props.Text{Size: 8}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
