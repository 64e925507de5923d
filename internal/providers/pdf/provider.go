package pdf

import (
	"context"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

type Provider interface {
	GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) GenerateReceipt(ctx context.Context, data ReceiptData) ([]byte, error) {
	return nil, nil
}

// FileName builds a download name such as "rcp-202610-000001-ana-lee.pdf".
func FileName(receiptNumber, tenantName string) string {
	name := slug.Make(strings.TrimSpace(receiptNumber + " " + tenantName))
	if name == "" {
		name = "receipt"
	}
	return name + ".pdf"
}
