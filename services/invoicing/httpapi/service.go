// Package httpapi exposes the invoice composer over HTTP.
package httpapi

import (
	"context"
	"fmt"

	"github.com/R3E-Network/billing_layer/internal/logging"
	commonservice "github.com/R3E-Network/billing_layer/services/common/service"
	"github.com/R3E-Network/billing_layer/services/invoicing"
)

const (
	ServiceID   = "billing"
	ServiceName = "Billing Service"
	Version     = "1.0.0"
)

// Renderer turns a stored invoice into a document.
type Renderer interface {
	Render(inv *invoicing.PersistedInvoice) ([]byte, error)
}

// Archiver keeps a rendered document and returns where it was stored.
type Archiver interface {
	Store(ctx context.Context, inv *invoicing.PersistedInvoice, data []byte) (string, error)
}

// Config configures the HTTP service.
type Config struct {
	Invoicing *invoicing.Service
	Sessions  *invoicing.Sessions
	Renderer  Renderer
	// Archiver is optional; without it the archive route is not registered.
	Archiver       Archiver
	CurrencySymbol string
	Logger         *logging.Logger
}

// Service serves drafts, invoices and company settings.
type Service struct {
	*commonservice.BaseService
	invoicing *invoicing.Service
	sessions  *invoicing.Sessions
	renderer  Renderer
	archiver  Archiver
	currency  string
}

// New creates the service and registers its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Invoicing == nil {
		return nil, fmt.Errorf("httpapi: invoicing service is required")
	}
	if cfg.Renderer == nil {
		return nil, fmt.Errorf("httpapi: renderer is required")
	}
	if cfg.Sessions == nil {
		cfg.Sessions = invoicing.NewSessions(nil)
	}
	if cfg.CurrencySymbol == "" {
		cfg.CurrencySymbol = "₹"
	}

	base := commonservice.NewBase(commonservice.BaseConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Logger:  cfg.Logger,
	})

	s := &Service{
		BaseService: base,
		invoicing:   cfg.Invoicing,
		sessions:    cfg.Sessions,
		renderer:    cfg.Renderer,
		archiver:    cfg.Archiver,
		currency:    cfg.CurrencySymbol,
	}
	base.WithStats(s.statistics)

	base.RegisterStandardRoutes()
	s.registerRoutes()
	return s, nil
}

func (s *Service) statistics() map[string]any {
	return map[string]any{
		"open_drafts": s.sessions.Len(),
	}
}
