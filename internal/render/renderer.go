// Package render turns invoice documents into printable PDFs by executing
// HTML templates and converting them through Gotenberg.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/clientdoc/internal/invoices"
	"github.com/odyssey-erp/clientdoc/web"
)

// DocKind names a printable document.
type DocKind string

const (
	KindInvoice   DocKind = "invoice"
	KindChallan   DocKind = "delivery-challan"
	KindTransport DocKind = "transport-charges"
)

var (
	ErrUnknownKind      = errors.New("render: unknown document kind")
	ErrMissingSatellite = errors.New("render: document has no such satellite record")
)

// ParseDocKind accepts the canonical kind names and the short slot aliases.
func ParseDocKind(raw string) (DocKind, error) {
	switch raw {
	case string(KindInvoice):
		return KindInvoice, nil
	case string(KindChallan), "dc":
		return KindChallan, nil
	case string(KindTransport), "transport":
		return KindTransport, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

func (k DocKind) template() string {
	switch k {
	case KindInvoice:
		return "invoice.html"
	case KindChallan:
		return "delivery_challan.html"
	case KindTransport:
		return "transport_charges.html"
	}
	return ""
}

// CompanyProfile is the issuing company printed on every document.
type CompanyProfile struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	GSTIN     string `json:"gstin"`
	State     string `json:"state"`
	StateCode string `json:"state_code"`
}

// PDFClient exposes the subset of the Gotenberg client used by the renderer.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer renders invoice documents to PDF.
type Renderer struct {
	tpl    *template.Template
	client PDFClient
}

type pageData struct {
	Kind    DocKind
	Doc     invoices.Document
	Company CompanyProfile
}

// NewRenderer parses the document templates and wires the PDF client.
func NewRenderer(client PDFClient) (*Renderer, error) {
	if client == nil {
		return nil, fmt.Errorf("render: pdf client required")
	}
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02-Jan-2006")
		},
		"formatDatePtr": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return ""
			}
			return t.Format("02-Jan-2006")
		},
		"money": func(d decimal.Decimal) string {
			return d.StringFixed(2)
		},
		"percent": func(rate decimal.Decimal) string {
			return rate.Shift(2).String() + "%"
		},
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"inc": func(i int) int { return i + 1 },
	}
	tpl, err := template.New("documents").Funcs(funcMap).ParseFS(web.Templates, "templates/documents/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse document templates: %w", err)
	}
	return &Renderer{tpl: tpl, client: client}, nil
}

// HTML executes the template for kind.
func (r *Renderer) HTML(kind DocKind, doc invoices.Document, company CompanyProfile) (string, error) {
	if r == nil || r.tpl == nil {
		return "", fmt.Errorf("render: renderer not initialised")
	}
	name := kind.template()
	if name == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	switch {
	case kind == KindChallan && doc.Invoice.DeliveryChallan == nil:
		return "", fmt.Errorf("%w: delivery challan", ErrMissingSatellite)
	case kind == KindTransport && doc.Invoice.Transport == nil:
		return "", fmt.Errorf("%w: transport charges", ErrMissingSatellite)
	}
	buf := &bytes.Buffer{}
	if err := r.tpl.ExecuteTemplate(buf, name, pageData{Kind: kind, Doc: doc, Company: company}); err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}
	return buf.String(), nil
}

// Render executes the template and converts the HTML to PDF bytes.
func (r *Renderer) Render(ctx context.Context, kind DocKind, doc invoices.Document, company CompanyProfile) ([]byte, error) {
	html, err := r.HTML(kind, doc, company)
	if err != nil {
		return nil, err
	}
	if r.client == nil {
		return nil, fmt.Errorf("render: pdf client required")
	}
	pdf, err := r.client.RenderHTML(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("render %s pdf: %w", kind, err)
	}
	return pdf, nil
}
