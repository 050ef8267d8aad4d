package bundle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/clientdoc/internal/invoices"
	"github.com/odyssey-erp/clientdoc/internal/invoices/memstore"
	"github.com/odyssey-erp/clientdoc/internal/masterdata"
	mdstore "github.com/odyssey-erp/clientdoc/internal/masterdata/memstore"
	"github.com/odyssey-erp/clientdoc/internal/render"
	"github.com/odyssey-erp/clientdoc/internal/shared"
)

type fakeRenderer struct {
	t        *testing.T
	mu       sync.Mutex
	rendered []render.DocKind
	fail     map[render.DocKind]error
}

func (f *fakeRenderer) Render(_ context.Context, kind render.DocKind, doc invoices.Document, _ render.CompanyProfile) ([]byte, error) {
	f.mu.Lock()
	f.rendered = append(f.rendered, kind)
	f.mu.Unlock()
	if err := f.fail[kind]; err != nil {
		return nil, err
	}
	return onePagePDF(f.t, string(kind)+" "+doc.Number), nil
}

type outcomes struct {
	got []string
}

func (o *outcomes) ObserveBundle(outcome string, _ time.Duration) {
	o.got = append(o.got, outcome)
}

type finalizeFixture struct {
	svc       *invoices.Service
	files     *memFiles
	renderer  *fakeRenderer
	activity  *shared.MemoryActivity
	observer  *outcomes
	finalizer *Finalizer
	location  masterdata.Location
	widget    masterdata.Item
}

func newFinalizeFixture(t *testing.T) *finalizeFixture {
	t.Helper()
	ctx := context.Background()
	catalog := masterdata.NewService(mdstore.New(), nil, nil, nil)
	loc, _, err := catalog.UpsertLocation(ctx, masterdata.Location{Name: "Warehouse A", StateCode: "29"})
	require.NoError(t, err)
	widget, _, err := catalog.UpsertItem(ctx, masterdata.Item{Name: "Widget", Price: decimal.NewFromInt(100)}, "")
	require.NoError(t, err)

	files := newMemFiles()
	activity := &shared.MemoryActivity{}
	svc := invoices.NewService(memstore.New(), catalog, activity, invoices.ServiceConfig{CompanyStateCode: "29", Files: files})
	renderer := &fakeRenderer{t: t, fail: map[render.DocKind]error{}}
	observer := &outcomes{}
	return &finalizeFixture{
		svc:       svc,
		files:     files,
		renderer:  renderer,
		activity:  activity,
		observer:  observer,
		finalizer: NewFinalizer(svc, renderer, files, render.CompanyProfile{Name: "Tsol"}, observer, nil),
		location:  loc,
		widget:    widget,
	}
}

func (f *finalizeFixture) invoice(t *testing.T, tally string, challan, transport bool) invoices.Invoice {
	t.Helper()
	ctx := context.Background()
	in := invoices.CreateInvoiceInput{
		LocationID: f.location.ID,
		Lines:      []invoices.LineInput{{ItemID: f.widget.ID, Quantity: 2}},
	}
	if tally != "" {
		in.TallyNumber = &tally
	}
	inv, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	if challan {
		inv, err = f.svc.SaveChallan(ctx, inv.ID, invoices.ChallanInput{})
		require.NoError(t, err)
	}
	if transport {
		inv, err = f.svc.SaveTransport(ctx, inv.ID, invoices.TransportInput{Charges: decimal.NewFromInt(50)})
		require.NoError(t, err)
	}
	return inv
}

func TestFinalizeWritesBundleAndAdvances(t *testing.T) {
	ctx := context.Background()
	f := newFinalizeFixture(t)
	inv := f.invoice(t, "INV-7", true, true)

	_, err := f.svc.AddPackedImage(ctx, inv.ID, "images/box.png", nil)
	require.NoError(t, err)
	f.files.data["images/box.png"] = pngImage(t, 30, 20)

	res, err := f.finalizer.Finalize(ctx, inv.ID, ParseOrder("transport,invoice,dc,po,email"))
	require.NoError(t, err)
	assert.Equal(t, []SlotKind{SlotTransport, SlotInvoice, SlotChallan}, res.Included)
	assert.True(t, res.Images)
	assert.Len(t, res.Skipped, 2)

	ref := "confirmations/confirmation_invoice_INV-7.pdf"
	require.Contains(t, f.files.data, ref)
	assert.Equal(t, 4, pageCount(t, f.files.data[ref]))

	after, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusFinalized, after.Status)
	c, err := f.svc.Confirmation(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, c.CombinedPDF)
	assert.Equal(t, ref, *c.CombinedPDF)
	assert.Contains(t, f.activity.Actions(), "Finalize Invoice")
	assert.Equal(t, []string{"success"}, f.observer.got)
}

func TestBundleRefFlattensIdentifier(t *testing.T) {
	str := func(s string) *string { return &s }
	cases := []struct {
		inv  invoices.Invoice
		want string
	}{
		{invoices.Invoice{ID: 3, TallyNumber: str("TS/23-24/001")}, "confirmations/confirmation_invoice_TS-23-24-001.pdf"},
		{invoices.Invoice{ID: 3, TallyNumber: str(`A\B 7`)}, "confirmations/confirmation_invoice_A-B-7.pdf"},
		{invoices.Invoice{ID: 3, AppNumber: str("Tsol-00003")}, "confirmations/confirmation_invoice_Tsol-00003.pdf"},
		{invoices.Invoice{ID: 3}, "confirmations/confirmation_invoice_3.pdf"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, BundleRef(tc.inv))
	}
}

func TestFinalizeWithSlashedTallyWritesFlatFile(t *testing.T) {
	f := newFinalizeFixture(t)
	inv := f.invoice(t, "TS/23-24/001", true, true)

	_, err := f.finalizer.Finalize(context.Background(), inv.ID, DefaultOrder)
	require.NoError(t, err)
	assert.Contains(t, f.files.data, "confirmations/confirmation_invoice_TS-23-24-001.pdf")
}

func TestFinalizeGuardedBeforeTransport(t *testing.T) {
	f := newFinalizeFixture(t)
	inv := f.invoice(t, "", true, false)

	_, err := f.finalizer.Finalize(context.Background(), inv.ID, DefaultOrder)
	var unreachable *invoices.StageUnreachableError
	require.True(t, errors.As(err, &unreachable))
	assert.Empty(t, f.files.data)
	assert.Empty(t, f.renderer.rendered)
}

func TestFinalizeImportedOmitsMissingTransport(t *testing.T) {
	ctx := context.Background()
	f := newFinalizeFixture(t)
	inv := f.invoice(t, "", true, false)

	res, err := f.finalizer.FinalizeImported(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, []SlotKind{SlotInvoice, SlotChallan}, res.Included)
	assert.NotContains(t, f.renderer.rendered, render.KindTransport)
	assert.Contains(t, f.files.data, "confirmations/confirmation_invoice_"+invoices.AppNumber(inv.ID)+".pdf")

	after, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusFinalized, after.Status)
}

func TestFinalizeUsesValidUploadsAndSkipsCorruptPO(t *testing.T) {
	ctx := context.Background()
	f := newFinalizeFixture(t)
	inv := f.invoice(t, "INV-9", true, true)

	f.files.data["uploads/invoice.pdf"] = onePagePDF(t, "uploaded invoice")
	f.files.data["uploads/po.pdf"] = []byte("%PDF-broken")
	_, err := f.svc.AttachConfirmationFile(ctx, inv.ID, invoices.FileInvoice, "uploads/invoice.pdf")
	require.NoError(t, err)
	_, err = f.svc.AttachConfirmationFile(ctx, inv.ID, invoices.FilePO, "uploads/po.pdf")
	require.NoError(t, err)

	res, err := f.finalizer.Finalize(ctx, inv.ID, DefaultOrder)
	require.NoError(t, err)
	assert.Equal(t, []SlotKind{SlotInvoice, SlotChallan, SlotTransport}, res.Included)
	assert.NotContains(t, f.renderer.rendered, render.KindInvoice)

	var skipped []SlotKind
	for _, s := range res.Skipped {
		skipped = append(skipped, s.Slot)
	}
	assert.Equal(t, []SlotKind{SlotPO, SlotEmail}, skipped)
}

func TestFinalizeInvalidUploadedDCFallsBackToRender(t *testing.T) {
	ctx := context.Background()
	f := newFinalizeFixture(t)
	inv := f.invoice(t, "", true, true)

	f.files.data["uploads/dc.pdf"] = []byte("garbage")
	_, err := f.svc.AttachConfirmationFile(ctx, inv.ID, invoices.FileDC, "uploads/dc.pdf")
	require.NoError(t, err)

	res, err := f.finalizer.Finalize(ctx, inv.ID, []SlotKind{SlotChallan})
	require.NoError(t, err)
	assert.Equal(t, []SlotKind{SlotChallan}, res.Included)
	assert.Equal(t, []render.DocKind{render.KindChallan}, f.renderer.rendered)
}

func TestFinalizeFailureLeavesStatus(t *testing.T) {
	ctx := context.Background()
	f := newFinalizeFixture(t)
	inv := f.invoice(t, "", false, false)
	f.renderer.fail[render.KindInvoice] = errors.New("gotenberg down")

	_, err := f.finalizer.FinalizeImported(ctx, inv.ID)
	require.ErrorIs(t, err, ErrEmptyBundle)

	after, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusDraft, after.Status)
	assert.Empty(t, f.files.data)
	assert.Equal(t, []string{"failure"}, f.observer.got)
}
