package invoices_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/clientdoc/internal/invoices"
	"github.com/odyssey-erp/clientdoc/internal/invoices/memstore"
	"github.com/odyssey-erp/clientdoc/internal/masterdata"
	mdstore "github.com/odyssey-erp/clientdoc/internal/masterdata/memstore"
	"github.com/odyssey-erp/clientdoc/internal/shared"
)

type fixture struct {
	svc      *invoices.Service
	store    *memstore.Store
	activity *shared.MemoryActivity
	files    *recordingFiles
	location masterdata.Location
	widget   masterdata.Item
	gadget   masterdata.Item
}

type recordingFiles struct {
	removed []string
}

func (r *recordingFiles) Remove(ref string) error {
	r.removed = append(r.removed, ref)
	return nil
}

func newFixture(t *testing.T, locationStateCode string) *fixture {
	t.Helper()
	ctx := context.Background()
	catalog := masterdata.NewService(mdstore.New(), nil, nil, nil)
	loc, _, err := catalog.UpsertLocation(ctx, masterdata.Location{Name: "Warehouse A", StateCode: locationStateCode})
	require.NoError(t, err)
	widget, _, err := catalog.UpsertItem(ctx, masterdata.Item{Name: "Widget", Price: decimal.NewFromInt(100)}, "")
	require.NoError(t, err)
	gadget, _, err := catalog.UpsertItem(ctx, masterdata.Item{Name: "Gadget", Price: decimal.NewFromInt(40), GSTRate: decimal.RequireFromString("0.05")}, "")
	require.NoError(t, err)

	store := memstore.New()
	activity := &shared.MemoryActivity{}
	files := &recordingFiles{}
	svc := invoices.NewService(store, catalog, activity, invoices.ServiceConfig{
		CompanyStateCode: "29",
		Files:            files,
		Feed:             activity,
	})
	return &fixture{svc: svc, store: store, activity: activity, files: files, location: loc, widget: widget, gadget: gadget}
}

func (f *fixture) draft(t *testing.T) invoices.Invoice {
	t.Helper()
	inv, err := f.svc.Create(context.Background(), invoices.CreateInvoiceInput{
		LocationID: f.location.ID,
		Lines:      []invoices.LineInput{{ItemID: f.widget.ID, Quantity: 5}},
	})
	require.NoError(t, err)
	return inv
}

func TestCreateDraftComputesTotals(t *testing.T) {
	f := newFixture(t, "29")
	inv := f.draft(t)

	assert.Equal(t, invoices.StatusDraft, inv.Status)
	require.NotNil(t, inv.AppNumber)
	assert.Equal(t, invoices.AppNumber(inv.ID), *inv.AppNumber)
	assert.Equal(t, "500.00", inv.TaxableValue.StringFixed(2))
	assert.Equal(t, "45.00", inv.CGST.StringFixed(2))
	assert.Equal(t, "45.00", inv.SGST.StringFixed(2))
	assert.Equal(t, "590.00", inv.Grand.StringFixed(2))

	lines, err := f.svc.Lines(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].QuantityBilled)
	assert.Equal(t, 5, lines[0].QuantityShipped)
	assert.True(t, lines[0].Price.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, []string{"Create Invoice"}, f.activity.Actions())
}

func TestAppNumberFormat(t *testing.T) {
	assert.Equal(t, "Tsol-00042", invoices.AppNumber(42))
}

func TestCreateRollsBackOnInvalidLine(t *testing.T) {
	f := newFixture(t, "29")
	_, err := f.svc.Create(context.Background(), invoices.CreateInvoiceInput{
		LocationID: f.location.ID,
		Lines: []invoices.LineInput{
			{ItemID: f.widget.ID, Quantity: 1},
			{ItemID: 9999, Quantity: 1},
		},
	})
	require.ErrorIs(t, err, invoices.ErrInvalidLine)
	assert.Zero(t, f.store.Count())
	assert.Zero(t, f.store.LineCount())
	assert.Empty(t, f.activity.Actions())
}

func TestCreateRejectsUnknownLocation(t *testing.T) {
	f := newFixture(t, "29")
	_, err := f.svc.Create(context.Background(), invoices.CreateInvoiceInput{LocationID: 404})
	require.ErrorIs(t, err, invoices.ErrLocationNotFound)
}

func TestTransportStageGuardedOnDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "29")
	inv := f.draft(t)

	_, _, err := f.svc.OpenTransportStage(ctx, inv.ID)
	var unreachable *invoices.StageUnreachableError
	require.True(t, errors.As(err, &unreachable))
	assert.Equal(t, invoices.StageChallan, unreachable.Fallback)
	assert.Equal(t, "You must complete the Delivery Challan first.", unreachable.Message)

	_, err = f.svc.SaveTransport(ctx, inv.ID, invoices.TransportInput{Charges: decimal.NewFromInt(10)})
	require.True(t, errors.As(err, &unreachable))

	after, err := f.svc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusDraft, after.Status)
	assert.Nil(t, after.Transport)
	assert.True(t, after.Grand.Equal(inv.Grand))
}

func TestWorkflowAdvancesMonotonically(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "29")
	inv := f.draft(t)

	notes := "Handle with care"
	inv, err := f.svc.SaveChallan(ctx, inv.ID, invoices.ChallanInput{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusDC, inv.Status)
	require.NotNil(t, inv.DeliveryChallan)

	_, tc, err := f.svc.OpenTransportStage(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, tc.Charges.IsZero())

	inv, err = f.svc.SaveTransport(ctx, inv.ID, invoices.TransportInput{Charges: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusTransport, inv.Status)
	assert.Equal(t, "600.00", inv.TaxableValue.StringFixed(2))
	assert.Equal(t, "708.00", inv.Grand.StringFixed(2))

	inv, err = f.svc.SaveChallan(ctx, inv.ID, invoices.ChallanInput{})
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusTransport, inv.Status)

	require.NoError(t, f.svc.MarkFinalized(ctx, inv.ID, "confirmations/confirmation_invoice_1.pdf"))
	inv, err = f.svc.SaveTransport(ctx, inv.ID, invoices.TransportInput{Charges: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusFinalized, inv.Status)

	assert.Equal(t, []string{"Create Invoice", "Edit DC", "Edit Transport", "Edit DC", "Finalize Invoice", "Edit Transport"}, f.activity.Actions())
}

func TestConfirmationStageChecklist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "29")
	inv := f.draft(t)

	_, err := f.svc.SaveChallan(ctx, inv.ID, invoices.ChallanInput{})
	require.NoError(t, err)
	_, err = f.svc.OpenConfirmationStage(ctx, inv.ID)
	var unreachable *invoices.StageUnreachableError
	require.True(t, errors.As(err, &unreachable))
	assert.Equal(t, invoices.StageTransport, unreachable.Fallback)

	_, err = f.svc.SaveTransport(ctx, inv.ID, invoices.TransportInput{})
	require.NoError(t, err)
	_, err = f.svc.AttachConfirmationFile(ctx, inv.ID, invoices.FilePO, "uploads/po.pdf")
	require.NoError(t, err)

	view, err := f.svc.OpenConfirmationStage(ctx, inv.ID)
	require.NoError(t, err)
	ids := make([]string, 0, len(view.Checklist))
	for _, e := range view.Checklist {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"invoice", "dc", "transport", "po"}, ids)

	require.NoError(t, f.svc.RemoveConfirmationFile(ctx, inv.ID, invoices.FilePO))
	assert.Equal(t, []string{"uploads/po.pdf"}, f.files.removed)
	c, err := f.svc.Confirmation(ctx, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, c.POFile)
}

func TestDeletePackedImageKeepsSharedFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "29")
	inv := f.draft(t)
	_, err := f.svc.SaveChallan(ctx, inv.ID, invoices.ChallanInput{})
	require.NoError(t, err)
	_, err = f.svc.SaveTransport(ctx, inv.ID, invoices.TransportInput{})
	require.NoError(t, err)

	first, err := f.svc.AddPackedImage(ctx, inv.ID, "images/aa.jpg", nil)
	require.NoError(t, err)
	second, err := f.svc.AddPackedImage(ctx, inv.ID, "images/aa.jpg", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Position)

	require.NoError(t, f.svc.DeletePackedImage(ctx, first.ID))
	assert.Empty(t, f.files.removed)
	require.NoError(t, f.svc.DeletePackedImage(ctx, second.ID))
	assert.Equal(t, []string{"images/aa.jpg"}, f.files.removed)

	err = f.svc.DeletePackedImage(ctx, second.ID)
	require.ErrorIs(t, err, invoices.ErrImageNotFound)
}

func TestRemoveConfirmationFileKeepsSharedRef(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "29")
	ready := func() invoices.Invoice {
		inv := f.draft(t)
		_, err := f.svc.SaveChallan(ctx, inv.ID, invoices.ChallanInput{})
		require.NoError(t, err)
		_, err = f.svc.SaveTransport(ctx, inv.ID, invoices.TransportInput{})
		require.NoError(t, err)
		return inv
	}
	a, b := ready(), ready()
	_, err := f.svc.AttachConfirmationFile(ctx, a.ID, invoices.FilePO, "confirmation_docs/abc.pdf")
	require.NoError(t, err)
	_, err = f.svc.AttachConfirmationFile(ctx, b.ID, invoices.FileEmail, "confirmation_docs/abc.pdf")
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveConfirmationFile(ctx, a.ID, invoices.FilePO))
	assert.Empty(t, f.files.removed)
	c, err := f.svc.Confirmation(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, c.ApprovalEmailFile)
	assert.Equal(t, "confirmation_docs/abc.pdf", *c.ApprovalEmailFile)

	require.NoError(t, f.svc.RemoveConfirmationFile(ctx, b.ID, invoices.FileEmail))
	assert.Equal(t, []string{"confirmation_docs/abc.pdf"}, f.files.removed)
}

func TestUpdateReplacesLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "29")
	inv := f.draft(t)

	price := decimal.NewFromInt(50)
	tally := " INV-9 "
	inv, err := f.svc.Update(ctx, inv.ID, invoices.UpdateInvoiceInput{
		LocationID:  f.location.ID,
		TallyNumber: &tally,
		Header:      invoices.Header{PaymentTerms: "30 Days"},
		Lines: []invoices.LineInput{
			{ItemID: f.gadget.ID, Quantity: 2, Price: &price},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, inv.TallyNumber)
	assert.Equal(t, "INV-9", *inv.TallyNumber)
	assert.Equal(t, "INV-9", inv.DisplayNumber())
	assert.Equal(t, "30 Days", inv.PaymentTerms)

	lines, err := f.svc.Lines(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, f.gadget.ID, lines[0].ItemID)
	assert.Equal(t, "100.00", inv.TaxableValue.StringFixed(2))
	assert.Equal(t, "105.00", inv.Grand.StringFixed(2))
}

func TestInterStateInvoiceUsesIGST(t *testing.T) {
	f := newFixture(t, "27")
	inv := f.draft(t)
	assert.Equal(t, "90.00", inv.IGST.StringFixed(2))
	assert.True(t, inv.CGST.IsZero())

	doc, err := f.svc.Document(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, doc.InterState)
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, "Widget", doc.Lines[0].ItemName)
	assert.Equal(t, 5, doc.TotalQuantity)
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "29")
	f.draft(t)
	f.draft(t)

	d, err := f.svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Total)
	assert.Zero(t, d.Finalized)
	assert.Len(t, d.Recent, 2)
	assert.Len(t, d.Activity, 2)
}

func TestDuplicateTallyIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "29")
	tally := "INV-42"
	_, err := f.svc.Create(ctx, invoices.CreateInvoiceInput{LocationID: f.location.ID, TallyNumber: &tally})
	require.NoError(t, err)

	other := "inv-42"
	_, err = f.svc.Create(ctx, invoices.CreateInvoiceInput{LocationID: f.location.ID, TallyNumber: &other})
	assert.ErrorIs(t, err, invoices.ErrDuplicateTally)
	assert.Equal(t, 1, f.store.Count())
}
