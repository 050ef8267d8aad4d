package bulkimport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/clientdoc/internal/masterdata"
	mdstore "github.com/odyssey-erp/clientdoc/internal/masterdata/memstore"
	"github.com/odyssey-erp/clientdoc/internal/shared"
	"github.com/odyssey-erp/clientdoc/internal/sheets"
)

func workbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func invoiceWorkbook(t *testing.T, values ...map[int]string) []byte {
	t.Helper()
	header := make([]any, len(sheets.InvoiceHeaders))
	for i, h := range sheets.InvoiceHeaders {
		header[i] = h
	}
	rows := [][]any{header}
	for _, v := range values {
		cells := invoiceRowCells(v)
		row := make([]any, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		rows = append(rows, row)
	}
	return workbook(t, rows...)
}

type serviceFixture struct {
	*fixture
	repo     *MemoryRepository
	activity *shared.MemoryActivity
	service  *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := newFixture(t)
	repo := NewMemoryRepository()
	activity := &shared.MemoryActivity{}
	return &serviceFixture{
		fixture:  f,
		repo:     repo,
		activity: activity,
		service: NewService(ServiceConfig{
			Repo:     repo,
			Files:    f.files,
			Invoices: f.importer,
			Masters:  f.catalog,
			Activity: activity,
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		}),
	}
}

func TestImportMastersBuyersItemsLocations(t *testing.T) {
	ctx := context.Background()
	catalog := masterdata.NewService(mdstore.New(), nil, nil, nil)

	res, err := ImportMasters(ctx, catalog, sheets.KindBuyer, []sheets.Row{
		{Index: 2, Cells: []string{"Acme Retail", "1 Main St", "29ABCDE1234F1Z5", "Karnataka"}},
		{Index: 3, Cells: []string{""}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, []string{"Row 2: Created Buyer 'Acme Retail'"}, res.Log)

	res, err = ImportMasters(ctx, catalog, sheets.KindBuyer, []sheets.Row{
		{Index: 2, Cells: []string{"acme retail", "2 Side St"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	buyers, err := catalog.ListBuyers(ctx)
	require.NoError(t, err)
	require.Len(t, buyers, 1)

	res, err = ImportMasters(ctx, catalog, sheets.KindItem, []sheets.Row{
		{Index: 2, Cells: []string{"Widget", "Parts", "", "", "120.50", "0.12", "844311", "Nos"}},
		{Index: 3, Cells: []string{"Bolt", "", "", "", "oops"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	widget, err := catalog.FindItem(ctx, "widget")
	require.NoError(t, err)
	assert.Equal(t, "Parts", widget.CategoryName)
	assert.Equal(t, "120.5", widget.Price.String())
	assert.Equal(t, "0.12", widget.GSTRate.String())
	bolt, err := catalog.FindItem(ctx, "Bolt")
	require.NoError(t, err)
	assert.True(t, bolt.Price.IsZero())
	assert.True(t, bolt.GSTRate.Equal(masterdata.DefaultGSTRate))

	res, err = ImportMasters(ctx, catalog, sheets.KindLocation, []sheets.Row{
		{Index: 2, Cells: []string{"Store 7", "S7", "MG Road", "Chennai", "Tamil Nadu", "33ABCDE1234F1Z5", "High"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Row 2: Created Location 'Store 7'"}, res.Log)
	loc, err := catalog.FindLocation(ctx, "store 7")
	require.NoError(t, err)
	assert.Equal(t, "33", loc.StateCode)
}

func TestStateCode(t *testing.T) {
	assert.Equal(t, "29", stateCode("29ABCDE1234F1Z5"))
	assert.Equal(t, "", stateCode("AB1234"))
	assert.Equal(t, "", stateCode("2"))
}

func TestServiceUploadAndProcessInvoices(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	data := invoiceWorkbook(t,
		map[int]string{colTally: "INV-700", colLocation: "Warehouse A", colItem: "A", colQuantity: "2"},
		map[int]string{colGenerate: "No", colLocation: "Warehouse A", colItem: "A", colQuantity: "2"},
	)
	up, err := f.service.Upload(ctx, "batch.XLSX", sheets.KindInvoice, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, up.Status)
	assert.Equal(t, "Type: Invoice", up.Log)
	assert.True(t, strings.HasPrefix(up.File, UploadsDir+"/"))

	done, err := f.service.Process(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, done.Status)
	assert.Equal(t, 1, done.Created)
	assert.True(t, strings.HasPrefix(done.Log, "Type: Invoice\n"))
	assert.Contains(t, done.Log, "Row 3: Skipped (Generate != Yes)")
	assert.Contains(t, done.Log, "Rows 2: Created Invoice #1")

	stored, err := f.service.Get(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, done, stored)
	assert.Equal(t, []string{"Bulk Upload"}, f.activity.Actions())
	assert.Equal(t, 1, f.store.Count())
}

func TestServiceRejectsNonWorkbook(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.Upload(context.Background(), "legacy.xls", sheets.KindBuyer, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
	uploads, err := f.service.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, uploads)
}

func TestServiceProcessRecordsFailure(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	up, err := f.service.Upload(ctx, "broken.xlsx", sheets.KindItem, strings.NewReader("not a zip"))
	require.NoError(t, err)

	done, err := f.service.Process(ctx, up.ID)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Contains(t, done.Log, "Error processing file:")

	stored, err := f.service.Get(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)
}

func TestServiceProcessMasters(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	data := workbook(t,
		[]any{"Name", "Address"},
		[]any{"Zenith Stores", "Hosur Road"},
	)
	up, err := f.service.Upload(ctx, "buyers.xlsx", sheets.KindBuyer, bytes.NewReader(data))
	require.NoError(t, err)
	done, err := f.service.Process(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, "Type: Buyer\nRow 2: Created Buyer 'Zenith Stores'", done.Log)
}

func TestJobSkipsLockedUpload(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := redislock.New(client)

	data := workbook(t, []any{"Name"}, []any{"Zenith Stores"})
	up, err := f.service.Upload(ctx, "buyers.xlsx", sheets.KindBuyer, bytes.NewReader(data))
	require.NoError(t, err)

	job := NewJob(JobConfig{Service: f.service, Locker: locker})
	held, err := locker.Obtain(ctx, LockKey(up.ID), DefaultLockTTL, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, job.Run(ctx, up.ID), ErrAlreadyRunning)
	stored, err := f.service.Get(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)

	require.NoError(t, held.Release(ctx))
	payload, err := json.Marshal(map[string]int64{"upload_id": up.ID})
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, asynq.NewTask("bulkimport:process", payload)))
	stored, err = f.service.Get(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, stored.Status)
	assert.False(t, mr.Exists(LockKey(up.ID)))
}

func TestJobHandleSkipsRetryForBadInput(t *testing.T) {
	f := newServiceFixture(t)
	job := NewJob(JobConfig{Service: f.service})
	err := job.Handle(context.Background(), asynq.NewTask("bulkimport:process", []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	err = job.Handle(context.Background(), asynq.NewTask("bulkimport:process", []byte(`{"upload_id":99}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type recordingQueue struct{ ids []int64 }

func (q *recordingQueue) EnqueueBulkImport(_ context.Context, id int64) error {
	q.ids = append(q.ids, id)
	return nil
}

func newTestRouter(f *serviceFixture, queue Enqueuer) http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.service, f.catalog, queue)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/bulk-uploads", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandlerUploadInline(t *testing.T) {
	f := newServiceFixture(t)
	router := newTestRouter(f, nil)
	data := workbook(t, []any{"Name"}, []any{"Zenith Stores"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, "buyers.xlsx", data, map[string]string{"upload_type": "buyer"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var up Upload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.Equal(t, StatusProcessed, up.Status)
	assert.Equal(t, 1, up.Created)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bulk-uploads/1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerUploadAsyncEnqueues(t *testing.T) {
	f := newServiceFixture(t)
	queue := &recordingQueue{}
	router := newTestRouter(f, queue)
	data := workbook(t, []any{"Name"}, []any{"Zenith Stores"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, "buyers.xlsx", data, map[string]string{"upload_type": "buyer", "async": "true"}))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []int64{1}, queue.ids)
	stored, err := f.service.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestHandlerUploadRejectsBadInput(t *testing.T) {
	f := newServiceFixture(t)
	router := newTestRouter(f, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, "buyers.csv", []byte("a,b"), map[string]string{"upload_type": "buyer"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, multipartUpload(t, "x.xlsx", []byte("a"), map[string]string{"upload_type": "vendor"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bulk-uploads/42", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerTemplateDownload(t *testing.T) {
	f := newServiceFixture(t)
	router := newTestRouter(f, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bulk-uploads/template?type=invoice", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Bulk_Invoice_Template_")

	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{"Invoice Template", sheets.ReferenceSheet}, wb.GetSheetList())
	ref, err := wb.GetCellValue(sheets.ReferenceSheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Warehouse A", ref)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bulk-uploads/template?type=item&export=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Bulk_Item_Export_")
}
