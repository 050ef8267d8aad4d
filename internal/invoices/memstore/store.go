// Package memstore is an in-memory invoices.Repository. WithTx snapshots the
// state and restores it when the callback fails, so rollback semantics match
// the PostgreSQL repository.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/odyssey-erp/clientdoc/internal/invoices"
)

type state struct {
	nextID        int64
	invoices      map[int64]invoices.Invoice
	lines         map[int64]invoices.Line
	challans      map[int64]invoices.DeliveryChallan
	transports    map[int64]invoices.TransportCharges
	confirmations map[int64]invoices.Confirmation
	images        map[int64]invoices.PackedImage
}

func newState() state {
	return state{
		invoices:      make(map[int64]invoices.Invoice),
		lines:         make(map[int64]invoices.Line),
		challans:      make(map[int64]invoices.DeliveryChallan),
		transports:    make(map[int64]invoices.TransportCharges),
		confirmations: make(map[int64]invoices.Confirmation),
		images:        make(map[int64]invoices.PackedImage),
	}
}

func cloneMap[T any](m map[int64]T) map[int64]T {
	out := make(map[int64]T, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s state) clone() state {
	return state{
		nextID:        s.nextID,
		invoices:      cloneMap(s.invoices),
		lines:         cloneMap(s.lines),
		challans:      cloneMap(s.challans),
		transports:    cloneMap(s.transports),
		confirmations: cloneMap(s.confirmations),
		images:        cloneMap(s.images),
	}
}

// Store implements invoices.Repository in memory.
type Store struct {
	mu sync.Mutex
	st state
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

var (
	_ invoices.Repository   = (*Store)(nil)
	_ invoices.TxRepository = (*tx)(nil)
)

// WithTx runs fn against the store and restores the snapshot on error.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, invoices.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(ctx, &tx{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Get(_ context.Context, id int64) (invoices.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.invoice(id)
}

func (s *Store) Lines(_ context.Context, invoiceID int64) ([]invoices.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.linesWhere(func(l invoices.Line) bool { return l.InvoiceID == invoiceID }), nil
}

func (s *Store) Confirmation(_ context.Context, invoiceID int64) (invoices.Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.confirmations[invoiceID]
	if !ok || c.DeletedAt != nil {
		return invoices.Confirmation{}, invoices.ErrNotFound
	}
	c.Images = s.st.imagesFor(c.ID)
	return c, nil
}

func (s *Store) GetPackedImage(_ context.Context, id int64) (invoices.PackedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.st.images[id]
	if !ok {
		return invoices.PackedImage{}, invoices.ErrImageNotFound
	}
	return img, nil
}

func (s *Store) ImageRefInUse(_ context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range s.st.images {
		if img.Image == ref {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ConfirmationFileRefInUse(_ context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.st.confirmations {
		for _, slot := range []*string{c.POFile, c.ApprovalEmailFile, c.UploadedInvoice, c.UploadedDC} {
			if slot != nil && *slot == ref {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) List(_ context.Context, filter invoices.ListFilter) ([]invoices.Invoice, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []invoices.Invoice
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	for _, id := range sortedIDs(s.st.invoices) {
		inv := s.st.invoices[id]
		if inv.DeletedAt != nil {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(inv.DisplayNumber()), q) {
			continue
		}
		out = append(out, inv)
	}
	if filter.Sort == "" || filter.Sort == "-date" {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Date.Equal(out[j].Date) {
				return out[i].ID > out[j].ID
			}
			return out[i].Date.After(out[j].Date)
		})
	}
	total := len(out)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			out = nil
		} else {
			out = out[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (s *Store) Stats(context.Context) (invoices.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st invoices.Stats
	for _, inv := range s.st.invoices {
		if inv.DeletedAt != nil {
			continue
		}
		st.Total++
		if inv.Status == invoices.StatusFinalized {
			st.Finalized++
		}
	}
	return st, nil
}

// Inspection helpers for tests.

// Count returns the number of live invoices.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, inv := range s.st.invoices {
		if inv.DeletedAt == nil {
			n++
		}
	}
	return n
}

// LineCount returns the number of stored lines across all invoices.
func (s *Store) LineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.lines)
}

// InsertDuplicateLine stores a line without the (invoice, item) check, to
// reproduce legacy duplicates.
func (s *Store) InsertDuplicateLine(l invoices.Line) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.nextID++
	l.ID = s.st.nextID
	s.st.lines[l.ID] = l
}

// SoftDelete trashes an invoice the way the trash bin does.
func (s *Store) SoftDelete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.st.invoices[id]; ok {
		now := time.Now()
		inv.DeletedAt = &now
		s.st.invoices[id] = inv
	}
}

// SoftDeleteConfirmation trashes the confirmation of an invoice.
func (s *Store) SoftDeleteConfirmation(invoiceID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.st.confirmations[invoiceID]; ok {
		now := time.Now()
		c.DeletedAt = &now
		s.st.confirmations[invoiceID] = c
	}
}

func (st *state) invoice(id int64) (invoices.Invoice, error) {
	inv, ok := st.invoices[id]
	if !ok || inv.DeletedAt != nil {
		return invoices.Invoice{}, invoices.ErrNotFound
	}
	inv.DeliveryChallan, inv.Transport = nil, nil
	if dc, ok := st.challans[id]; ok && dc.DeletedAt == nil {
		inv.DeliveryChallan = &dc
	}
	if tc, ok := st.transports[id]; ok && tc.DeletedAt == nil {
		inv.Transport = &tc
	}
	return inv, nil
}

func (st *state) linesWhere(match func(invoices.Line) bool) []invoices.Line {
	var out []invoices.Line
	for _, id := range sortedIDs(st.lines) {
		if l := st.lines[id]; match(l) {
			out = append(out, l)
		}
	}
	return out
}

func (st *state) imagesFor(confirmationID int64) []invoices.PackedImage {
	out := []invoices.PackedImage{}
	for _, id := range sortedIDs(st.images) {
		if img := st.images[id]; img.ConfirmationID == confirmationID {
			out = append(out, img)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

type tx struct {
	st *state
}

func (t *tx) GetForUpdate(_ context.Context, id int64) (invoices.Invoice, error) {
	return t.st.invoice(id)
}

func (t *tx) FindByTallyNumber(_ context.Context, tally string) (invoices.Invoice, error) {
	for _, id := range sortedIDs(t.st.invoices) {
		inv := t.st.invoices[id]
		if inv.DeletedAt == nil && inv.TallyNumber != nil && strings.EqualFold(*inv.TallyNumber, strings.TrimSpace(tally)) {
			return t.st.invoice(id)
		}
	}
	return invoices.Invoice{}, invoices.ErrNotFound
}

func (t *tx) tallyTaken(tally *string, except int64) bool {
	if tally == nil || strings.TrimSpace(*tally) == "" {
		return false
	}
	for id, inv := range t.st.invoices {
		if id != except && inv.DeletedAt == nil && inv.TallyNumber != nil && strings.EqualFold(*inv.TallyNumber, strings.TrimSpace(*tally)) {
			return true
		}
	}
	return false
}

func (t *tx) Create(_ context.Context, inv invoices.Invoice) (int64, error) {
	if t.tallyTaken(inv.TallyNumber, 0) {
		return 0, invoices.ErrDuplicateTally
	}
	inv.ID = t.st.id()
	inv.CreatedAt, inv.UpdatedAt = time.Now(), time.Now()
	inv.DeliveryChallan, inv.Transport = nil, nil
	t.st.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (t *tx) Update(_ context.Context, inv invoices.Invoice) error {
	existing, ok := t.st.invoices[inv.ID]
	if !ok || existing.DeletedAt != nil {
		return invoices.ErrNotFound
	}
	if t.tallyTaken(inv.TallyNumber, inv.ID) {
		return invoices.ErrDuplicateTally
	}
	existing.TallyNumber = inv.TallyNumber
	existing.BuyerID = inv.BuyerID
	existing.LocationID = inv.LocationID
	existing.Date = inv.Date
	existing.PlaceOfSupply = inv.PlaceOfSupply
	existing.Header = inv.Header
	existing.UpdatedAt = time.Now()
	t.st.invoices[inv.ID] = existing
	return nil
}

func (t *tx) modify(id int64, fn func(*invoices.Invoice)) error {
	inv, ok := t.st.invoices[id]
	if !ok {
		return invoices.ErrNotFound
	}
	fn(&inv)
	inv.UpdatedAt = time.Now()
	t.st.invoices[id] = inv
	return nil
}

func (t *tx) SetAppNumber(_ context.Context, id int64, number string) error {
	return t.modify(id, func(inv *invoices.Invoice) { inv.AppNumber = &number })
}

func (t *tx) UpdateStatus(_ context.Context, id int64, status invoices.Status) error {
	return t.modify(id, func(inv *invoices.Invoice) { inv.Status = status })
}

func (t *tx) UpdateTotals(_ context.Context, id int64, totals invoices.Totals) error {
	return t.modify(id, func(inv *invoices.Invoice) { inv.Totals = totals })
}

func (t *tx) Lines(_ context.Context, invoiceID int64) ([]invoices.Line, error) {
	return t.st.linesWhere(func(l invoices.Line) bool { return l.InvoiceID == invoiceID }), nil
}

func (t *tx) LinesForItem(_ context.Context, invoiceID, itemID int64) ([]invoices.Line, error) {
	return t.st.linesWhere(func(l invoices.Line) bool { return l.InvoiceID == invoiceID && l.ItemID == itemID }), nil
}

func (t *tx) DeleteLinesForItem(_ context.Context, invoiceID, itemID int64) (int64, error) {
	var n int64
	for id, l := range t.st.lines {
		if l.InvoiceID == invoiceID && l.ItemID == itemID {
			delete(t.st.lines, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) UpsertLine(_ context.Context, line invoices.Line) (invoices.Line, bool, error) {
	for _, id := range sortedIDs(t.st.lines) {
		existing := t.st.lines[id]
		if existing.InvoiceID == line.InvoiceID && existing.ItemID == line.ItemID {
			line.ID = id
			t.st.lines[id] = line
			return line, false, nil
		}
	}
	line.ID = t.st.id()
	t.st.lines[line.ID] = line
	return line, true, nil
}

func (t *tx) DeleteLine(_ context.Context, invoiceID, lineID int64) error {
	if l, ok := t.st.lines[lineID]; ok && l.InvoiceID == invoiceID {
		delete(t.st.lines, lineID)
	}
	return nil
}

func (t *tx) GetOrCreateChallan(_ context.Context, invoiceID int64) (invoices.DeliveryChallan, error) {
	dc, ok := t.st.challans[invoiceID]
	if !ok {
		dc = invoices.DeliveryChallan{ID: t.st.id(), InvoiceID: invoiceID, CreatedAt: time.Now()}
	}
	dc.DeletedAt = nil
	t.st.challans[invoiceID] = dc
	return dc, nil
}

func (t *tx) SaveChallan(_ context.Context, dc invoices.DeliveryChallan) error {
	t.st.challans[dc.InvoiceID] = dc
	return nil
}

func (t *tx) GetOrCreateTransport(_ context.Context, invoiceID int64) (invoices.TransportCharges, error) {
	tc, ok := t.st.transports[invoiceID]
	if !ok {
		tc = invoices.TransportCharges{ID: t.st.id(), InvoiceID: invoiceID, CreatedAt: time.Now()}
	}
	tc.DeletedAt = nil
	t.st.transports[invoiceID] = tc
	return tc, nil
}

func (t *tx) SaveTransport(_ context.Context, tc invoices.TransportCharges) error {
	t.st.transports[tc.InvoiceID] = tc
	return nil
}

func (t *tx) GetOrRestoreConfirmation(_ context.Context, invoiceID int64) (invoices.Confirmation, error) {
	c, ok := t.st.confirmations[invoiceID]
	if !ok {
		c = invoices.Confirmation{ID: t.st.id(), InvoiceID: invoiceID, CreatedAt: time.Now()}
	}
	c.DeletedAt = nil
	c.Images = nil
	t.st.confirmations[invoiceID] = c
	c.Images = t.st.imagesFor(c.ID)
	return c, nil
}

func (t *tx) confirmationByID(id int64) (invoices.Confirmation, bool) {
	for _, c := range t.st.confirmations {
		if c.ID == id {
			return c, true
		}
	}
	return invoices.Confirmation{}, false
}

func (t *tx) SetConfirmationFile(_ context.Context, confirmationID int64, slot invoices.FileSlot, ref *string) error {
	c, ok := t.confirmationByID(confirmationID)
	if !ok {
		return invoices.ErrNotFound
	}
	switch slot {
	case invoices.FilePO:
		c.POFile = ref
	case invoices.FileEmail:
		c.ApprovalEmailFile = ref
	case invoices.FileInvoice:
		c.UploadedInvoice = ref
	case invoices.FileDC:
		c.UploadedDC = ref
	default:
		return invoices.ErrInvalidInput
	}
	t.st.confirmations[c.InvoiceID] = c
	return nil
}

func (t *tx) SetCombinedPDF(_ context.Context, confirmationID int64, ref string) error {
	c, ok := t.confirmationByID(confirmationID)
	if !ok {
		return invoices.ErrNotFound
	}
	c.CombinedPDF = &ref
	t.st.confirmations[c.InvoiceID] = c
	return nil
}

func (t *tx) AddPackedImage(_ context.Context, img invoices.PackedImage) (invoices.PackedImage, error) {
	img.ID = t.st.id()
	t.st.images[img.ID] = img
	return img, nil
}

func (t *tx) UpdatePackedImageNotes(_ context.Context, id int64, notes *string) error {
	img, ok := t.st.images[id]
	if !ok {
		return invoices.ErrImageNotFound
	}
	img.Notes = notes
	t.st.images[id] = img
	return nil
}

func (t *tx) DeletePackedImage(_ context.Context, id int64) (invoices.PackedImage, error) {
	img, ok := t.st.images[id]
	if !ok {
		return invoices.PackedImage{}, invoices.ErrImageNotFound
	}
	delete(t.st.images, id)
	return img, nil
}

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
