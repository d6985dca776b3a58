package ledger

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"magazzino/internal/core/apperror"
	"magazzino/internal/core/entity"
	"magazzino/internal/core/id"
	"magazzino/internal/core/types"
	"magazzino/internal/domain/catalogs/product"
	"magazzino/internal/domain/catalogs/reason"
	"magazzino/internal/domain/catalogs/warehouse"
	"magazzino/internal/domain/lots"
	"magazzino/pkg/numerator"
)

// --- in-memory fakes ---

type balanceKey struct {
	product   id.ID
	warehouse id.ID
}

type memRepo struct {
	movements []*entity.Movement
	balances  map[balanceKey]*entity.StockBalance
	nextSeq   int64

	totalsRefreshed int
}

func newMemRepo() *memRepo {
	return &memRepo{balances: make(map[balanceKey]*entity.StockBalance)}
}

func (r *memRepo) Insert(_ context.Context, m *entity.Movement) error {
	r.nextSeq++
	m.Seq = r.nextSeq
	r.movements = append(r.movements, m)
	return nil
}

func (r *memRepo) GetByID(_ context.Context, movementID id.ID) (*entity.Movement, error) {
	for _, m := range r.movements {
		if m.ID == movementID {
			return m, nil
		}
	}
	return nil, apperror.NewNotFound("movement", movementID.String())
}

func (r *memRepo) History(_ context.Context, filter HistoryFilter) (HistoryPage, error) {
	var matched []*entity.Movement
	for _, m := range r.movements {
		if m.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != nil && m.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.ReasonCode != "" && m.ReasonCode != filter.ReasonCode {
			continue
		}
		if filter.After > 0 && m.Seq >= filter.After {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Seq > matched[j].Seq })

	page := HistoryPage{}
	if len(matched) > filter.Limit {
		page.Items = matched[:filter.Limit]
		page.HasMore = true
		page.NextAfter = matched[filter.Limit-1].Seq
	} else {
		page.Items = matched
	}
	return page, nil
}

func (r *memRepo) LockBalance(_ context.Context, productID, warehouseID id.ID) (*entity.StockBalance, error) {
	key := balanceKey{productID, warehouseID}
	if b, ok := r.balances[key]; ok {
		copied := *b
		return &copied, nil
	}
	return &entity.StockBalance{ProductID: productID, WarehouseID: warehouseID}, nil
}

func (r *memRepo) SaveBalance(_ context.Context, b *entity.StockBalance) error {
	copied := *b
	r.balances[balanceKey{b.ProductID, b.WarehouseID}] = &copied
	return nil
}

func (r *memRepo) GetBalance(_ context.Context, productID, warehouseID id.ID) (*entity.StockBalance, error) {
	if b, ok := r.balances[balanceKey{productID, warehouseID}]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, apperror.NewNotFound("stock balance", productID.String())
}

func (r *memRepo) RefreshProductTotals(_ context.Context, _ id.ID) error {
	r.totalsRefreshed++
	return nil
}

func (r *memRepo) ReplayEntries(_ context.Context, productID, warehouseID id.ID) ([]ReplayEntry, error) {
	var ms []*entity.Movement
	for _, m := range r.movements {
		if m.ProductID == productID && m.WarehouseID == warehouseID {
			ms = append(ms, m)
		}
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Seq < ms[j].Seq })

	entries := make([]ReplayEntry, 0, len(ms))
	for _, m := range ms {
		e := ReplayEntry{
			Receipt:  m.RecordType == entity.RecordTypeReceipt,
			Quantity: m.Quantity,
		}
		if m.RecordType == entity.RecordTypeReceipt {
			e.UnitCost = m.UnitCost
		}
		entries = append(entries, e)
	}
	return entries, nil
}

type memLotRepo struct {
	lots map[id.ID]*entity.Lot
}

func newMemLotRepo() *memLotRepo {
	return &memLotRepo{lots: make(map[id.ID]*entity.Lot)}
}

func (r *memLotRepo) Create(_ context.Context, lot *entity.Lot) error {
	copied := *lot
	r.lots[lot.ID] = &copied
	return nil
}

func (r *memLotRepo) GetByID(_ context.Context, lotID id.ID) (*entity.Lot, error) {
	if l, ok := r.lots[lotID]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, apperror.NewNotFound("lot", lotID.String())
}

func (r *memLotRepo) GetForUpdate(ctx context.Context, lotID id.ID) (*entity.Lot, error) {
	return r.GetByID(ctx, lotID)
}

func (r *memLotRepo) UpdateResidual(_ context.Context, lotID id.ID, residual int64) error {
	l, ok := r.lots[lotID]
	if !ok {
		return apperror.NewNotFound("lot", lotID.String())
	}
	l.ResidualQuantity = types.NewQuantityFromInt64Scaled(residual)
	return nil
}

func (r *memLotRepo) ListByStock(_ context.Context, productID, warehouseID id.ID, filter lots.StatusFilter) ([]*entity.Lot, error) {
	var out []*entity.Lot
	for _, l := range r.lots {
		if l.ProductID != productID || l.WarehouseID != warehouseID {
			continue
		}
		if !filter.IncludeExhausted && l.IsExhausted() {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

type mapReasonResolver struct {
	reasons map[string]*reason.MovementReason
}

func (r *mapReasonResolver) Resolve(_ context.Context, code string) (*reason.MovementReason, error) {
	if rsn, ok := r.reasons[code]; ok {
		return rsn, nil
	}
	return nil, apperror.NewInvalidReason(code)
}

type mapWarehouseStore struct {
	warehouses map[id.ID]*warehouse.Warehouse
}

func (s *mapWarehouseStore) GetByID(_ context.Context, warehouseID id.ID) (*warehouse.Warehouse, error) {
	if wh, ok := s.warehouses[warehouseID]; ok {
		return wh, nil
	}
	return nil, apperror.NewNotFound("warehouse", warehouseID.String())
}

type mapProductStore struct {
	products map[id.ID]*product.Product
}

func (s *mapProductStore) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	if p, ok := s.products[productID]; ok {
		return p, nil
	}
	return nil, apperror.NewNotFound("product", productID.String())
}

type capturedEvents struct {
	events  []Event
	batches int
}

func (p *capturedEvents) Publish(_ context.Context, e Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *capturedEvents) PublishBatch(_ context.Context, events []Event) error {
	p.batches++
	p.events = append(p.events, events...)
	return nil
}

type capturedAudit struct {
	actions []string
}

func (a *capturedAudit) Record(_ context.Context, _ string, _ id.ID, action string, _ map[string]any) error {
	a.actions = append(a.actions, action)
	return nil
}

// passTxManager runs the function directly; repos here have no real
// transactions to join.
type passTxManager struct {
	calls int
}

func (m *passTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

// rollbackTxManager snapshots the repo before each attempt and restores
// it when the function fails, the way a real transaction rolls back the
// writes of a failed attempt.
type rollbackTxManager struct {
	repo *memRepo
}

func (m *rollbackTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	movements := append([]*entity.Movement(nil), m.repo.movements...)
	balances := make(map[balanceKey]*entity.StockBalance, len(m.repo.balances))
	for k, v := range m.repo.balances {
		copied := *v
		balances[k] = &copied
	}
	seq := m.repo.nextSeq

	if err := fn(ctx); err != nil {
		m.repo.movements = movements
		m.repo.balances = balances
		m.repo.nextSeq = seq
		return err
	}
	return nil
}

// insertFailRepo delegates to memRepo but rejects the Nth insert.
type insertFailRepo struct {
	*memRepo
	failOn  int
	inserts int
}

func (r *insertFailRepo) Insert(ctx context.Context, m *entity.Movement) error {
	r.inserts++
	if r.inserts == r.failOn {
		return errors.New("insert rejected")
	}
	return r.memRepo.Insert(ctx, m)
}

// flakyTxManager fails the first N attempts with a serialization error
// before letting the function run.
type flakyTxManager struct {
	failures int
	calls    int
}

func (m *flakyTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	if m.calls <= m.failures {
		return &pgconn.PgError{Code: "40001"}
	}
	return fn(ctx)
}

type seqRow struct {
	val int64
}

func (r *seqRow) Scan(dest ...any) error {
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = r.val
		}
	}
	return nil
}

type seqQuerier struct {
	current int64
}

func (q *seqQuerier) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	q.current++
	return &seqRow{val: q.current}
}

// --- test environment ---

type ledgerEnv struct {
	svc     *Service
	repo    *memRepo
	lotRepo *memLotRepo
	reasons *mapReasonResolver
	events  *capturedEvents
	audit   *capturedAudit
	txm     *passTxManager

	productID   id.ID
	warehouseA  id.ID
	warehouseB  id.ID
	warehouses  *mapWarehouseStore
	products    *mapProductStore
}

func newLedgerEnv(t *testing.T) *ledgerEnv {
	t.Helper()

	reasons := make(map[string]*reason.MovementReason)
	for _, r := range reason.SystemReasons() {
		reasons[r.Code] = r
	}

	p := product.NewProduct("PRD-00001", "Copy paper A4", "pack")
	whA := warehouse.NewWarehouse("WH-001", "Main warehouse", warehouse.TypeMain)
	whB := warehouse.NewWarehouse("WH-002", "Retail store", warehouse.TypeRetail)

	env := &ledgerEnv{
		repo:       newMemRepo(),
		lotRepo:    newMemLotRepo(),
		reasons:    &mapReasonResolver{reasons: reasons},
		events:     &capturedEvents{},
		audit:      &capturedAudit{},
		txm:        &passTxManager{},
		productID:  p.ID,
		warehouseA: whA.ID,
		warehouseB: whB.ID,
		warehouses: &mapWarehouseStore{warehouses: map[id.ID]*warehouse.Warehouse{whA.ID: whA, whB.ID: whB}},
		products:   &mapProductStore{products: map[id.ID]*product.Product{p.ID: p}},
	}

	env.svc = NewService(Config{
		Repo:       env.repo,
		Reasons:    env.reasons,
		Warehouses: env.warehouses,
		Products:   env.products,
		Lots:       lots.NewService(env.lotRepo),
		Audit:      env.audit,
		Events:     env.events,
		Numerator:  numerator.New(&seqQuerier{}),
		TxManager:  env.txm,
	})
	return env
}

func (e *ledgerEnv) addReason(t *testing.T, r *reason.MovementReason) {
	t.Helper()
	e.reasons.reasons[r.Code] = r
}

func (e *ledgerEnv) receive(t *testing.T, warehouseID id.ID, quantity, unitCost string) *entity.Movement {
	t.Helper()
	c := decimal.RequireFromString(unitCost)
	m, err := e.svc.Append(context.Background(), AppendRequest{
		ProductID:   e.productID,
		WarehouseID: warehouseID,
		ReasonCode:  reason.CodeOpeningBalance,
		Quantity:    qty(t, quantity),
		UnitCost:    &c,
	})
	if err != nil {
		t.Fatalf("seed receipt failed: %v", err)
	}
	return m
}

func (e *ledgerEnv) balance(t *testing.T, warehouseID id.ID) *entity.StockBalance {
	t.Helper()
	b, err := e.repo.GetBalance(context.Background(), e.productID, warehouseID)
	if err != nil {
		t.Fatalf("balance not found: %v", err)
	}
	return b
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error code %s, got nil", code)
	}
	if !apperror.IsCode(err, code) {
		t.Fatalf("expected error code %s, got %v", code, err)
	}
}

// --- append ---

func TestAppend_ReceiptUpdatesBalance(t *testing.T) {
	env := newLedgerEnv(t)

	m := env.receive(t, env.warehouseA, "100", "30")

	if m.Seq != 1 {
		t.Errorf("seq = %d, want 1", m.Seq)
	}
	if m.Number != "MOV-2026-00001" {
		t.Errorf("number = %s, want MOV-2026-00001", m.Number)
	}
	if m.RecordType != entity.RecordTypeReceipt {
		t.Errorf("record type = %s, want receipt", m.RecordType)
	}
	if !m.TotalCost.Valid || !m.TotalCost.Decimal.Equal(decimal.RequireFromString("3000")) {
		t.Errorf("total cost = %v, want 3000", m.TotalCost)
	}

	b := env.balance(t, env.warehouseA)
	if b.Quantity != qty(t, "100") {
		t.Errorf("balance quantity = %s, want 100", b.Quantity)
	}
	assertAvg(t, CostState{Quantity: b.Quantity, AverageCost: b.AverageCost}, "30")
	if b.LastMovementSeq != m.Seq {
		t.Errorf("last movement seq = %d, want %d", b.LastMovementSeq, m.Seq)
	}

	if len(env.events.events) != 1 || env.events.events[0].Type != EventMovementAppended {
		t.Errorf("events = %+v, want one MovementAppended", env.events.events)
	}
	if len(env.audit.actions) != 1 || env.audit.actions[0] != "append" {
		t.Errorf("audit actions = %v, want [append]", env.audit.actions)
	}
	if env.repo.totalsRefreshed != 1 {
		t.Errorf("product totals refreshed %d times, want 1", env.repo.totalsRefreshed)
	}
}

func TestAppend_ExpenseCostsOutAtAverage(t *testing.T) {
	env := newLedgerEnv(t)
	env.receive(t, env.warehouseA, "100", "30")

	m, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:          env.productID,
		WarehouseID:        env.warehouseA,
		ReasonCode:         reason.CodeSale,
		Quantity:           qty(t, "30"),
		SourceDocumentType: "invoice",
		SourceDocumentID:   "INV-2026-00042",
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	if m.RecordType != entity.RecordTypeExpense {
		t.Errorf("record type = %s, want expense", m.RecordType)
	}
	// Expenses cost out at the running average, never a caller cost.
	if !m.UnitCost.Valid || !m.UnitCost.Decimal.Equal(decimal.RequireFromString("30")) {
		t.Errorf("unit cost = %v, want 30", m.UnitCost)
	}
	if !m.TotalCost.Valid || !m.TotalCost.Decimal.Equal(decimal.RequireFromString("900")) {
		t.Errorf("total cost = %v, want 900", m.TotalCost)
	}
	if doc := m.SourceDocument(); doc == nil || doc.ID != "INV-2026-00042" {
		t.Errorf("source document = %+v, want INV-2026-00042", doc)
	}

	b := env.balance(t, env.warehouseA)
	if b.Quantity != qty(t, "70") {
		t.Errorf("balance quantity = %s, want 70", b.Quantity)
	}
	assertAvg(t, CostState{Quantity: b.Quantity, AverageCost: b.AverageCost}, "30")
}

func TestAppend_ValidationOrder(t *testing.T) {
	env := newLedgerEnv(t)

	inactive := reason.NewMovementReason("SCRAP", "Scrap write-off", reason.KindOutbound)
	inactive.IsActive = false
	env.addReason(t, inactive)

	c := decimal.RequireFromString("10")
	sameWH := env.warehouseA

	tests := []struct {
		name     string
		req      AppendRequest
		wantCode string
	}{
		{
			// An unknown reason wins over every later violation.
			name: "unknown reason before quantity",
			req: AppendRequest{
				ProductID:   env.productID,
				WarehouseID: env.warehouseA,
				ReasonCode:  "NO_SUCH_REASON",
				Quantity:    qty(t, "0"),
			},
			wantCode: apperror.CodeInvalidReason,
		},
		{
			name: "inactive reason rejected",
			req: AppendRequest{
				ProductID:   env.productID,
				WarehouseID: env.warehouseA,
				ReasonCode:  "SCRAP",
				Quantity:    qty(t, "5"),
			},
			wantCode: apperror.CodeInvalidReason,
		},
		{
			name: "zero quantity before missing document",
			req: AppendRequest{
				ProductID:   env.productID,
				WarehouseID: env.warehouseA,
				ReasonCode:  reason.CodeSale,
				Quantity:    qty(t, "0"),
			},
			wantCode: apperror.CodeNonPositiveQuantity,
		},
		{
			name: "negative quantity",
			req: AppendRequest{
				ProductID:   env.productID,
				WarehouseID: env.warehouseA,
				ReasonCode:  reason.CodeSale,
				Quantity:    qty(t, "-3"),
			},
			wantCode: apperror.CodeNonPositiveQuantity,
		},
		{
			name: "missing document before cost rules",
			req: AppendRequest{
				ProductID:   env.productID,
				WarehouseID: env.warehouseA,
				ReasonCode:  reason.CodeSale,
				Quantity:    qty(t, "5"),
				UnitCost:    &c,
			},
			wantCode: apperror.CodeMissingSourceDocument,
		},
		{
			name: "transfer without destination",
			req: AppendRequest{
				ProductID:   env.productID,
				WarehouseID: env.warehouseA,
				ReasonCode:  reason.CodeTransfer,
				Quantity:    qty(t, "5"),
			},
			wantCode: apperror.CodeValidation,
		},
		{
			name: "transfer to same warehouse",
			req: AppendRequest{
				ProductID:              env.productID,
				WarehouseID:            env.warehouseA,
				ReasonCode:             reason.CodeTransfer,
				Quantity:               qty(t, "5"),
				DestinationWarehouseID: &sameWH,
			},
			wantCode: apperror.CodeSameWarehouse,
		},
		{
			name: "costed inbound without cost",
			req: AppendRequest{
				ProductID:          env.productID,
				WarehouseID:        env.warehouseA,
				ReasonCode:         reason.CodePurchase,
				Quantity:           qty(t, "5"),
				SourceDocumentType: "order",
				SourceDocumentID:   "ORD-1",
			},
			wantCode: apperror.CodeMissingUnitCost,
		},
		{
			name: "outbound with caller cost",
			req: AppendRequest{
				ProductID:          env.productID,
				WarehouseID:        env.warehouseA,
				ReasonCode:         reason.CodeSale,
				Quantity:           qty(t, "5"),
				UnitCost:           &c,
				SourceDocumentType: "invoice",
				SourceDocumentID:   "INV-1",
			},
			wantCode: apperror.CodeUnexpectedUnitCost,
		},
		{
			name: "unknown product",
			req: AppendRequest{
				ProductID:   id.New(),
				WarehouseID: env.warehouseA,
				ReasonCode:  reason.CodeAdjustmentIncrease,
				Quantity:    qty(t, "5"),
				UnitCost:    &c,
			},
			wantCode: apperror.CodeNotFound,
		},
		{
			name: "unknown warehouse",
			req: AppendRequest{
				ProductID:   env.productID,
				WarehouseID: id.New(),
				ReasonCode:  reason.CodeAdjustmentIncrease,
				Quantity:    qty(t, "5"),
				UnitCost:    &c,
			},
			wantCode: apperror.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Append(context.Background(), tt.req)
			assertCode(t, err, tt.wantCode)
		})
	}

	if len(env.repo.movements) != 0 {
		t.Errorf("rejected requests persisted %d movements", len(env.repo.movements))
	}
}

func TestAppend_NegativeUnitCostRejected(t *testing.T) {
	env := newLedgerEnv(t)

	c := decimal.RequireFromString("-1")
	_, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:   env.productID,
		WarehouseID: env.warehouseA,
		ReasonCode:  reason.CodeAdjustmentIncrease,
		Quantity:    qty(t, "5"),
		UnitCost:    &c,
	})
	assertCode(t, err, apperror.CodeValidation)
}

func TestAppend_InactiveProductRejected(t *testing.T) {
	env := newLedgerEnv(t)
	env.products.products[env.productID].IsActive = false

	c := decimal.RequireFromString("10")
	_, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:   env.productID,
		WarehouseID: env.warehouseA,
		ReasonCode:  reason.CodeAdjustmentIncrease,
		Quantity:    qty(t, "5"),
		UnitCost:    &c,
	})
	assertCode(t, err, apperror.CodeValidation)
}

// --- stock policy ---

func TestAppend_InsufficientStock(t *testing.T) {
	env := newLedgerEnv(t)
	env.receive(t, env.warehouseA, "50", "20")

	_, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:          env.productID,
		WarehouseID:        env.warehouseA,
		ReasonCode:         reason.CodeSale,
		Quantity:           qty(t, "80"),
		SourceDocumentType: "invoice",
		SourceDocumentID:   "INV-1",
	})
	assertCode(t, err, apperror.CodeInsufficientStock)

	// The rejection left the balance untouched.
	b := env.balance(t, env.warehouseA)
	if b.Quantity != qty(t, "50") {
		t.Errorf("balance quantity = %s, want 50", b.Quantity)
	}
}

func TestAppend_ReasonAllowsNegativeStock(t *testing.T) {
	env := newLedgerEnv(t)
	env.receive(t, env.warehouseA, "50", "20")

	m, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:   env.productID,
		WarehouseID: env.warehouseA,
		ReasonCode:  reason.CodeAdjustmentDecrease,
		Quantity:    qty(t, "80"),
	})
	if err != nil {
		t.Fatalf("adjustment failed: %v", err)
	}
	if m.RecordType != entity.RecordTypeExpense {
		t.Errorf("record type = %s, want expense", m.RecordType)
	}

	b := env.balance(t, env.warehouseA)
	if b.Quantity != qty(t, "-30") {
		t.Errorf("balance quantity = %s, want -30", b.Quantity)
	}
	// Going negative never disturbs the average.
	assertAvg(t, CostState{Quantity: b.Quantity, AverageCost: b.AverageCost}, "20")
}

func TestAppend_WarehouseAllowsNegativeStock(t *testing.T) {
	env := newLedgerEnv(t)
	env.warehouses.warehouses[env.warehouseA].AllowNegativeStock = true
	env.receive(t, env.warehouseA, "10", "20")

	_, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:          env.productID,
		WarehouseID:        env.warehouseA,
		ReasonCode:         reason.CodeSale,
		Quantity:           qty(t, "25"),
		SourceDocumentType: "invoice",
		SourceDocumentID:   "INV-2",
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}

	b := env.balance(t, env.warehouseA)
	if b.Quantity != qty(t, "-15") {
		t.Errorf("balance quantity = %s, want -15", b.Quantity)
	}
}

// --- lots ---

func TestAppend_ReceiptCreatesLot(t *testing.T) {
	env := newLedgerEnv(t)

	c := decimal.RequireFromString("42.5")
	m, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:          env.productID,
		WarehouseID:        env.warehouseA,
		ReasonCode:         reason.CodePurchase,
		Quantity:           qty(t, "25"),
		UnitCost:           &c,
		LotCode:            "BATCH-2026-014",
		SourceDocumentType: "order",
		SourceDocumentID:   "ORD-7",
	})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if m.LotID == nil {
		t.Fatal("movement has no lot reference")
	}

	lot, ok := env.lotRepo.lots[*m.LotID]
	if !ok {
		t.Fatal("lot not persisted")
	}
	if lot.Code != "BATCH-2026-014" {
		t.Errorf("lot code = %s, want BATCH-2026-014", lot.Code)
	}
	if lot.ResidualQuantity != qty(t, "25") || lot.InitialQuantity != qty(t, "25") {
		t.Errorf("lot quantities = %s/%s, want 25/25", lot.InitialQuantity, lot.ResidualQuantity)
	}
	if !lot.UnitCost.Equal(c) {
		t.Errorf("lot unit cost = %s, want 42.5", lot.UnitCost)
	}
}

func TestAppend_ExpenseDrawsLot(t *testing.T) {
	env := newLedgerEnv(t)

	c := decimal.RequireFromString("30")
	receipt, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:          env.productID,
		WarehouseID:        env.warehouseA,
		ReasonCode:         reason.CodePurchase,
		Quantity:           qty(t, "50"),
		UnitCost:           &c,
		LotCode:            "BATCH-1",
		SourceDocumentType: "order",
		SourceDocumentID:   "ORD-1",
	})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	lotID := *receipt.LotID

	m, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:          env.productID,
		WarehouseID:        env.warehouseA,
		ReasonCode:         reason.CodeSale,
		Quantity:           qty(t, "10"),
		LotID:              &lotID,
		SourceDocumentType: "invoice",
		SourceDocumentID:   "INV-1",
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if m.LotID == nil || *m.LotID != lotID {
		t.Errorf("movement lot = %v, want %s", m.LotID, lotID)
	}

	if got := env.lotRepo.lots[lotID].ResidualQuantity; got != qty(t, "40") {
		t.Errorf("residual = %s, want 40", got)
	}
}

func TestAppend_LotErrors(t *testing.T) {
	env := newLedgerEnv(t)

	c := decimal.RequireFromString("30")
	receipt, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:          env.productID,
		WarehouseID:        env.warehouseA,
		ReasonCode:         reason.CodePurchase,
		Quantity:           qty(t, "10"),
		UnitCost:           &c,
		LotCode:            "BATCH-2",
		SourceDocumentType: "order",
		SourceDocumentID:   "ORD-2",
	})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	lotID := *receipt.LotID
	unknown := id.New()

	t.Run("unknown lot", func(t *testing.T) {
		_, err := env.svc.Append(context.Background(), AppendRequest{
			ProductID:   env.productID,
			WarehouseID: env.warehouseA,
			ReasonCode:  reason.CodeAdjustmentDecrease,
			Quantity:    qty(t, "1"),
			LotID:       &unknown,
		})
		assertCode(t, err, apperror.CodeLotNotFound)
	})

	t.Run("lot from another warehouse", func(t *testing.T) {
		env.receive(t, env.warehouseB, "10", "30")
		_, err := env.svc.Append(context.Background(), AppendRequest{
			ProductID:   env.productID,
			WarehouseID: env.warehouseB,
			ReasonCode:  reason.CodeAdjustmentDecrease,
			Quantity:    qty(t, "1"),
			LotID:       &lotID,
		})
		assertCode(t, err, apperror.CodeLotNotFound)
	})

	t.Run("draw beyond residual", func(t *testing.T) {
		_, err := env.svc.Append(context.Background(), AppendRequest{
			ProductID:   env.productID,
			WarehouseID: env.warehouseA,
			ReasonCode:  reason.CodeAdjustmentDecrease,
			Quantity:    qty(t, "10.5"),
			LotID:       &lotID,
		})
		assertCode(t, err, apperror.CodeLotExhausted)

		// The failed draw left the residual untouched.
		if got := env.lotRepo.lots[lotID].ResidualQuantity; got != qty(t, "10") {
			t.Errorf("residual = %s, want 10", got)
		}
	})
}

// --- transfers ---

func TestTransfer_MovesStockAtOriginAverage(t *testing.T) {
	env := newLedgerEnv(t)
	env.receive(t, env.warehouseA, "100", "30")
	env.events.events = nil

	out, in, err := env.svc.Transfer(context.Background(), TransferRequest{
		ProductID:     env.productID,
		OriginID:      env.warehouseA,
		DestinationID: env.warehouseB,
		Quantity:      qty(t, "20"),
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if out.RecordType != entity.RecordTypeExpense || in.RecordType != entity.RecordTypeReceipt {
		t.Errorf("leg record types = %s/%s, want expense/receipt", out.RecordType, in.RecordType)
	}
	if out.TransferID == nil || in.TransferID == nil || *out.TransferID != *in.TransferID {
		t.Errorf("legs not linked: %v vs %v", out.TransferID, in.TransferID)
	}
	if out.DestinationWarehouseID == nil || *out.DestinationWarehouseID != env.warehouseB {
		t.Errorf("outbound destination = %v, want %s", out.DestinationWarehouseID, env.warehouseB)
	}
	if in.DestinationWarehouseID != nil {
		t.Errorf("inbound leg carries a destination: %v", in.DestinationWarehouseID)
	}
	if out.Number == in.Number {
		t.Errorf("legs share document number %s", out.Number)
	}
	// The receipt carries the origin's average at issue time.
	if !in.UnitCost.Valid || !in.UnitCost.Decimal.Equal(decimal.RequireFromString("30")) {
		t.Errorf("inbound unit cost = %v, want 30", in.UnitCost)
	}

	origin := env.balance(t, env.warehouseA)
	if origin.Quantity != qty(t, "80") {
		t.Errorf("origin quantity = %s, want 80", origin.Quantity)
	}
	assertAvg(t, CostState{Quantity: origin.Quantity, AverageCost: origin.AverageCost}, "30")

	dest := env.balance(t, env.warehouseB)
	if dest.Quantity != qty(t, "20") {
		t.Errorf("destination quantity = %s, want 20", dest.Quantity)
	}
	assertAvg(t, CostState{Quantity: dest.Quantity, AverageCost: dest.AverageCost}, "30")

	// Both leg events and the completion event land as one atomic batch.
	if env.events.batches != 1 {
		t.Fatalf("event batches = %d, want 1", env.events.batches)
	}
	if len(env.events.events) != 3 {
		t.Fatalf("events = %+v, want two MovementAppended and one TransferCompleted", env.events.events)
	}
	if env.events.events[0].Type != EventMovementAppended || env.events.events[1].Type != EventMovementAppended {
		t.Fatalf("leg events = %s/%s, want MovementAppended pair", env.events.events[0].Type, env.events.events[1].Type)
	}
	payload, ok := env.events.events[2].Payload.(TransferCompletedPayload)
	if !ok {
		t.Fatalf("payload type %T", env.events.events[2].Payload)
	}
	if env.events.events[2].Type != EventTransferCompleted {
		t.Fatalf("last event = %s, want TransferCompleted", env.events.events[2].Type)
	}
	if payload.OutboundID != out.ID || payload.InboundID != in.ID {
		t.Errorf("payload legs = %s/%s, want %s/%s", payload.OutboundID, payload.InboundID, out.ID, in.ID)
	}
}

func TestTransfer_SameWarehouseRejected(t *testing.T) {
	env := newLedgerEnv(t)
	env.receive(t, env.warehouseA, "10", "30")

	_, _, err := env.svc.Transfer(context.Background(), TransferRequest{
		ProductID:     env.productID,
		OriginID:      env.warehouseA,
		DestinationID: env.warehouseA,
		Quantity:      qty(t, "5"),
	})
	assertCode(t, err, apperror.CodeSameWarehouse)
}

func TestTransfer_InsufficientStockAtOrigin(t *testing.T) {
	env := newLedgerEnv(t)
	env.receive(t, env.warehouseA, "10", "30")

	_, _, err := env.svc.Transfer(context.Background(), TransferRequest{
		ProductID:     env.productID,
		OriginID:      env.warehouseA,
		DestinationID: env.warehouseB,
		Quantity:      qty(t, "15"),
	})
	assertCode(t, err, apperror.CodeInsufficientStock)

	// Neither leg persisted.
	if len(env.repo.movements) != 1 {
		t.Errorf("movements = %d, want 1 (only the seed receipt)", len(env.repo.movements))
	}
	if _, err := env.repo.GetBalance(context.Background(), env.productID, env.warehouseB); err == nil {
		t.Error("destination balance created by failed transfer")
	}
}

func TestTransfer_SecondLegFailureLeavesNothing(t *testing.T) {
	env := newLedgerEnv(t)
	env.receive(t, env.warehouseA, "100", "25")

	// Fail the second insert of the transfer: the outbound leg and its
	// balance update are already written when the inbound leg dies.
	failing := &insertFailRepo{memRepo: env.repo, failOn: 2}
	svc := NewService(Config{
		Repo:       failing,
		Reasons:    env.reasons,
		Warehouses: env.warehouses,
		Products:   env.products,
		Lots:       lots.NewService(env.lotRepo),
		Events:     env.events,
		Numerator:  numerator.New(&seqQuerier{}),
		TxManager:  &rollbackTxManager{repo: env.repo},
	})

	_, _, err := svc.Transfer(context.Background(), TransferRequest{
		ProductID:     env.productID,
		OriginID:      env.warehouseA,
		DestinationID: env.warehouseB,
		Quantity:      qty(t, "40"),
	})
	if err == nil {
		t.Fatal("transfer with failing second leg succeeded")
	}

	if len(env.repo.movements) != 1 {
		t.Errorf("movements = %d, want 1 (only the seed receipt)", len(env.repo.movements))
	}
	origin := env.balance(t, env.warehouseA)
	if origin.Quantity != qty(t, "100") {
		t.Errorf("origin quantity = %s, want 100", origin.Quantity)
	}
	if !origin.AverageCost.Valid || !origin.AverageCost.Decimal.Equal(decimal.RequireFromString("25")) {
		t.Errorf("origin average cost changed: %v", origin.AverageCost)
	}
	if _, err := env.repo.GetBalance(context.Background(), env.productID, env.warehouseB); err == nil {
		t.Error("destination balance persisted after rollback")
	}
	for _, e := range env.events.events {
		if e.Type == EventTransferCompleted {
			t.Error("transfer event published for a rolled-back transfer")
		}
	}
}

func TestTransfer_FallbackCostWithoutBasis(t *testing.T) {
	env := newLedgerEnv(t)

	// Uncosted stock at the origin: quantity without a cost basis.
	uncosted := reason.NewMovementReason("FOUND", "Found stock", reason.KindInbound)
	env.addReason(t, uncosted)
	_, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:   env.productID,
		WarehouseID: env.warehouseA,
		ReasonCode:  "FOUND",
		Quantity:    qty(t, "10"),
	})
	if err != nil {
		t.Fatalf("uncosted receipt failed: %v", err)
	}

	fallback := decimal.RequireFromString("12")
	_, in, err := env.svc.Transfer(context.Background(), TransferRequest{
		ProductID:     env.productID,
		OriginID:      env.warehouseA,
		DestinationID: env.warehouseB,
		Quantity:      qty(t, "4"),
		UnitCost:      &fallback,
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if !in.UnitCost.Valid || !in.UnitCost.Decimal.Equal(fallback) {
		t.Errorf("inbound unit cost = %v, want fallback 12", in.UnitCost)
	}
	dest := env.balance(t, env.warehouseB)
	assertAvg(t, CostState{Quantity: dest.Quantity, AverageCost: dest.AverageCost}, "12")
}

func TestTransfer_ViaAppendWithTransferReason(t *testing.T) {
	env := newLedgerEnv(t)
	env.receive(t, env.warehouseA, "50", "30")

	dest := env.warehouseB
	out, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:              env.productID,
		WarehouseID:            env.warehouseA,
		ReasonCode:             reason.CodeTransfer,
		Quantity:               qty(t, "20"),
		DestinationWarehouseID: &dest,
	})
	if err != nil {
		t.Fatalf("append transfer failed: %v", err)
	}
	if out.TransferID == nil {
		t.Fatal("returned movement is not a transfer leg")
	}
	if out.RecordType != entity.RecordTypeExpense {
		t.Errorf("record type = %s, want expense (outbound leg)", out.RecordType)
	}

	if b := env.balance(t, env.warehouseB); b.Quantity != qty(t, "20") {
		t.Errorf("destination quantity = %s, want 20", b.Quantity)
	}
}

// --- immutability ---

func TestUpdateAndDeleteAlwaysRejected(t *testing.T) {
	env := newLedgerEnv(t)
	m := env.receive(t, env.warehouseA, "10", "30")

	assertCode(t, env.svc.Update(context.Background(), m.ID), apperror.CodeImmutableMovement)
	assertCode(t, env.svc.Delete(context.Background(), m.ID), apperror.CodeImmutableMovement)

	// Even for movements that do not exist.
	assertCode(t, env.svc.Update(context.Background(), id.New()), apperror.CodeImmutableMovement)
	assertCode(t, env.svc.Delete(context.Background(), id.New()), apperror.CodeImmutableMovement)
}

// --- retries ---

func TestAppend_RetriesSerializationConflicts(t *testing.T) {
	env := newLedgerEnv(t)
	flaky := &flakyTxManager{failures: 2}
	env.svc.txManager = flaky

	m := env.receive(t, env.warehouseA, "10", "30")
	if m == nil {
		t.Fatal("append did not succeed after retries")
	}
	if flaky.calls != 3 {
		t.Errorf("transaction attempts = %d, want 3", flaky.calls)
	}
}

func TestAppend_BusyAfterRetriesExhausted(t *testing.T) {
	env := newLedgerEnv(t)
	flaky := &flakyTxManager{failures: 100}
	env.svc.txManager = flaky

	c := decimal.RequireFromString("30")
	_, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:   env.productID,
		WarehouseID: env.warehouseA,
		ReasonCode:  reason.CodeOpeningBalance,
		Quantity:    qty(t, "10"),
		UnitCost:    &c,
	})
	assertCode(t, err, apperror.CodeBusy)

	if flaky.calls != 3 {
		t.Errorf("transaction attempts = %d, want maxRetries 3", flaky.calls)
	}
	// The serialization failure is preserved as the cause.
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "40001" {
		t.Errorf("busy cause = %v, want pg 40001", err)
	}
}

func TestAppend_NonRetryableErrorNotRetried(t *testing.T) {
	env := newLedgerEnv(t)
	env.receive(t, env.warehouseA, "5", "30")
	before := env.txm.calls

	// Insufficient stock is a business rejection, not contention.
	_, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:          env.productID,
		WarehouseID:        env.warehouseA,
		ReasonCode:         reason.CodeSale,
		Quantity:           qty(t, "50"),
		SourceDocumentType: "invoice",
		SourceDocumentID:   "INV-9",
	})
	assertCode(t, err, apperror.CodeInsufficientStock)

	if env.txm.calls != before+1 {
		t.Errorf("transaction attempts = %d, want 1", env.txm.calls-before)
	}
}

// --- history and rebuild ---

func TestHistory_KeysetPagination(t *testing.T) {
	env := newLedgerEnv(t)
	for i := 0; i < 5; i++ {
		env.receive(t, env.warehouseA, "10", "30")
	}

	page, err := env.svc.History(context.Background(), HistoryFilter{
		ProductID: env.productID,
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(page.Items) != 2 || !page.HasMore {
		t.Fatalf("page = %d items, hasMore %v; want 2, true", len(page.Items), page.HasMore)
	}
	if page.Items[0].Seq != 5 || page.Items[1].Seq != 4 {
		t.Errorf("page seqs = %d, %d; want 5, 4", page.Items[0].Seq, page.Items[1].Seq)
	}

	// The cursor restarts the sequence exactly where it stopped.
	next, err := env.svc.History(context.Background(), HistoryFilter{
		ProductID: env.productID,
		After:     page.NextAfter,
		Limit:     2,
	})
	if err != nil {
		t.Fatalf("second page failed: %v", err)
	}
	if len(next.Items) != 2 || next.Items[0].Seq != 3 {
		t.Errorf("second page starts at seq %d, want 3", next.Items[0].Seq)
	}
}

func TestHistory_DefaultLimit(t *testing.T) {
	env := newLedgerEnv(t)
	env.receive(t, env.warehouseA, "10", "30")

	page, err := env.svc.History(context.Background(), HistoryFilter{ProductID: env.productID})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(page.Items) != 1 || page.HasMore {
		t.Errorf("page = %d items, hasMore %v", len(page.Items), page.HasMore)
	}
}

func TestGet_NotFound(t *testing.T) {
	env := newLedgerEnv(t)
	_, err := env.svc.Get(context.Background(), id.New())
	assertCode(t, err, apperror.CodeNotFound)
}

func TestRebuildBalance_AgreesWithIncremental(t *testing.T) {
	env := newLedgerEnv(t)

	env.receive(t, env.warehouseA, "100", "30")
	_, err := env.svc.Append(context.Background(), AppendRequest{
		ProductID:          env.productID,
		WarehouseID:        env.warehouseA,
		ReasonCode:         reason.CodeSale,
		Quantity:           qty(t, "30"),
		SourceDocumentType: "invoice",
		SourceDocumentID:   "INV-1",
	})
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	c := decimal.RequireFromString("36")
	_, err = env.svc.Append(context.Background(), AppendRequest{
		ProductID:          env.productID,
		WarehouseID:        env.warehouseA,
		ReasonCode:         reason.CodePurchase,
		Quantity:           qty(t, "50"),
		UnitCost:           &c,
		SourceDocumentType: "order",
		SourceDocumentID:   "ORD-1",
	})
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	incremental := env.balance(t, env.warehouseA)

	// Corrupt the stored balance, then rebuild from the ledger.
	corrupted := *incremental
	corrupted.Quantity = qty(t, "999")
	corrupted.AverageCost = decimal.NullDecimal{}
	if err := env.repo.SaveBalance(context.Background(), &corrupted); err != nil {
		t.Fatalf("corrupt balance: %v", err)
	}

	rebuilt, err := env.svc.RebuildBalance(context.Background(), env.productID, env.warehouseA)
	if err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	if rebuilt.Quantity != incremental.Quantity {
		t.Errorf("rebuilt quantity = %s, incremental = %s", rebuilt.Quantity, incremental.Quantity)
	}
	if !rebuilt.AverageCost.Valid || !rebuilt.AverageCost.Decimal.Equal(incremental.AverageCost.Decimal) {
		t.Errorf("rebuilt average = %v, incremental = %v", rebuilt.AverageCost, incremental.AverageCost)
	}
}
