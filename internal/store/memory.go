package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"stock-service/internal/models"
	"stock-service/internal/port"
)

type balanceKey struct {
	itemID     int64
	locationID int64
}

type memOrder struct {
	locationID int64
	lines      []models.OrderLine
}

// Memory is the in-memory adapter behind port.Store, used by tests and dev
// runs that have no Postgres. Transactions are staged on a copy and swapped
// in on commit, so a failed call leaves no partial state, and the store
// mutex serializes whole transactions the way row locks do in Postgres.
type Memory struct {
	mu         sync.Mutex
	balances   map[balanceKey]models.Balance
	operations []models.Operation
	orders     map[int64]memOrder
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[balanceKey]models.Balance),
		orders:   make(map[int64]memOrder),
	}
}

// SeedBalance installs a starting balance row, bypassing the ledger.
func (m *Memory) SeedBalance(itemID, locationID int64, quantity, reserved int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[balanceKey{itemID, locationID}] = models.Balance{
		ItemID:     itemID,
		LocationID: locationID,
		Quantity:   quantity,
		Reserved:   reserved,
		Available:  quantity - reserved,
		UpdatedAt:  time.Now(),
	}
}

// SeedOrder installs an order for the collaborator read contract.
func (m *Memory) SeedOrder(orderID, locationID int64, lines []models.OrderLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID] = memOrder{locationID: locationID, lines: append([]models.OrderLine(nil), lines...)}
}

// Operations returns a copy of the ledger, oldest first.
func (m *Memory) Operations() []models.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Operation(nil), m.operations...)
}

// Balance returns the current row for a pair, nil if never mutated.
func (m *Memory) Balance(itemID, locationID int64) *models.Balance {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bal, ok := m.balances[balanceKey{itemID, locationID}]; ok {
		return &bal
	}
	return nil
}

type memTx struct {
	balances   map[balanceKey]models.Balance
	operations []models.Operation
}

func (m *Memory) WithinTx(ctx context.Context, fn func(tx port.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := &memTx{
		balances:   make(map[balanceKey]models.Balance, len(m.balances)),
		operations: append([]models.Operation(nil), m.operations...),
	}
	for k, v := range m.balances {
		staged.balances[k] = v
	}

	if err := fn(staged); err != nil {
		return err
	}

	m.balances = staged.balances
	m.operations = staged.operations
	return nil
}

func (t *memTx) BalanceForUpdate(ctx context.Context, itemID, locationID int64) (*models.Balance, error) {
	if bal, ok := t.balances[balanceKey{itemID, locationID}]; ok {
		return &bal, nil
	}
	return nil, nil
}

func (t *memTx) ApplyBalanceDelta(ctx context.Context, itemID, locationID int64, qtyDelta, reservedDelta int) (*models.Balance, error) {
	key := balanceKey{itemID, locationID}
	bal := t.balances[key]
	bal.ItemID = itemID
	bal.LocationID = locationID
	bal.Quantity += qtyDelta
	bal.Reserved += reservedDelta
	bal.Available = bal.Quantity - bal.Reserved
	bal.UpdatedAt = time.Now()
	t.balances[key] = bal
	return &bal, nil
}

func (t *memTx) OperationExists(ctx context.Context, opType, sourceType string, sourceID, itemID int64, qty int) (bool, error) {
	for _, op := range t.operations {
		if op.Type == opType && op.SourceType == sourceType &&
			op.SourceID == sourceID && op.ItemID == itemID && op.Qty == qty {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertOperation(ctx context.Context, op *models.Operation) error {
	t.operations = append(t.operations, *op)
	return nil
}

func (m *Memory) ListBalances(ctx context.Context, f port.BalanceFilter) ([]models.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := []models.Balance{}
	for _, bal := range m.balances {
		if f.ItemID != 0 && bal.ItemID != f.ItemID {
			continue
		}
		if f.LocationID != 0 && bal.LocationID != f.LocationID {
			continue
		}
		matched = append(matched, bal)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Quantity > matched[j].Quantity })

	if f.Offset >= len(matched) {
		return []models.Balance{}, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (m *Memory) SummaryByLocation(ctx context.Context, limit int) ([]models.LocationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byLocation := make(map[int64]*models.LocationSummary)
	for _, bal := range m.balances {
		g, ok := byLocation[bal.LocationID]
		if !ok {
			g = &models.LocationSummary{LocationID: bal.LocationID}
			byLocation[bal.LocationID] = g
		}
		g.Quantity += bal.Quantity
		g.Reserved += bal.Reserved
		g.Available += bal.Quantity - bal.Reserved
	}

	groups := make([]models.LocationSummary, 0, len(byLocation))
	for _, g := range byLocation {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Quantity > groups[j].Quantity })
	if limit > 0 && limit < len(groups) {
		groups = groups[:limit]
	}
	return groups, nil
}

func (m *Memory) TurnoverByItem(ctx context.Context, from, to *time.Time) ([]models.ItemTurnover, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byItem := make(map[int64]*models.ItemTurnover)
	for _, op := range m.operations {
		if op.Type == models.OpTypeTransfer {
			continue
		}
		if from != nil && op.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && op.CreatedAt.After(*to) {
			continue
		}
		row, ok := byItem[op.ItemID]
		if !ok {
			row = &models.ItemTurnover{ItemID: op.ItemID}
			byItem[op.ItemID] = row
		}
		switch op.Type {
		case models.OpTypeIn, models.OpTypeReturn:
			row.In += op.Qty
		case models.OpTypeOut:
			row.Out += op.Qty
		}
	}

	rows := make([]models.ItemTurnover, 0, len(byItem))
	for _, row := range byItem {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].In+rows[i].Out > rows[j].In+rows[j].Out })
	return rows, nil
}

func (m *Memory) OrderItems(ctx context.Context, orderID int64) ([]models.OrderLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return []models.OrderLine{}, nil
	}
	return append([]models.OrderLine(nil), order.lines...), nil
}

func (m *Memory) OrderLocation(ctx context.Context, orderID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderID].locationID, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}
