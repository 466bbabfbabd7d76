package service

import (
	"context"
	"errors"
	"testing"

	"stock-service/internal/models"
	"stock-service/internal/port"
	"stock-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStockFixture() (*StockService, *store.Memory) {
	mem := store.NewMemory()
	return NewStockService(mem, nil, 1), mem
}

func TestAdjustCreatesBalanceAndOperation(t *testing.T) {
	svc, mem := newStockFixture()
	ctx := context.Background()

	result, err := svc.Adjust(ctx, AdjustRequest{ItemID: 7, LocationID: 2, Qty: 5, Note: "initial count", PerformedBy: 9})
	require.NoError(t, err)
	require.NotNil(t, result.Item)
	assert.Equal(t, 5, result.Item.Quantity)
	assert.Equal(t, 5, result.Item.Available)
	assert.NotEmpty(t, result.OperationID)

	ops := mem.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpTypeIn, ops[0].Type)
	assert.Equal(t, 5, ops[0].Qty)
	assert.Equal(t, models.SourceManual, ops[0].SourceType)
	require.NotNil(t, ops[0].LocationToID)
	assert.Equal(t, int64(2), *ops[0].LocationToID)
	assert.Equal(t, int64(9), ops[0].PerformedBy)

	result, err = svc.Adjust(ctx, AdjustRequest{ItemID: 7, LocationID: 2, Qty: -3, PerformedBy: 9})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Item.Quantity)

	ops = mem.Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, models.OpTypeOut, ops[1].Type)
	assert.Equal(t, 3, ops[1].Qty)
	require.NotNil(t, ops[1].LocationFromID)
	assert.Equal(t, int64(2), *ops[1].LocationFromID)
}

func TestAdjustRejectsNegativeBalance(t *testing.T) {
	svc, mem := newStockFixture()
	mem.SeedBalance(7, 2, 2, 0)

	_, err := svc.Adjust(context.Background(), AdjustRequest{ItemID: 7, LocationID: 2, Qty: -3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNegativeBalance))

	var svcErr *models.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, 409, svcErr.StatusCode)

	// Nothing was written, neither balance nor audit row.
	bal := mem.Balance(7, 2)
	require.NotNil(t, bal)
	assert.Equal(t, 2, bal.Quantity)
	assert.Empty(t, mem.Operations())
}

func TestAdjustValidation(t *testing.T) {
	svc, _ := newStockFixture()
	ctx := context.Background()

	_, err := svc.Adjust(ctx, AdjustRequest{ItemID: 7, LocationID: 2, Qty: 0})
	var svcErr *models.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "VALIDATION_ERROR", svcErr.Code)

	_, err = svc.Adjust(ctx, AdjustRequest{ItemID: 0, LocationID: 2, Qty: 1})
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, 400, svcErr.StatusCode)
}

func TestTransferMovesStockAtomically(t *testing.T) {
	svc, mem := newStockFixture()
	mem.SeedBalance(7, 1, 7, 1)
	mem.SeedBalance(7, 2, 2, 0)

	result, err := svc.Transfer(context.Background(), TransferRequest{ItemID: 7, From: 1, To: 2, Qty: 5})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, 2, result.Items[0].Quantity)
	assert.Equal(t, 7, result.Items[1].Quantity)

	// Conservation: the pair total is unchanged.
	assert.Equal(t, 9, mem.Balance(7, 1).Quantity+mem.Balance(7, 2).Quantity)

	ops := mem.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpTypeTransfer, ops[0].Type)
	require.NotNil(t, ops[0].LocationFromID)
	require.NotNil(t, ops[0].LocationToID)
	assert.Equal(t, int64(1), *ops[0].LocationFromID)
	assert.Equal(t, int64(2), *ops[0].LocationToID)
}

func TestTransferRejectsInsufficientStock(t *testing.T) {
	svc, mem := newStockFixture()
	mem.SeedBalance(7, 1, 1, 0)

	_, err := svc.Transfer(context.Background(), TransferRequest{ItemID: 7, From: 1, To: 2, Qty: 2})
	assert.True(t, errors.Is(err, models.ErrInsufficientStock))

	assert.Equal(t, 1, mem.Balance(7, 1).Quantity)
	assert.Nil(t, mem.Balance(7, 2))
	assert.Empty(t, mem.Operations())
}

func TestTransferToMissingDestinationCreatesRow(t *testing.T) {
	svc, mem := newStockFixture()
	mem.SeedBalance(7, 1, 4, 0)

	result, err := svc.Transfer(context.Background(), TransferRequest{ItemID: 7, From: 1, To: 3, Qty: 4})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Items[0].Quantity)
	assert.Equal(t, 4, result.Items[1].Quantity)
}

func TestIssueFromOrderConsumesReservation(t *testing.T) {
	svc, mem := newStockFixture()
	reservations := NewReservationService(mem, 1)
	ctx := context.Background()

	mem.SeedBalance(7, 1, 10, 0)
	mem.SeedOrder(100, 1, []models.OrderLine{{ItemID: 7, Qty: 4}})

	_, err := reservations.ReserveForOrder(ctx, 100, 0, 5)
	require.NoError(t, err)
	bal := mem.Balance(7, 1)
	assert.Equal(t, 4, bal.Reserved)
	assert.Equal(t, 6, bal.Available)

	result, err := svc.IssueFromOrder(ctx, 100, 5, 0)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.Processed)

	bal = mem.Balance(7, 1)
	assert.Equal(t, 6, bal.Quantity)
	assert.Equal(t, 0, bal.Reserved)

	ops := mem.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpTypeOut, ops[0].Type)
	assert.Equal(t, models.SourceOrder, ops[0].SourceType)
	assert.Equal(t, int64(100), ops[0].SourceID)

	// Second delivery of the same event is a no-op success.
	result, err = svc.IssueFromOrder(ctx, 100, 5, 0)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, result.OperationIDs)

	bal = mem.Balance(7, 1)
	assert.Equal(t, 6, bal.Quantity)
	assert.Equal(t, 0, bal.Reserved)
	assert.Len(t, mem.Operations(), 1)
}

func TestIssueFromOrderClampsReservedRelease(t *testing.T) {
	svc, mem := newStockFixture()
	ctx := context.Background()

	// Reservation never fully matched: only 1 of 4 units held.
	mem.SeedBalance(7, 1, 10, 1)
	mem.SeedOrder(100, 1, []models.OrderLine{{ItemID: 7, Qty: 4}})

	result, err := svc.IssueFromOrder(ctx, 100, 5, 0)
	require.NoError(t, err)
	assert.True(t, result.OK)

	bal := mem.Balance(7, 1)
	assert.Equal(t, 6, bal.Quantity)
	assert.Equal(t, 0, bal.Reserved)
	assert.GreaterOrEqual(t, bal.Available, 0)
}

func TestIssueFromOrderInsufficientStockIsSoftFailure(t *testing.T) {
	svc, mem := newStockFixture()
	ctx := context.Background()

	mem.SeedBalance(7, 1, 2, 0)
	mem.SeedOrder(100, 1, []models.OrderLine{{ItemID: 7, Qty: 5}})

	result, err := svc.IssueFromOrder(ctx, 100, 5, 0)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, 409, result.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", result.Code)

	assert.Equal(t, 2, mem.Balance(7, 1).Quantity)
	assert.Empty(t, mem.Operations())
}

func TestIssueFromOrderMultiLineAbortsWholeBatch(t *testing.T) {
	svc, mem := newStockFixture()
	ctx := context.Background()

	mem.SeedBalance(7, 1, 10, 0)
	mem.SeedBalance(8, 1, 1, 0)
	mem.SeedOrder(100, 1, []models.OrderLine{
		{ItemID: 7, Qty: 3},
		{ItemID: 8, Qty: 2},
	})

	result, err := svc.IssueFromOrder(ctx, 100, 5, 0)
	require.NoError(t, err)
	assert.False(t, result.OK)

	// The first line's decrement must not survive the abort.
	assert.Equal(t, 10, mem.Balance(7, 1).Quantity)
	assert.Equal(t, 1, mem.Balance(8, 1).Quantity)
	assert.Empty(t, mem.Operations())
}

func TestReturnFromRefundIsIdempotentPerPayment(t *testing.T) {
	svc, mem := newStockFixture()
	ctx := context.Background()

	mem.SeedBalance(7, 1, 2, 0)
	mem.SeedOrder(100, 1, []models.OrderLine{{ItemID: 7, Qty: 2}})

	result, err := svc.ReturnFromRefund(ctx, 100, 77, 5, 0)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 4, mem.Balance(7, 1).Quantity)

	result, err = svc.ReturnFromRefund(ctx, 100, 77, 5, 0)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 4, mem.Balance(7, 1).Quantity)

	ops := mem.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpTypeReturn, ops[0].Type)
	assert.Equal(t, models.SourcePayment, ops[0].SourceType)
	assert.Equal(t, int64(77), ops[0].SourceID)

	// A second refund of the same order is a distinct movement.
	result, err = svc.ReturnFromRefund(ctx, 100, 78, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, mem.Balance(7, 1).Quantity)
	assert.Len(t, mem.Operations(), 2)
	_ = result
}

func TestIssueLocationResolution(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit parameter wins", func(t *testing.T) {
		svc, mem := newStockFixture()
		mem.SeedBalance(7, 3, 5, 0)
		mem.SeedOrder(100, 2, []models.OrderLine{{ItemID: 7, Qty: 5}})

		result, err := svc.IssueFromOrder(ctx, 100, 5, 3)
		require.NoError(t, err)
		assert.True(t, result.OK)
		assert.Equal(t, 0, mem.Balance(7, 3).Quantity)
	})

	t.Run("order hint next", func(t *testing.T) {
		svc, mem := newStockFixture()
		mem.SeedBalance(7, 2, 5, 0)
		mem.SeedOrder(100, 2, []models.OrderLine{{ItemID: 7, Qty: 5}})

		result, err := svc.IssueFromOrder(ctx, 100, 5, 0)
		require.NoError(t, err)
		assert.True(t, result.OK)
		assert.Equal(t, 0, mem.Balance(7, 2).Quantity)
	})

	t.Run("configured default last", func(t *testing.T) {
		svc, mem := newStockFixture()
		mem.SeedBalance(7, 1, 5, 0)
		mem.SeedOrder(100, 0, []models.OrderLine{{ItemID: 7, Qty: 5}})

		result, err := svc.IssueFromOrder(ctx, 100, 5, 0)
		require.NoError(t, err)
		assert.True(t, result.OK)
		assert.Equal(t, 0, mem.Balance(7, 1).Quantity)
	})
}

func TestListBalancesFiltersAndSorts(t *testing.T) {
	svc, mem := newStockFixture()
	mem.SeedBalance(7, 1, 10, 2)
	mem.SeedBalance(7, 2, 30, 0)
	mem.SeedBalance(8, 1, 20, 5)

	items, err := svc.ListBalances(context.Background(), port.BalanceFilter{Limit: 500})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, 30, items[0].Quantity)
	assert.Equal(t, 20, items[1].Quantity)
	assert.Equal(t, 10, items[2].Quantity)

	items, err = svc.ListBalances(context.Background(), port.BalanceFilter{ItemID: 7})
	require.NoError(t, err)
	require.Len(t, items, 2)

	items, err = svc.ListBalances(context.Background(), port.BalanceFilter{ItemID: 7, LocationID: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 8, items[0].Available)
}
