package moneybox

import (
	"testing"

	"github.com/ksred/escrow-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSibling struct {
	buyerOrders  []types.IndexedOrder
	sellerOrders []types.IndexedOrder
}

func (s *stubSibling) OrdersByBuyer(address string) ([]types.IndexedOrder, error) {
	return s.buyerOrders, nil
}

func (s *stubSibling) OrdersBySeller(address string) ([]types.IndexedOrder, error) {
	return s.sellerOrders, nil
}

func TestAllBuyerOrdersLocalFirst(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.CreateMoneyBox(testBuyer, testSeller, 1000, "box-1", 0)
	require.NoError(t, err)
	_, err = service.CreateMoneyBox(testBuyer, testSeller, 500, "box-2", 0)
	require.NoError(t, err)

	sibling := &stubSibling{
		buyerOrders: []types.IndexedOrder{
			{ID: "plain-1", Order: types.Order{OrderID: "plain-1"}},
		},
	}

	merged, err := service.AllBuyerOrders(sibling, testBuyer)
	require.NoError(t, err)
	require.Len(t, merged, 3)

	// Local boxes most recent first, the sibling's orders appended after
	assert.Equal(t, "box-2", merged[0].ID)
	assert.Equal(t, "box-1", merged[1].ID)
	assert.Equal(t, "plain-1", merged[2].ID)
}

func TestAllSellerOrders(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.CreateMoneyBox(testBuyer, testSeller, 1000, "box-1", 0)
	require.NoError(t, err)

	sibling := &stubSibling{
		sellerOrders: []types.IndexedOrder{
			{ID: "plain-1", Order: types.Order{OrderID: "plain-1"}},
			{ID: "plain-2", Order: types.Order{OrderID: "plain-2"}},
		},
	}

	merged, err := service.AllSellerOrders(sibling, testSeller)
	require.NoError(t, err)
	require.Len(t, merged, 3)
	assert.Equal(t, "box-1", merged[0].ID)
	assert.Equal(t, "plain-1", merged[1].ID)
	assert.Equal(t, "plain-2", merged[2].ID)
}

func TestAllBuyerOrdersEmptyBothSides(t *testing.T) {
	service, _ := newTestService(t)

	merged, err := service.AllBuyerOrders(&stubSibling{}, "0xnobody")
	require.NoError(t, err)
	assert.Empty(t, merged)
}
