package receipts

import (
	"path/filepath"
	"testing"

	"github.com/fortiblox/X1-Nimbus/internal/types"
	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/events"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
	"github.com/fortiblox/X1-Nimbus/pkg/runtime"
	"github.com/fortiblox/X1-Nimbus/pkg/state"
	"github.com/fortiblox/X1-Nimbus/pkg/watts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := Open(DefaultConfig(filepath.Join(t.TempDir(), "receipts.db")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testReceipt(height uint64, nonce uint64, ok bool) *runtime.Receipt {
	tx := &runtime.Tx{
		Sender:  types.Address{0xA1},
		Program: types.Address{0x0B},
		Method:  "Pay",
		Nonce:   nonce,
	}
	r := &runtime.Receipt{
		TxID:    tx.ID(height, nonce+1),
		Height:  height,
		Seq:     nonce + 1,
		Sender:  tx.Sender,
		Program: tx.Program,
		Method:  tx.Method,
		Success: ok,
		Watts:   watts.Report{Spent: 1200, Refund: 800, Total: 2000},
		RWSet:   state.RWSet{Reads: []string{"\x02\x01"}, Writes: []string{"\x02\x01"}},
	}
	if ok {
		r.Result = []abi.Value{abi.Int32(5)}
		r.Events = []events.Event{{Program: tx.Program, Name: "Paid", Payload: abi.Utf8("x")}}
	} else {
		r.Failure = failure.InsufficientFunds("A1", "balance 1 < 5")
		r.Failure.Depth = 1
	}
	return r
}

func TestPutGet(t *testing.T) {
	s := openTestStore(t)

	ok := testReceipt(3, 0, true)
	bad := testReceipt(3, 1, false)
	require.NoError(t, s.PutReceipt(ok))
	require.NoError(t, s.PutReceipt(bad))

	rec, err := s.Get(ok.TxID)
	require.NoError(t, err)
	assert.Equal(t, ok.TxID.Hex(), rec.TxID)
	assert.True(t, rec.Success)
	assert.Equal(t, []string{"int32.5"}, rec.Result)
	require.Len(t, rec.Events, 1)
	assert.Equal(t, EventRecord{Program: ok.Program.Hex(), Name: "Paid", Payload: "utf8.x"}, rec.Events[0])
	assert.Equal(t, uint64(1200), rec.SpentWatts)
	assert.Equal(t, uint64(800), rec.RefundWatts)
	assert.Equal(t, uint64(2000), rec.TotalWatts)
	assert.Equal(t, []string{"0201"}, rec.Writes)

	rec, err = s.Get(bad.TxID)
	require.NoError(t, err)
	assert.False(t, rec.Success)
	assert.Equal(t, "InsufficientFunds", rec.ErrorCode)
	assert.Equal(t, "A1", rec.Subject)
	assert.Equal(t, 1, rec.Depth)
	assert.Empty(t, rec.Result)

	_, err = s.Get(types.Hash{0xFF})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, uint64(2), s.Count())
	assert.Equal(t, uint64(3), s.LatestHeight())
	assert.Equal(t, uint64(2), s.LatestSeq())
	assert.Equal(t, uint64(2), rec.Seq)
}

func TestPutReplaces(t *testing.T) {
	s := openTestStore(t)
	r := testReceipt(1, 0, true)
	require.NoError(t, s.PutReceipt(r))
	require.NoError(t, s.PutReceipt(r))
	assert.Equal(t, uint64(1), s.Count())
}

func TestListByHeight(t *testing.T) {
	s := openTestStore(t)
	for h := uint64(1); h <= 3; h++ {
		for n := uint64(0); n < h; n++ {
			require.NoError(t, s.PutReceipt(testReceipt(h, n, true)))
		}
	}

	for h := uint64(1); h <= 3; h++ {
		recs, err := s.ListByHeight(h)
		require.NoError(t, err)
		assert.Len(t, recs, int(h))
		for i, rec := range recs {
			assert.Equal(t, h, rec.Height)
			if i > 0 {
				assert.Less(t, recs[i-1].TxID, rec.TxID)
			}
		}
	}

	recs, err := s.ListByHeight(9)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	for h := uint64(1); h <= 10; h++ {
		require.NoError(t, s.PutReceipt(testReceipt(h, 0, true)))
	}

	removed, err := s.Prune(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), removed)
	assert.Equal(t, uint64(4), s.Count())

	recs, err := s.ListByHeight(6)
	require.NoError(t, err)
	assert.Empty(t, recs)
	recs, err = s.ListByHeight(7)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.db")
	s, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	r := testReceipt(4, 0, true)
	require.NoError(t, s.PutReceipt(r))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrClosed)

	s, err = Open(DefaultConfig(path))
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, uint64(1), s.Count())
	assert.Equal(t, uint64(4), s.LatestHeight())
	assert.Equal(t, uint64(1), s.LatestSeq())
	_, err = s.Get(r.TxID)
	assert.NoError(t, err)
}

func TestLastBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipts.db")
	s, err := Open(DefaultConfig(path))
	require.NoError(t, err)

	_, ok, err := s.LastBlock()
	require.NoError(t, err)
	assert.False(t, ok)

	block := runtime.BlockInfo{Height: 12, Hash: types.MustBytesFromHex("C0FFEE"), Time: 1_700_000_000_123}
	require.NoError(t, s.PutBlock(runtime.BlockInfo{Height: 11}))
	require.NoError(t, s.PutBlock(block))
	require.NoError(t, s.Close())

	s, err = Open(DefaultConfig(path))
	require.NoError(t, err)
	defer s.Close()

	got, ok, err := s.LastBlock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, block.Height, got.Height)
	assert.Equal(t, block.Time, got.Time)
	assert.Equal(t, "C0FFEE", got.Hash.Hex())
}

func TestClosed(t *testing.T) {
	s, err := Open(DefaultConfig(filepath.Join(t.TempDir(), "receipts.db")))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.PutReceipt(testReceipt(1, 0, true)), ErrClosed)
	assert.ErrorIs(t, s.PutBlock(runtime.BlockInfo{}), ErrClosed)
	_, err = s.Get(types.Hash{})
	assert.ErrorIs(t, err, ErrClosed)
}
