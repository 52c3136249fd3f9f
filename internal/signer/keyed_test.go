package signer

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/lack0fcode/destructorbr/internal/contracts"
)

type fakeBackend struct {
	mu          sync.Mutex
	baseFee     *big.Int
	estimateErr error
	sent        []*types.Transaction
	pendingPoll int
	receipt     *types.Receipt
	receiptErr  error
	// receiptErrs is how many polls fail with receiptErr before it clears.
	receiptErrs int
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	// the node's pending pool lags: every read reports the same nonce
	time.Sleep(time.Millisecond)
	return 7, nil
}

func (f *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2), nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(50), nil
}

func (f *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: f.baseFee}, nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 40_000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptErrs > 0 {
		f.receiptErrs--
		return nil, f.receiptErr
	}
	if f.pendingPoll > 0 {
		f.pendingPoll--
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

var token = common.HexToAddress("0x1111111111111111111111111111111111111111")

func newTestKeyed(t *testing.T, b *fakeBackend, opts ...KeyedOption) (*Keyed, *Wallet) {
	t.Helper()
	w, err := NewRandomWallet()
	require.NoError(t, err)
	opts = append([]KeyedOption{WithPolling(time.Millisecond, time.Millisecond, 5*time.Millisecond)}, opts...)
	k, err := NewKeyed(w, b, 84532, opts...)
	require.NoError(t, err)
	return k, w
}

func TestSendContractCallDynamicFee(t *testing.T) {
	b := &fakeBackend{baseFee: big.NewInt(10)}
	k, w := newTestKeyed(t, b)

	data, err := contracts.PackApprove(common.HexToAddress("0x9b9FEe4532170621b1016035617F320d7B2f9B8F"), big.NewInt(0))
	require.NoError(t, err)

	hash, err := k.SendContractCall(context.Background(), token, data)
	require.NoError(t, err)
	require.Len(t, b.sent, 1)

	tx := b.sent[0]
	require.Equal(t, hash, tx.Hash())
	require.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	require.Equal(t, uint64(7), tx.Nonce())
	require.Equal(t, uint64(44_000), tx.Gas())
	require.Equal(t, int64(22), tx.GasFeeCap().Int64())
	require.Equal(t, int64(2), tx.GasTipCap().Int64())
	require.Equal(t, token, *tx.To())
	require.Equal(t, 0, tx.Value().Sign())
	require.Equal(t, data, tx.Data())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(84532)), tx)
	require.NoError(t, err)
	require.Equal(t, w.Address(), from)
}

func TestSendContractCallLegacyFallback(t *testing.T) {
	b := &fakeBackend{estimateErr: errors.New("execution reverted")}
	k, _ := newTestKeyed(t, b)

	_, err := k.SendContractCall(context.Background(), token, []byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)

	tx := b.sent[0]
	require.Equal(t, uint8(types.LegacyTxType), tx.Type())
	require.Equal(t, int64(50), tx.GasPrice().Int64())
	require.Equal(t, uint64(fallbackGasLimit), tx.Gas())
}

type denyAll struct{}

func (denyAll) ConfirmMessage(context.Context, string) error   { return ErrRejected }
func (denyAll) ConfirmCall(context.Context, CallRequest) error { return ErrRejected }

func TestConfirmerRejection(t *testing.T) {
	b := &fakeBackend{baseFee: big.NewInt(1)}
	k, _ := newTestKeyed(t, b, WithConfirmer(denyAll{}))

	_, err := k.SendContractCall(context.Background(), token, nil)
	require.ErrorIs(t, err, ErrRejected)
	require.Empty(t, b.sent)

	_, err = k.SignMessage(context.Background(), "hi")
	require.ErrorIs(t, err, ErrRejected)
}

func TestWaitForReceiptPollsUntilMined(t *testing.T) {
	b := &fakeBackend{pendingPoll: 3, receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful}}
	k, _ := newTestKeyed(t, b)

	r, err := k.WaitForReceipt(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, r.Status)
	require.Zero(t, b.pendingPoll)
}

func TestWaitForReceiptHonoursContext(t *testing.T) {
	b := &fakeBackend{pendingPoll: 1 << 30}
	k, _ := newTestKeyed(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := k.WaitForReceipt(ctx, common.HexToHash("0x01"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForReceiptRetriesRPCErrors(t *testing.T) {
	b := &fakeBackend{
		receiptErr:  errors.New("connection refused"),
		receiptErrs: 1,
		pendingPoll: 1,
		receipt:     &types.Receipt{Status: types.ReceiptStatusSuccessful},
	}
	k, _ := newTestKeyed(t, b)

	r, err := k.WaitForReceipt(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, r.Status)
	require.Zero(t, b.receiptErrs)
}

func TestWaitForReceiptRPCErrorsUntilDeadline(t *testing.T) {
	b := &fakeBackend{receiptErr: errors.New("connection refused"), receiptErrs: 1 << 30}
	k, _ := newTestKeyed(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := k.WaitForReceipt(ctx, common.HexToHash("0x01"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentSendsGetDistinctNonces(t *testing.T) {
	b := &fakeBackend{baseFee: big.NewInt(10)}
	k, _ := newTestKeyed(t, b)
	data, err := contracts.PackApprove(common.HexToAddress("0x9b9FEe4532170621b1016035617F320d7B2f9B8F"), big.NewInt(1))
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := k.SendContractCall(context.Background(), token, data)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, b.sent, n)
	for i, tx := range b.sent {
		require.Equal(t, uint64(7+i), tx.Nonce())
	}
}

func TestTerminalConfirmer(t *testing.T) {
	var out strings.Builder
	c := NewTerminalConfirmer(strings.NewReader("y\nno\n"), &out)

	require.NoError(t, c.ConfirmCall(context.Background(), CallRequest{ChainID: 1, Method: "approve"}))
	require.ErrorIs(t, c.ConfirmMessage(context.Background(), "msg"), ErrRejected)
	require.ErrorIs(t, c.ConfirmMessage(context.Background(), "msg"), ErrRejected, "eof rejects")
	require.Contains(t, out.String(), "Send approve to")
}
