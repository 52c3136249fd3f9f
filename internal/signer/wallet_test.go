package signer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestWalletSignTextRecovers(t *testing.T) {
	w, err := NewRandomWallet()
	require.NoError(t, err)

	sig, err := w.SignText(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])

	sig[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash([]byte("hello")), sig)
	require.NoError(t, err)
	require.Equal(t, w.Address(), crypto.PubkeyToAddress(*pub))
}

func TestWalletFromHex(t *testing.T) {
	// well-known hardhat account #0
	w, err := WalletFromHex("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	require.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", w.AddressHex)

	_, err = WalletFromHex("nothex")
	require.Error(t, err)

	_, err = w.SignHash(context.Background(), []byte{1})
	require.Error(t, err)
}

func fastKeystore(t *testing.T) *Keystore {
	t.Helper()
	ks, err := NewKeystore(filepath.Join(t.TempDir(), "nested", "wallet.json"))
	require.NoError(t, err)
	ks.KDF = KDFParams{Time: 1, Memory: 1024, Threads: 1}
	return ks
}

func TestKeystoreLoadOrCreateRoundTrip(t *testing.T) {
	ks := fastKeystore(t)
	require.False(t, ks.Exists())

	created, err := ks.LoadOrCreate([]byte("pw"))
	require.NoError(t, err)
	require.True(t, ks.Exists())

	loaded, err := ks.LoadOrCreate([]byte("pw"))
	require.NoError(t, err)
	require.Equal(t, created.AddressHex, loaded.AddressHex)
	require.Equal(t, created.PrivKeyHex, loaded.PrivKeyHex)
}

func TestKeystoreWrongPassword(t *testing.T) {
	ks := fastKeystore(t)
	_, err := ks.LoadOrCreate([]byte("right"))
	require.NoError(t, err)

	_, err = ks.Load([]byte("wrong"))
	require.ErrorIs(t, err, ErrInvalidPasswordOrCorrupt)

	_, err = ks.LoadOrCreate([]byte("wrong"))
	require.Error(t, err, "a bad password must not silently create a new wallet")
}

func TestPathCandidatesHonoursEnv(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("SNAP_REAL_HOME", "")
	t.Setenv("DESTRUCTOR_ENV", "local")

	paths, err := PathCandidates("destructor", "wallet.json")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/home/tester", ".config", "destructor", "local", "wallet.json"), paths[0])

	t.Setenv("DESTRUCTOR_ENV", "staging")
	_, err = PathCandidates("destructor", "wallet.json")
	require.Error(t, err)
}
