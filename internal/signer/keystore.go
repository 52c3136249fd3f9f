package signer

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/lack0fcode/destructorbr/internal/constants"
)

// ErrInvalidPasswordOrCorrupt is deliberately vague.
var ErrInvalidPasswordOrCorrupt = errors.New("invalid password or corrupted file")

// envelope is the on-disk format: Argon2id-derived key, XChaCha20-Poly1305 ciphertext.
type envelope struct {
	Version int `json:"version"`

	ArgonTime    uint32 `json:"argon_time"`
	ArgonMemory  uint32 `json:"argon_memory_kib"`
	ArgonThreads uint8  `json:"argon_threads"`
	ArgonKeyLen  uint32 `json:"argon_key_len"`

	SaltB64  string `json:"salt_b64"`
	NonceB64 string `json:"nonce_b64"`
	CTB64    string `json:"ct_b64"`
}

type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

var DefaultKDF = KDFParams{Time: 2, Memory: 64 * 1024, Threads: 1}

// Keystore keeps the signing wallet encrypted at Path.
type Keystore struct {
	Path string
	KDF  KDFParams
}

// NewKeystore resolves the wallet file. An explicit path wins over config dir candidates.
func NewKeystore(path string) (*Keystore, error) {
	if strings.TrimSpace(path) == "" {
		paths, err := PathCandidates(constants.AppName, constants.WalletFile)
		if err != nil {
			return nil, err
		}
		path = paths[0]
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	return &Keystore{Path: path, KDF: DefaultKDF}, nil
}

func (k *Keystore) Exists() bool {
	_, err := os.Stat(k.Path)
	return err == nil
}

// LoadOrCreate decrypts the wallet, creating and persisting a new one when the file is missing.
func (k *Keystore) LoadOrCreate(password []byte) (*Wallet, error) {
	w, err := k.Load(password)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(err, "load wallet %s", k.Path)
	}

	w, err = NewRandomWallet()
	if err != nil {
		return nil, err
	}
	if err := k.Save(w, password); err != nil {
		return nil, err
	}
	log.Info("created signing wallet", "address", w.AddressHex, "path", k.Path)
	return w, nil
}

func (k *Keystore) Load(password []byte) (*Wallet, error) {
	raw, err := os.ReadFile(k.Path)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal keystore: %w", err)
	}
	if env.Version != constants.SchemaV1 {
		return nil, fmt.Errorf("unsupported keystore version: %d", env.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(env.SaltB64)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.NonceB64)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(env.CTB64)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	key := argon2.IDKey(password, salt, env.ArgonTime, env.ArgonMemory, env.ArgonThreads, env.ArgonKeyLen)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("aead: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrInvalidPasswordOrCorrupt
	}

	plain, err := aead.Open(nil, nonce, ct, []byte(constants.AADConstant))
	if err != nil {
		return nil, ErrInvalidPasswordOrCorrupt
	}

	var w Wallet
	if err := json.Unmarshal(plain, &w); err != nil {
		return nil, fmt.Errorf("unmarshal wallet: %w", err)
	}
	return &w, nil
}

func (k *Keystore) Save(w *Wallet, password []byte) error {
	if err := os.MkdirAll(filepath.Dir(k.Path), constants.DirectoryPerm); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(k.Path), err)
	}

	plain, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("rand salt: %w", err)
	}
	const keyLen = 32
	key := argon2.IDKey(password, salt, k.KDF.Time, k.KDF.Memory, k.KDF.Threads, keyLen)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("rand nonce: %w", err)
	}

	env := envelope{
		Version:      constants.SchemaV1,
		ArgonTime:    k.KDF.Time,
		ArgonMemory:  k.KDF.Memory,
		ArgonThreads: k.KDF.Threads,
		ArgonKeyLen:  keyLen,
		SaltB64:      base64.StdEncoding.EncodeToString(salt),
		NonceB64:     base64.StdEncoding.EncodeToString(nonce),
		CTB64:        base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plain, []byte(constants.AADConstant))),
	}
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keystore: %w", err)
	}
	return atomicWriteFile(k.Path, b, constants.FilePerm)
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	_ = os.Remove(tmp)

	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// PathCandidates returns <home>/.config/<app>/<env?>/<filename> style paths in priority order.
// DESTRUCTOR_ENV=local|develop adds a sub folder.
func PathCandidates(app, filename string) ([]string, error) {
	if app == "" || filename == "" {
		return nil, errors.New("app and filename must not be empty")
	}
	envFolder, err := EnvFolder()
	if err != nil {
		return nil, err
	}

	var paths []string
	seen := map[string]bool{}
	add := func(dir string) {
		if envFolder != "" {
			dir = filepath.Join(dir, envFolder)
		}
		p := filepath.Join(dir, filename)
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	if realHome := os.Getenv("SNAP_REAL_HOME"); realHome != "" {
		add(filepath.Join(realHome, ".config", app))
	}
	if home := os.Getenv("HOME"); home != "" {
		add(filepath.Join(home, ".config", app))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		add(filepath.Join(dir, app))
	} else if len(paths) == 0 {
		return nil, fmt.Errorf("UserConfigDir: %w", err)
	}
	return paths, nil
}

func EnvFolder() (string, error) {
	raw := strings.TrimSpace(os.Getenv(constants.EnvPrefix + "_ENV"))
	switch strings.ToLower(raw) {
	case "", "prod", "production":
		return "", nil
	case "local":
		return "local", nil
	case "dev", "develop", "development":
		return "develop", nil
	default:
		return "", fmt.Errorf("invalid %s_ENV %q (allowed: local, develop, empty)", constants.EnvPrefix, raw)
	}
}
