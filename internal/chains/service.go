package chains

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/quantumauth-io/quantum-go-utils/qa_evm"
)

type ServiceConfig struct {
	Registry         *Registry
	PreferredRPCName string
}

// Dialer opens a client for an RPC url. Tests replace it.
type Dialer func(ctx context.Context, url string) (qa_evm.BlockchainClient, error)

func dialEthClient(ctx context.Context, url string) (qa_evm.BlockchainClient, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Service hands out cached per-chain RPC clients.
type Service struct {
	cfg  ServiceConfig
	dial Dialer
	mu   sync.Mutex
	byID map[uint64]qa_evm.BlockchainClient
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Registry == nil {
		return nil, errors.New("chain registry is nil")
	}
	return &Service{
		cfg:  cfg,
		dial: dialEthClient,
		byID: make(map[uint64]qa_evm.BlockchainClient),
	}, nil
}

// WithDialer swaps the dial function; meant for tests.
func (s *Service) WithDialer(d Dialer) *Service {
	s.dial = d
	return s
}

func (s *Service) Registry() *Registry { return s.cfg.Registry }

// Client returns (and caches) the RPC client for chainID.
func (s *Service) Client(ctx context.Context, chainID uint64) (qa_evm.BlockchainClient, error) {
	s.mu.Lock()
	if existing := s.byID[chainID]; existing != nil {
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	url, err := s.resolveRPC(chainID)
	if err != nil {
		return nil, err
	}

	// dial outside the lock
	dialed, err := s.dial(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial chain %d", chainID)
	}

	s.mu.Lock()
	if existing := s.byID[chainID]; existing != nil {
		s.mu.Unlock()
		safeClose(dialed)
		return existing, nil
	}
	s.byID[chainID] = dialed
	s.mu.Unlock()

	log.Info("chain client ready", "chainId", chainID)
	return dialed, nil
}

// Close closes all cached clients (call on shutdown).
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.byID {
		safeClose(c)
		delete(s.byID, id)
	}
	return nil
}

func (s *Service) resolveRPC(chainID uint64) (string, error) {
	network, err := s.cfg.Registry.Network(chainID)
	if err != nil {
		return "", err
	}

	var selected *RPC
	if preferred := strings.TrimSpace(s.cfg.PreferredRPCName); preferred != "" {
		for i := range network.RPCs {
			if strings.EqualFold(strings.TrimSpace(network.RPCs[i].Name), preferred) {
				selected = &network.RPCs[i]
				break
			}
		}
	}
	if selected == nil {
		if len(network.RPCs) == 0 {
			return "", errors.Newf("network %q has no RPCs configured", network.Name)
		}
		selected = &network.RPCs[0]
	}
	if strings.TrimSpace(selected.URL) == "" {
		return "", errors.Newf("network %q rpc %q url is empty", network.Name, selected.Name)
	}
	return selected.URL, nil
}

func safeClose(c qa_evm.BlockchainClient) {
	if c == nil {
		return
	}
	if closer, ok := c.(interface{ Close() }); ok {
		closer.Close()
	}
}
