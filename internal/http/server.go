package http

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/lack0fcode/destructorbr/internal/assets"
	"github.com/lack0fcode/destructorbr/internal/burn"
	"github.com/lack0fcode/destructorbr/internal/chains"
	"github.com/lack0fcode/destructorbr/internal/selection"
	"github.com/lack0fcode/destructorbr/internal/session"
	"github.com/lack0fcode/destructorbr/internal/signer"
)

// AssetSource is the aggregator as seen by the handlers.
type AssetSource interface {
	FetchAssets(ctx context.Context, owner common.Address, chainID uint64) (assets.Result, error)
}

// LocalSigner is the daemon's own wallet. Optional: without it the server only
// tracks sessions and lists assets.
type LocalSigner interface {
	Address() common.Address
	SignMessage(ctx context.Context, message string) ([]byte, error)
	ForChain(ctx context.Context, chainID uint64) (signer.Signer, error)
}

type Options struct {
	Guard     *session.Guard
	Selection *selection.Manager
	Assets    AssetSource
	Burner    *burn.Orchestrator
	Registry  *chains.Registry
	Signer    LocalSigner

	AllowedOrigins []string
	IncludeNFTs    bool
}

type Server struct {
	ctx context.Context

	guard     *session.Guard
	selection *selection.Manager
	assets    AssetSource
	burner    *burn.Orchestrator
	registry  *chains.Registry
	signer    LocalSigner

	includeNFTs bool
	origins     map[string]struct{}
	upgrader    websocket.Upgrader
	engine      *gin.Engine
}

// NewServer wires the handlers. ctx bounds burn jobs started through the API;
// they outlive the request that created them.
func NewServer(ctx context.Context, opts Options) (*Server, error) {
	switch {
	case opts.Guard == nil:
		return nil, errors.New("http: session guard is required")
	case opts.Assets == nil:
		return nil, errors.New("http: asset source is required")
	case opts.Burner == nil:
		return nil, errors.New("http: burn orchestrator is required")
	case opts.Registry == nil:
		return nil, errors.New("http: chain registry is required")
	}
	if opts.Selection == nil {
		opts.Selection = selection.New()
	}

	s := &Server{
		ctx:         ctx,
		guard:       opts.Guard,
		selection:   opts.Selection,
		assets:      opts.Assets,
		burner:      opts.Burner,
		registry:    opts.Registry,
		signer:      opts.Signer,
		includeNFTs: opts.IncludeNFTs,
		origins:     make(map[string]struct{}, len(opts.AllowedOrigins)),
	}
	for _, o := range opts.AllowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			s.origins[o] = struct{}{}
		}
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.engine = NewRouter(s, opts.AllowedOrigins)
	return s, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// checkOrigin admits non-browser clients and allow-listed browser origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	raw := r.Header.Get("Origin")
	if raw == "" {
		return true
	}
	_, ok := s.origins[normalizeOrigin(raw)]
	return ok
}
