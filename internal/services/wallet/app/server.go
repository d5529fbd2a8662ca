// Package app wires the wallet authorization service together and hosts its
// HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/walletgate/walletgate/internal/platform/timeouts"
	"github.com/walletgate/walletgate/internal/services/wallet/api/httpapi"
	"github.com/walletgate/walletgate/internal/services/wallet/authorize"
	"github.com/walletgate/walletgate/internal/services/wallet/backend"
	"github.com/walletgate/walletgate/internal/services/wallet/ceremony"
	"github.com/walletgate/walletgate/internal/services/wallet/challenge"
	"github.com/walletgate/walletgate/internal/services/wallet/envelope"
	"github.com/walletgate/walletgate/internal/services/wallet/grace"
	"github.com/walletgate/walletgate/internal/services/wallet/oidc"
	"github.com/walletgate/walletgate/internal/services/wallet/origin"
	"github.com/walletgate/walletgate/internal/services/wallet/passkey"
	walletsqlite "github.com/walletgate/walletgate/internal/services/wallet/storage/sqlite"
)

// Server hosts the wallet authorization service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *walletsqlite.Store
	challenges *challenge.Store
	grace      *grace.Tracker
}

// New creates a configured wallet server listening on the provided address.
func New(httpAddr string) (*Server, error) {
	listener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", httpAddr, err)
	}
	store, err := openWalletStore()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	orchestrator, challenges, graceTracker, err := buildOrchestrator(store)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}

	handler := httpapi.NewServer(orchestrator, store, store, strings.TrimSpace(os.Getenv("WALLETGATE_ADMIN_TOKEN"))).Handler()

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: timeouts.ReadHeader,
		},
		store:      store,
		challenges: challenges,
		grace:      graceTracker,
	}, nil
}

func buildOrchestrator(store *walletsqlite.Store) (*authorize.Orchestrator, *challenge.Store, *grace.Tracker, error) {
	passkeyConfig := passkey.LoadConfigFromEnv()
	verifier, err := ceremony.NewWebAuthnVerifier(passkeyConfig)
	if err != nil {
		return nil, nil, nil, err
	}

	keyring, err := envelope.KeyringFromEnv()
	if err != nil {
		return nil, nil, nil, err
	}
	envelopes, err := envelope.NewVerifier(keyring)
	if err != nil {
		return nil, nil, nil, err
	}

	originConfig, err := origin.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, nil, err
	}

	contextTokenConfig, err := authorize.LoadContextTokenConfigFromEnv()
	if err != nil {
		return nil, nil, nil, err
	}

	challenges := challenge.NewStore(passkeyConfig.ChallengeTTL)
	graceTracker := grace.NewTracker(grace.DefaultWindow)

	// The card backend is optional; without it the grace path still answers
	// checks but cannot issue tokens.
	var tokens authorize.TokenIssuer
	backendConfig, err := backend.LoadConfigFromEnv()
	if err == nil && strings.TrimSpace(backendConfig.BaseURL) != "" {
		client, err := backend.NewTokenClient(backendConfig)
		if err != nil {
			return nil, nil, nil, err
		}
		tokens = client
	}

	orchestrator, err := authorize.NewOrchestrator(authorize.Deps{
		Users:        store,
		Cards:        store,
		Credentials:  store,
		Invites:      store,
		Challenges:   challenges,
		GracePeriods: graceTracker,
		Origins:      origin.NewGuard(originConfig),
		Envelopes:    envelopes,
		Ceremonies:   verifier,
		Interactions: oidc.NewStoreService(store),
		Tokens:       tokens,
		ContextToken: contextTokenConfig,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return orchestrator, challenges, graceTracker, nil
}

// Addr returns the HTTP listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a wallet server until the context ends.
func Run(ctx context.Context, httpAddr string) error {
	server, err := New(httpAddr)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the wallet server and blocks until it stops or the context
// ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	s.challenges.StartSweep(serverCtx)
	s.grace.StartSweep(serverCtx)
	s.startInteractionCleanup(serverCtx, 5*time.Minute)

	log.Printf("wallet server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

// startInteractionCleanup periodically drops expired pending interactions so
// abandoned authorization attempts do not accumulate.
func (s *Server) startInteractionCleanup(ctx context.Context, interval time.Duration) {
	if s == nil || s.store == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.store.DeleteExpiredPendingInteractions(ctx, time.Now().UTC()); err != nil {
					log.Printf("cleanup pending interactions: %v", err)
				}
			}
		}
	}()
}

func openWalletStore() (*walletsqlite.Store, error) {
	path := strings.TrimSpace(os.Getenv("WALLETGATE_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "wallet.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := walletsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wallet sqlite store: %w", err)
	}
	return store, nil
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close wallet store: %v", err)
	}
}
