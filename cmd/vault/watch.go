package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Alibek10599/token-vault/internal/config"
	"github.com/Alibek10599/token-vault/internal/observability"
	"github.com/Alibek10599/token-vault/internal/remote"
	"github.com/Alibek10599/token-vault/internal/solana"
)

// watchStatus is the /status payload of the watch command.
type watchStatus struct {
	mu          sync.Mutex
	Started     time.Time              `json:"started"`
	ClusterSlot int64                  `json:"cluster_slot,omitempty"`
	Vaults      map[string]vaultStatus `json:"vaults"`

	// slot reads the cluster slot when an RPC endpoint is configured.
	slot func(ctx context.Context) (int64, error)
}

type vaultStatus struct {
	Slot           int64     `json:"slot"`
	TotalDeposited uint64    `json:"total_deposited"`
	Closed         bool      `json:"closed"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *watchStatus) set(u remote.Update) {
	st := vaultStatus{Slot: u.Slot, Closed: u.Record == nil, UpdatedAt: time.Now().UTC()}
	if u.Record != nil {
		st.TotalDeposited = u.Record.TotalDeposited
	}
	s.mu.Lock()
	s.Vaults[u.Vault.String()] = st
	s.mu.Unlock()
}

func (s *watchStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var slot int64
	if s.slot != nil {
		var err error
		if slot, err = s.slot(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClusterSlot = slot
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s)
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch VAULT...",
		Short: "Follow vault state on a cluster and export it as metrics",
		Long: "Subscribe to each VAULT over --ws-endpoint, log every state change and serve\n" +
			"/health, /metrics and /status on --metrics-addr. Progress is checkpointed in\n" +
			"the configured backend so a restart skips notifications already applied.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if a.cfg.WSEndpoint == "" {
				return fmt.Errorf("--%s is required", config.KeyWSEndpoint)
			}

			vaults := make([]solana.Pubkey, len(args))
			for i, arg := range args {
				v, err := parsePubkeyArg("vault", arg)
				if err != nil {
					return err
				}
				vaults[i] = v
			}

			status := &watchStatus{Started: time.Now().UTC(), Vaults: make(map[string]vaultStatus)}
			if a.cfg.RPCEndpoint != "" {
				rpc := solana.NewHTTPClient(a.cfg.RPCEndpoint, solana.WithTimeout(a.cfg.SubmitTimeout))
				status.slot = remote.NewAccountReader(rpc, a.metrics).Slot
			}
			srv, err := a.startHTTPServer(status)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			checkpoints, err := a.checkpoints(ctx)
			if err != nil {
				return err
			}

			wsConfig := solana.DefaultWSConfig()
			wsConfig.OnError = func(err error) {
				a.logger.Warn("websocket error", zap.Error(err))
			}
			ws, err := solana.NewWSClient(ctx, a.cfg.WSEndpoint, &wsConfig)
			if err != nil {
				return fmt.Errorf("connect %s: %w", a.cfg.WSEndpoint, err)
			}
			defer ws.Close()

			watcher := remote.NewWatcher(ws, a.cfg.ProgramID,
				remote.WithCheckpoints(checkpoints),
				remote.WithWatchMetrics(a.metrics),
				remote.WithWatchLogger(a.logger),
			)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			var wg sync.WaitGroup
			errs := make(chan error, len(vaults))
			for _, v := range vaults {
				wg.Add(1)
				go func(v solana.Pubkey) {
					defer wg.Done()
					err := watcher.Watch(ctx, v, func(_ context.Context, u remote.Update) error {
						status.set(u)
						fields := []zap.Field{
							zap.String("vault", u.Vault.String()),
							zap.Int64("slot", u.Slot),
							zap.Stringer("delta", u.Delta),
						}
						if u.Record != nil {
							fields = append(fields, zap.Uint64("total_deposited", u.Record.TotalDeposited))
						} else {
							fields = append(fields, zap.Bool("closed", true))
						}
						a.logger.Info("vault updated", fields...)
						return nil
					})
					if err != nil {
						errs <- fmt.Errorf("watch %s: %w", v, err)
						cancel()
					}
				}(v)
			}
			wg.Wait()
			close(errs)

			var all []error
			for err := range errs {
				all = append(all, err)
			}
			return errors.Join(all...)
		},
	}
}

// startHTTPServer binds --metrics-addr and serves health, metrics and status
// until shut down. A bind failure is returned before anything is served.
func (a *app) startHTTPServer(status http.Handler) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.Handle("/status", status)

	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", a.cfg.MetricsAddr, err)
	}

	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.logger.Info("starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return srv, nil
}
