package main

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Alibek10599/token-vault/internal/client"
	"github.com/Alibek10599/token-vault/internal/config"
	"github.com/Alibek10599/token-vault/internal/identity"
	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/observability"
	"github.com/Alibek10599/token-vault/internal/remote"
	"github.com/Alibek10599/token-vault/internal/solana"
	"github.com/Alibek10599/token-vault/internal/storage"
	chstore "github.com/Alibek10599/token-vault/internal/storage/clickhouse"
	"github.com/Alibek10599/token-vault/internal/storage/memory"
	pgstore "github.com/Alibek10599/token-vault/internal/storage/postgres"
	redisstore "github.com/Alibek10599/token-vault/internal/storage/redis"
	"github.com/Alibek10599/token-vault/internal/token"
	"github.com/Alibek10599/token-vault/internal/vault"
)

// app holds the resolved configuration and lazily opened backends of one invocation.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	pg      *pgstore.Pool
	rdb     *goredis.Client
	ch      *chstore.Conn
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) postgres(ctx context.Context) (*pgstore.Pool, error) {
	if a.pg != nil {
		return a.pg, nil
	}
	if a.cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("--%s is required", config.KeyPostgresDSN)
	}
	pool, err := pgstore.NewPool(ctx, a.cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	a.pg = pool
	a.closers = append(a.closers, pool.Close)
	return pool, nil
}

func (a *app) redis(ctx context.Context) (*goredis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rdb, err := redisstore.NewClient(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return rdb, nil
}

func (a *app) clickhouse(ctx context.Context) (*chstore.Conn, error) {
	if a.ch != nil {
		return a.ch, nil
	}
	if a.cfg.ClickhouseDSN == "" {
		return nil, fmt.Errorf("--%s is required", config.KeyClickhouseDSN)
	}
	conn, err := chstore.NewConn(ctx, a.cfg.ClickhouseDSN)
	if err != nil {
		return nil, err
	}
	a.ch = conn
	a.closers = append(a.closers, func() { _ = conn.Close() })
	return conn, nil
}

func (a *app) accountStore(ctx context.Context) (ledger.AccountStore, error) {
	switch a.cfg.Backend {
	case config.BackendPostgres:
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return pgstore.NewAccountStore(pool), nil
	case config.BackendRedis:
		rdb, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		return redisstore.NewAccountStore(rdb), nil
	default:
		return memory.NewAccountStore(), nil
	}
}

// journal selects ClickHouse when configured, otherwise the store of the ledger
// backend so a persistent ledger always gets a persistent journal.
func (a *app) journal(ctx context.Context) (storage.EventStore, error) {
	if a.cfg.ClickhouseDSN != "" {
		conn, err := a.clickhouse(ctx)
		if err != nil {
			return nil, err
		}
		return storage.Instrument(chstore.NewEventStore(conn), "clickhouse", a.metrics), nil
	}
	if a.cfg.Backend == config.BackendPostgres {
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return storage.Instrument(pgstore.NewEventStore(pool), "postgres", a.metrics), nil
	}
	if a.cfg.Backend == config.BackendRedis {
		rdb, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		return storage.Instrument(redisstore.NewEventStore(rdb), "redis", a.metrics), nil
	}
	return storage.Instrument(memory.NewEventStore(), "memory", a.metrics), nil
}

func (a *app) checkpoints(ctx context.Context) (storage.CheckpointStore, error) {
	switch a.cfg.Backend {
	case config.BackendPostgres:
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return pgstore.NewCheckpointStore(pool), nil
	case config.BackendRedis:
		rdb, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		return redisstore.NewCheckpointStore(rdb), nil
	default:
		return memory.NewCheckpointStore(), nil
	}
}

func (a *app) ledger(ctx context.Context, opts ...ledger.Option) (*ledger.Ledger, error) {
	store, err := a.accountStore(ctx)
	if err != nil {
		return nil, err
	}
	base := []ledger.Option{
		ledger.WithProgram(token.NewProgram()),
		ledger.WithProgram(vault.NewProgram(a.cfg.ProgramID, vault.WithWithdrawPolicy(a.cfg.WithdrawPolicy))),
		ledger.WithLogger(a.logger),
	}
	return ledger.New(store, append(base, opts...)...), nil
}

func (a *app) clientOptions(journal storage.EventStore) []client.Option {
	opts := []client.Option{
		client.WithProgramID(a.cfg.ProgramID),
		client.WithLogger(a.logger),
		client.WithMetrics(a.metrics),
		client.WithSubmitTimeout(a.cfg.SubmitTimeout),
	}
	if journal != nil {
		opts = append(opts, client.WithJournal(journal))
	}
	return opts
}

// client builds a read-write client over the configured ledger backend.
func (a *app) client(ctx context.Context, opts ...ledger.Option) (*client.Client, error) {
	l, err := a.ledger(ctx, opts...)
	if err != nil {
		return nil, err
	}
	journal, err := a.journal(ctx)
	if err != nil {
		return nil, err
	}
	return client.New(l, a.clientOptions(journal)...), nil
}

// reader builds a read-only client. With fromCluster it reads over JSON-RPC.
func (a *app) reader(ctx context.Context, fromCluster bool) (*client.Client, error) {
	if !fromCluster {
		return a.client(ctx)
	}
	if a.cfg.RPCEndpoint == "" {
		return nil, fmt.Errorf("--%s is required to read from a cluster", config.KeyRPCEndpoint)
	}
	rpc := solana.NewHTTPClient(a.cfg.RPCEndpoint, solana.WithTimeout(a.cfg.SubmitTimeout))
	return client.NewReadOnly(remote.NewAccountReader(rpc, a.metrics), a.clientOptions(nil)...), nil
}

func (a *app) signer() (*identity.Keypair, error) {
	kp, err := identity.LoadKeypair(a.cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	return kp, nil
}

// uiAmount converts a decimal token amount to base units of mint.
func (a *app) uiAmount(ctx context.Context, c *client.Client, mint solana.Pubkey, s string) (uint64, error) {
	m, err := c.GetMint(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("load mint %s: %w", mint, err)
	}
	return token.ParseUIAmount(s, m.Decimals)
}

// shiftableClock is a wall clock that can be moved forward.
type shiftableClock struct {
	offset time.Duration
}

func (c *shiftableClock) now() time.Time {
	return time.Now().Add(c.offset)
}

func (c *shiftableClock) advance(d time.Duration) {
	c.offset += d
}

func parsePubkeyArg(name, s string) (solana.Pubkey, error) {
	pk, err := solana.ParsePubkey(s)
	if err != nil {
		return solana.Pubkey{}, fmt.Errorf("%s: %w", name, err)
	}
	return pk, nil
}
