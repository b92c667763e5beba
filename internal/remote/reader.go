// Package remote reads vault state from a Solana cluster: point reads over
// JSON-RPC and live vault updates over the WebSocket subscription API.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/Alibek10599/token-vault/internal/ledger"
	"github.com/Alibek10599/token-vault/internal/observability"
	"github.com/Alibek10599/token-vault/internal/solana"
)

// AccountReader adapts an RPC client to the ledger account model.
type AccountReader struct {
	rpc     solana.RPCClient
	metrics *observability.Metrics
}

// NewAccountReader creates a reader. metrics may be nil.
func NewAccountReader(rpc solana.RPCClient, metrics *observability.Metrics) *AccountReader {
	return &AccountReader{rpc: rpc, metrics: metrics}
}

// GetAccount returns the account at addr or ledger.ErrAccountNotFound.
func (r *AccountReader) GetAccount(ctx context.Context, addr solana.Pubkey) (*ledger.Account, error) {
	start := time.Now()
	info, err := r.rpc.GetAccountInfo(ctx, addr.String())
	r.observe("getAccountInfo", start)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", addr, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, addr)
	}
	return toAccount(addr, info)
}

// GetAccounts reads addrs in one round trip. Missing accounts are nil entries.
func (r *AccountReader) GetAccounts(ctx context.Context, addrs []solana.Pubkey) ([]*ledger.Account, error) {
	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = a.String()
	}

	start := time.Now()
	infos, err := r.rpc.GetMultipleAccounts(ctx, keys)
	r.observe("getMultipleAccounts", start)
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}

	out := make([]*ledger.Account, len(addrs))
	for i, info := range infos {
		if info == nil {
			continue
		}
		acc, err := toAccount(addrs[i], info)
		if err != nil {
			return nil, err
		}
		out[i] = acc
	}
	return out, nil
}

// Slot returns the current cluster slot.
func (r *AccountReader) Slot(ctx context.Context) (int64, error) {
	start := time.Now()
	slot, err := r.rpc.GetSlot(ctx)
	r.observe("getSlot", start)
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	return slot, nil
}

func (r *AccountReader) observe(method string, start time.Time) {
	if r.metrics != nil {
		r.metrics.RecordRPCLatency(method, time.Since(start).Seconds())
	}
}

func toAccount(addr solana.Pubkey, info *solana.AccountInfo) (*ledger.Account, error) {
	owner, err := solana.ParsePubkey(info.Owner)
	if err != nil {
		return nil, fmt.Errorf("account %s: owner: %w", addr, err)
	}
	data, err := info.DecodeData()
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", addr, err)
	}
	if data == nil {
		data = []byte{}
	}
	return &ledger.Account{Address: addr, Owner: owner, Data: data}, nil
}
