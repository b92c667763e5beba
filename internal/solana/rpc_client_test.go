package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer answers every request with respond(req). A nil result with a
// non-nil rpcErr produces an error response.
func rpcServer(t *testing.T, respond func(req rpcRequest) (result interface{}, rpcErr *RPCError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, rpcErr := respond(req)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	var method string
	srv := rpcServer(t, func(req rpcRequest) (interface{}, *RPCError) {
		method = req.Method
		return map[string]interface{}{
			"value": map[string]interface{}{
				"lamports":   uint64(1_000_000),
				"owner":      "11111111111111111111111111111111",
				"data":       []string{"SGVsbG8gV29ybGQ=", "base64"},
				"executable": false,
				"rentEpoch":  uint64(100),
			},
		}, nil
	})

	info, err := NewHTTPClient(srv.URL).GetAccountInfo(context.Background(), "key")
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "getAccountInfo", method)
	assert.Equal(t, uint64(1_000_000), info.Lamports)
	assert.Equal(t, "11111111111111111111111111111111", info.Owner)
	data, err := info.DecodeData()
	require.NoError(t, err)
	assert.Equal(t, "Hello World", string(data))
}

func TestHTTPClient_GetAccountInfo_NotFound(t *testing.T) {
	srv := rpcServer(t, func(rpcRequest) (interface{}, *RPCError) {
		return map[string]interface{}{"value": nil}, nil
	})

	info, err := NewHTTPClient(srv.URL).GetAccountInfo(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestHTTPClient_GetMultipleAccounts(t *testing.T) {
	srv := rpcServer(t, func(req rpcRequest) (interface{}, *RPCError) {
		assert.Equal(t, "getMultipleAccounts", req.Method)
		keys, _ := req.Params[0].([]interface{})
		assert.Len(t, keys, 2)
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 10},
			"value": []interface{}{
				map[string]interface{}{
					"lamports": uint64(5),
					"owner":    "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
					"data":     []string{"AQID", "base64"},
				},
				nil,
			},
		}, nil
	})

	infos, err := NewHTTPClient(srv.URL).GetMultipleAccounts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, infos, 2)

	require.NotNil(t, infos[0])
	data, err := infos[0].DecodeData()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.Nil(t, infos[1])

	infos, err = NewHTTPClient(srv.URL).GetMultipleAccounts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, infos)
}

func TestHTTPClient_GetMultipleAccounts_LengthMismatch(t *testing.T) {
	srv := rpcServer(t, func(rpcRequest) (interface{}, *RPCError) {
		return map[string]interface{}{"value": []interface{}{nil}}, nil
	})

	_, err := NewHTTPClient(srv.URL).GetMultipleAccounts(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestHTTPClient_Commitment(t *testing.T) {
	var got atomic.Value
	srv := rpcServer(t, func(req rpcRequest) (interface{}, *RPCError) {
		if cfg, ok := req.Params[1].(map[string]interface{}); ok {
			got.Store(cfg["commitment"])
		}
		return map[string]interface{}{"value": nil}, nil
	})

	_, err := NewHTTPClient(srv.URL, WithCommitment(CommitmentFinalized)).GetAccountInfo(context.Background(), "key")
	require.NoError(t, err)
	assert.Equal(t, CommitmentFinalized, got.Load())
}

func TestHTTPClient_Retry(t *testing.T) {
	tests := []struct {
		name         string
		failStatus   int
		failures     int32
		wantErr      bool
		wantAttempts int32
	}{
		{"rate limited then ok", http.StatusTooManyRequests, 2, false, 3},
		{"server error then ok", http.StatusBadGateway, 1, false, 2},
		{"retries exhausted", http.StatusServiceUnavailable, 10, true, 4},
		{"client error not retried", http.StatusForbidden, 10, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if attempts.Add(1) <= tt.failures {
					w.WriteHeader(tt.failStatus)
					return
				}
				var req rpcRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 999})
			}))
			defer srv.Close()

			client := NewHTTPClient(srv.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond), WithMaxDelay(2*time.Millisecond))
			slot, err := client.GetSlot(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, int64(999), slot)
			}
			assert.Equal(t, tt.wantAttempts, attempts.Load())
		})
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	var calls atomic.Int32
	srv := rpcServer(t, func(rpcRequest) (interface{}, *RPCError) {
		calls.Add(1)
		return nil, &RPCError{Code: -32600, Message: "Invalid Request"}
	})

	_, err := NewHTTPClient(srv.URL, WithRetryDelay(time.Millisecond)).GetSlot(context.Background())
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, -32600, rpcErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient(srv.URL).GetSlot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPClient_NextDelay(t *testing.T) {
	c := NewHTTPClient("http://localhost", WithMaxDelay(3*time.Second))

	assert.Equal(t, 2*time.Second, c.nextDelay(time.Second))
	assert.Equal(t, 3*time.Second, c.nextDelay(2*time.Second))
}
