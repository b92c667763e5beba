package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVaultKey = "FNseaKLnyELqjiuZbxE6dTxQ34iLMkdF2CMiNfqsNARt"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type subscribeRequest struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// wsServer runs handle for every connection; conn is the connection number starting at 1.
func wsServer(t *testing.T, handle func(c *websocket.Conn, conn int)) string {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		handle(c, int(conns.Add(1)))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func drain(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func readSubscribe(t *testing.T, c *websocket.Conn) (subscribeRequest, bool) {
	_, msg, err := c.ReadMessage()
	if err != nil {
		return subscribeRequest{}, false
	}
	var req subscribeRequest
	assert.NoError(t, json.Unmarshal(msg, &req))
	return req, true
}

func notification(subID, slot int64, data string) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "accountNotification",
		"params": map[string]interface{}{
			"subscription": subID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": slot},
				"value": map[string]interface{}{
					"lamports": 2039280,
					"owner":    "8kqR5mYG7HxMSNxz2qT14vuBBNT7rNWyQrbqqYvkDFJm",
					"data":     []string{data, "base64"},
				},
			},
		},
	}
}

func receive(t *testing.T, ch <-chan AccountNotification) AccountNotification {
	t.Helper()
	select {
	case n, ok := <-ch:
		require.True(t, ok, "channel closed")
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
		return AccountNotification{}
	}
}

func TestWSClient_SubscribeAccount(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn, _ int) {
		req, ok := readSubscribe(t, c)
		if !ok {
			return
		}
		assert.Equal(t, "accountSubscribe", req.Method)
		require.Len(t, req.Params, 2)

		var key string
		_ = json.Unmarshal(req.Params[0], &key)
		assert.Equal(t, testVaultKey, key)
		var opts map[string]string
		_ = json.Unmarshal(req.Params[1], &opts)
		assert.Equal(t, "base64", opts["encoding"])
		assert.Equal(t, CommitmentFinalized, opts["commitment"])

		_ = c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 12345})
		_ = c.WriteJSON(notification(999, 50, "AA==")) // unknown subscription, ignored
		_ = c.WriteJSON(notification(12345, 100, "AQID"))
		drain(c)
	})

	cfg := DefaultWSConfig()
	cfg.Commitment = CommitmentFinalized
	client, err := NewWSClient(context.Background(), url, &cfg)
	require.NoError(t, err)
	defer client.Close()

	ch, err := client.SubscribeAccount(context.Background(), testVaultKey)
	require.NoError(t, err)

	n := receive(t, ch)
	assert.Equal(t, testVaultKey, n.Pubkey)
	assert.Equal(t, int64(100), n.Slot)
	require.NotNil(t, n.Account)
	data, err := n.Account.DecodeData()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestWSClient_ErrorResponse(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn, _ int) {
		req, ok := readSubscribe(t, c)
		if !ok {
			return
		}
		_ = c.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32602, "message": "Invalid param"},
		})
		drain(c)
	})

	var mu sync.Mutex
	var reported []error
	cfg := DefaultWSConfig()
	cfg.OnError = func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}

	client, err := NewWSClient(context.Background(), url, &cfg)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.SubscribeAccount(context.Background(), "bad")
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32602, rpcErr.Code)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, reported)
	assert.Contains(t, reported[0].Error(), "Invalid param")
}

func TestWSClient_SubscribeTimeout(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn, _ int) { drain(c) })

	cfg := DefaultWSConfig()
	cfg.SubscribeTimeout = 50 * time.Millisecond
	client, err := NewWSClient(context.Background(), url, &cfg)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.SubscribeAccount(context.Background(), testVaultKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no confirmation")

	client.mu.Lock()
	assert.Empty(t, client.pending)
	client.mu.Unlock()
}

func TestWSClient_ReconnectResubscribes(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn, conn int) {
		req, ok := readSubscribe(t, c)
		if !ok {
			return
		}
		subID := int64(conn * 100)
		_ = c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": subID})
		_ = c.WriteJSON(notification(subID, int64(conn), "AQID"))
		if conn == 1 {
			return // drop the first connection
		}
		drain(c)
	})

	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 20 * time.Millisecond
	client, err := NewWSClient(context.Background(), url, &cfg)
	require.NoError(t, err)
	defer client.Close()

	ch, err := client.SubscribeAccount(context.Background(), testVaultKey)
	require.NoError(t, err)

	assert.Equal(t, int64(1), receive(t, ch).Slot)
	second := receive(t, ch)
	assert.Equal(t, int64(2), second.Slot)
	assert.Equal(t, testVaultKey, second.Pubkey)
}

func TestWSClient_Close(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn, _ int) {
		req, ok := readSubscribe(t, c)
		if !ok {
			return
		}
		_ = c.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 7})
		drain(c)
	})

	client, err := NewWSClient(context.Background(), url, nil)
	require.NoError(t, err)

	ch, err := client.SubscribeAccount(context.Background(), testVaultKey)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.True(t, client.closed.Load())
	require.NoError(t, client.Close(), "double close")

	_, open := <-ch
	assert.False(t, open, "subscription channel closed")

	_, err = client.SubscribeAccount(context.Background(), testVaultKey)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestWSClient_Config(t *testing.T) {
	url := wsServer(t, func(c *websocket.Conn, _ int) { drain(c) })

	client, err := NewWSClient(context.Background(), url, &WSClientConfig{
		PingInterval: 5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 5*time.Second, client.config.PingInterval)
	assert.Equal(t, DefaultWSConfig().SubscribeTimeout, client.config.SubscribeTimeout)
	assert.Equal(t, DefaultWSConfig().ReconnectDelay, client.config.ReconnectDelay)
	assert.Equal(t, CommitmentConfirmed, client.config.Commitment)
}

func TestNewWSClient_DialError(t *testing.T) {
	_, err := NewWSClient(context.Background(), "ws://127.0.0.1:1", nil)
	assert.Error(t, err)
}
