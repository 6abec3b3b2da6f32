package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// TransactionClient is the read-only view of the chain the verifier needs.
// The RPC node is treated as eventually consistent and occasionally
// unavailable; callers decide how to retry.
type TransactionClient interface {
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}

type RPCClient struct {
	endpoint   string
	commitment string
	httpClient *http.Client

	// request id sequence, scoped to this client
	requestID atomic.Int64
}

func NewRPCClient(cfg *Config) *RPCClient {
	return &RPCClient{
		endpoint:   cfg.RPCEndpoint,
		commitment: cfg.Commitment,
		httpClient: &http.Client{Timeout: time.Duration(cfg.RPCTimeoutSeconds) * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body := new(bytes.Buffer)
	err := json.NewEncoder(body).Encode(&rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solana rpc returned status %d for %s", resp.StatusCode, method)
	}

	rpcResp := rpcResponse{}
	if err = json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("solana rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if result == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}

// GetSignaturesForAddress returns signatures of transactions that include
// the given address, newest first.
func (c *RPCClient) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	signatures := []SignatureInfo{}
	err := c.call(ctx, "getSignaturesForAddress", []interface{}{
		address,
		map[string]interface{}{"limit": limit, "commitment": c.commitment},
	}, &signatures)
	if err != nil {
		return nil, err
	}
	return signatures, nil
}

// GetTransaction returns nil without error when the node does not know the
// signature yet.
func (c *RPCClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	var tx *Transaction
	err := c.call(ctx, "getTransaction", []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     c.commitment,
			"maxSupportedTransactionVersion": 0,
		},
	}, &tx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (c *RPCClient) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	var result struct {
		Value []*SignatureStatus `json:"value"`
	}
	err := c.call(ctx, "getSignatureStatuses", []interface{}{
		signatures,
		map[string]interface{}{"searchTransactionHistory": true},
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}
