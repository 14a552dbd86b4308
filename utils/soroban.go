package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

// ScAddressFromString builds an ScAddress from a G... account or C...
// contract strkey.
func ScAddressFromString(addressStr string) (xdr.ScAddress, error) {
	var scAddr xdr.ScAddress

	if len(addressStr) == 0 {
		return scAddr, fmt.Errorf("empty address string")
	}

	if addressStr[0] == 'G' {
		rawBytes, err := strkey.Decode(strkey.VersionByteAccountID, addressStr)
		if err != nil {
			return scAddr, fmt.Errorf("failed to decode account address: %w", err)
		}

		var accountID xdr.AccountId
		var uint256 xdr.Uint256
		copy(uint256[:], rawBytes)
		accountID.Type = xdr.PublicKeyTypePublicKeyTypeEd25519
		accountID.Ed25519 = &uint256

		scAddr.Type = xdr.ScAddressTypeScAddressTypeAccount
		scAddr.AccountId = &accountID

	} else if addressStr[0] == 'C' {
		rawBytes, err := strkey.Decode(strkey.VersionByteContract, addressStr)
		if err != nil {
			return scAddr, fmt.Errorf("failed to decode contract address: %w", err)
		}

		var contractId xdr.ContractId
		copy(contractId[:], rawBytes)

		scAddr.Type = xdr.ScAddressTypeScAddressTypeContract
		scAddr.ContractId = &contractId
	} else {
		return scAddr, fmt.Errorf("invalid address format: must start with G or C")
	}

	return scAddr, nil
}

// Int64ToInt128Parts sign-extends a 64-bit scaled price into the i128 form
// the contract expects.
func Int64ToInt128Parts(v int64) xdr.Int128Parts {
	hi := int64(0)
	if v < 0 {
		hi = -1
	}
	return xdr.Int128Parts{
		Hi: xdr.Int64(hi),
		Lo: xdr.Uint64(uint64(v)),
	}
}

// BuildSetAssetPriceOp encodes the set_asset_price(admin, asset, price,
// timestamp) invocation against the oracle contract.
func BuildSetAssetPriceOp(contractID, adminAddress, asset string, scaledPrice, timestamp int64) (*txnbuild.InvokeHostFunction, error) {
	contractAddr, err := ScAddressFromString(contractID)
	if err != nil {
		return nil, fmt.Errorf("invalid contract address: %w", err)
	}
	adminAddr, err := ScAddressFromString(adminAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid admin address: %w", err)
	}

	assetSym := xdr.ScSymbol(asset)
	priceParts := Int64ToInt128Parts(scaledPrice)
	ts := xdr.Uint64(timestamp)

	invokeContractArgs := xdr.InvokeContractArgs{
		ContractAddress: contractAddr,
		FunctionName:    xdr.ScSymbol("set_asset_price"),
		Args: xdr.ScVec{
			{Type: xdr.ScValTypeScvAddress, Address: &adminAddr},
			{Type: xdr.ScValTypeScvSymbol, Sym: &assetSym},
			{Type: xdr.ScValTypeScvI128, I128: &priceParts},
			{Type: xdr.ScValTypeScvU64, U64: &ts},
		},
	}

	return &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type:           xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &invokeContractArgs,
		},
		SourceAccount: adminAddress,
	}, nil
}

// RPCClient is a minimal JSON-RPC 2.0 client against a Soroban RPC node.
type RPCClient struct {
	URL    string
	Client *http.Client
}

// NewRPCClient builds a client with the given request timeout.
func NewRPCClient(url string, timeout time.Duration) *RPCClient {
	return &RPCClient{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// SimulationResult is the subset of simulateTransaction we act on.
type SimulationResult struct {
	Error           string `json:"error,omitempty"`
	TransactionData string `json:"transactionData"`
	MinResourceFee  string `json:"minResourceFee"`
}

// SendResult is the subset of sendTransaction we act on.
type SendResult struct {
	Status         string `json:"status"`
	Hash           string `json:"hash"`
	ErrorResultXdr string `json:"errorResultXdr,omitempty"`
}

// TransactionResult is the subset of getTransaction we act on.
type TransactionResult struct {
	Status      string `json:"status"`
	Ledger      uint32 `json:"ledger,omitempty"`
	ResultXdr   string `json:"resultXdr,omitempty"`
	EnvelopeXdr string `json:"envelopeXdr,omitempty"`
}

// Transaction statuses reported by getTransaction.
const (
	TxStatusNotFound = "NOT_FOUND"
	TxStatusSuccess  = "SUCCESS"
	TxStatusFailed   = "FAILED"
)

func (c *RPCClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	rpcRequest := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}

	requestBody, err := json.Marshal(rpcRequest)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.URL, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResponse struct {
		Result json.RawMessage `json:"result,omitempty"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	if err := json.Unmarshal(body, &rpcResponse); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if rpcResponse.Error != nil {
		return fmt.Errorf("RPC error: %s", rpcResponse.Error.Message)
	}
	if rpcResponse.Result == nil {
		return fmt.Errorf("empty RPC result for %s", method)
	}
	if err := json.Unmarshal(rpcResponse.Result, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s result: %w", method, err)
	}
	return nil
}

// SimulateTransaction runs the simulateTransaction preflight for a base64
// transaction envelope.
func (c *RPCClient) SimulateTransaction(ctx context.Context, envelopeXDR string) (*SimulationResult, error) {
	var result SimulationResult
	params := map[string]interface{}{"transaction": envelopeXDR}
	if err := c.call(ctx, "simulateTransaction", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendTransaction submits a signed base64 envelope.
func (c *RPCClient) SendTransaction(ctx context.Context, envelopeXDR string) (*SendResult, error) {
	var result SendResult
	params := map[string]interface{}{"transaction": envelopeXDR}
	if err := c.call(ctx, "sendTransaction", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTransaction polls the status of a submitted transaction by hash.
func (c *RPCClient) GetTransaction(ctx context.Context, hash string) (*TransactionResult, error) {
	var result TransactionResult
	params := map[string]interface{}{"hash": hash}
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
