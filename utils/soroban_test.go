package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testContract = "CAFJZQWSED6YAWZU3GWRTOCNPPCGBN32L7QV43XX5LZLFTK6JLN34DLN"
	testAccount  = "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF"
)

func TestScAddressFromString(t *testing.T) {
	addr, err := ScAddressFromString(testContract)
	require.NoError(t, err)
	assert.Equal(t, xdr.ScAddressTypeScAddressTypeContract, addr.Type)

	addr, err = ScAddressFromString(testAccount)
	require.NoError(t, err)
	assert.Equal(t, xdr.ScAddressTypeScAddressTypeAccount, addr.Type)

	_, err = ScAddressFromString("")
	assert.Error(t, err)
	_, err = ScAddressFromString("XINVALID")
	assert.Error(t, err)
	_, err = ScAddressFromString("Cnotakey")
	assert.Error(t, err)
}

func TestInt64ToInt128Parts(t *testing.T) {
	parts := Int64ToInt128Parts(150_000)
	assert.Equal(t, xdr.Int64(0), parts.Hi)
	assert.Equal(t, xdr.Uint64(150_000), parts.Lo)

	parts = Int64ToInt128Parts(0)
	assert.Equal(t, xdr.Int64(0), parts.Hi)
	assert.Equal(t, xdr.Uint64(0), parts.Lo)

	parts = Int64ToInt128Parts(-1)
	assert.Equal(t, xdr.Int64(-1), parts.Hi)
	assert.Equal(t, xdr.Uint64(0xFFFFFFFFFFFFFFFF), parts.Lo)
}

func TestBuildSetAssetPriceOp(t *testing.T) {
	op, err := BuildSetAssetPriceOp(testContract, testAccount, "XLM", 150_000, 1_700_000_000)
	require.NoError(t, err)

	require.Equal(t, xdr.HostFunctionTypeHostFunctionTypeInvokeContract, op.HostFunction.Type)
	args := op.HostFunction.MustInvokeContract()
	assert.Equal(t, xdr.ScSymbol("set_asset_price"), args.FunctionName)
	require.Len(t, args.Args, 4)

	assert.Equal(t, xdr.ScValTypeScvAddress, args.Args[0].Type)
	assert.Equal(t, xdr.ScSymbol("XLM"), *args.Args[1].Sym)
	assert.Equal(t, xdr.Uint64(150_000), args.Args[2].I128.Lo)
	assert.Equal(t, xdr.Uint64(1_700_000_000), *args.Args[3].U64)
}

func TestBuildSetAssetPriceOpRejectsBadAddresses(t *testing.T) {
	_, err := BuildSetAssetPriceOp("notacontract", testAccount, "XLM", 1, 1)
	assert.Error(t, err)
	_, err = BuildSetAssetPriceOp(testContract, "notanaccount", "XLM", 1, 1)
	assert.Error(t, err)
}

func TestRPCClientCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string          `json:"jsonrpc"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)
		assert.Equal(t, "getTransaction", req.Method)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  map[string]interface{}{"status": "SUCCESS", "ledger": 7},
		})
	}))
	defer server.Close()

	client := NewRPCClient(server.URL, 5*time.Second)
	result, err := client.GetTransaction(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, TxStatusSuccess, result.Status)
	assert.Equal(t, uint32(7), result.Ledger)
}

func TestRPCClientErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]interface{}{"code": -32600, "message": "bad envelope"},
		})
	}))
	defer server.Close()

	client := NewRPCClient(server.URL, 5*time.Second)
	_, err := client.SimulateTransaction(context.Background(), "AAAA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad envelope")
}
