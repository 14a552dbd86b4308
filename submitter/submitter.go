// Package submitter commits aggregated prices to the oracle contract, one
// set_asset_price invocation per price, with bounded retries and
// confirmation by polling.
package submitter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	rpcclient "github.com/stellar/go/clients/rpcclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	slog "github.com/stellar/go/support/log"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/stellarlend/oracle-go/config"
	"github.com/stellarlend/oracle-go/metrics"
	"github.com/stellarlend/oracle-go/models"
	"github.com/stellarlend/oracle-go/utils"
)

// Submitter owns the admin keypair and the RPC/Horizon endpoints. It is
// driven once per cycle with the aggregated batch.
type Submitter struct {
	kp         *keypair.Full
	horizon    *horizonclient.Client
	rpc        *utils.RPCClient
	rpcURL     string
	contractID string
	passphrase string

	maxRetries    int
	retryDelay    time.Duration
	pacing        time.Duration
	txTimeoutSecs int64
	pollInterval  time.Duration

	log   *slog.Entry
	sleep func(time.Duration)
}

// New builds a submitter from service configuration. The admin secret must
// already have passed config validation.
func New(cfg *config.Config, logger *slog.Entry) (*Submitter, error) {
	kp, err := keypair.ParseFull(cfg.AdminSecretKey)
	if err != nil {
		return nil, fmt.Errorf("parse admin secret: %w", err)
	}
	if logger == nil {
		logger = slog.DefaultLogger
	}

	passphrase := network.TestNetworkPassphrase
	if cfg.IsMainnet() {
		passphrase = network.PublicNetworkPassphrase
	}

	return &Submitter{
		kp:            kp,
		horizon:       &horizonclient.Client{HorizonURL: cfg.HorizonURL},
		rpc:           utils.NewRPCClient(cfg.RPCURL, cfg.HTTPTimeout),
		rpcURL:        cfg.RPCURL,
		contractID:    cfg.ContractID,
		passphrase:    passphrase,
		maxRetries:    cfg.SubmitMaxRetries,
		retryDelay:    cfg.SubmitRetryDelay,
		pacing:        cfg.SubmitPacing,
		txTimeoutSecs: cfg.TxTimeoutSecs,
		pollInterval:  cfg.PollInterval,
		log:           logger,
		sleep:         time.Sleep,
	}, nil
}

// SubmitPrice pushes one aggregated price on-chain, retrying a failed
// attempt up to maxRetries times beyond the initial one, with exponential
// backoff. Exactly one record comes back per price regardless of attempt
// count.
func (s *Submitter) SubmitPrice(ctx context.Context, agg *models.AggregatedPrice) models.SubmissionRecord {
	record := models.SubmissionRecord{
		Asset:     agg.Asset,
		Price:     agg.Price,
		Timestamp: agg.Timestamp,
	}

	totalAttempts := s.maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= totalAttempts; attempt++ {
		record.Attempts = attempt
		start := time.Now()

		hash, err := s.attempt(ctx, agg)
		if err == nil {
			record.Success = true
			record.TxHash = hash
			metrics.Submissions.WithLabelValues("success").Inc()
			s.log.WithField("asset", agg.Asset).
				WithField("attempt", attempt).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				WithField("tx_hash", hash).
				Info("price submitted")
			return record
		}

		lastErr = err
		s.log.WithField("asset", agg.Asset).
			WithField("attempt", attempt).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			WithError(err).
			Warn("submission attempt failed")

		if attempt < totalAttempts {
			s.sleep(s.retryDelay * (1 << (attempt - 1)))
		}
	}

	record.Error = lastErr.Error()
	metrics.Submissions.WithLabelValues("failed").Inc()
	return record
}

// SubmitPrices applies SubmitPrice sequentially with a short pacing delay
// between prices so consecutive transactions never race the admin account
// sequence.
func (s *Submitter) SubmitPrices(ctx context.Context, prices []*models.AggregatedPrice) []models.SubmissionRecord {
	records := make([]models.SubmissionRecord, 0, len(prices))
	for i, price := range prices {
		if i > 0 {
			s.sleep(s.pacing)
		}
		records = append(records, s.SubmitPrice(ctx, price))
	}
	return records
}

// attempt runs one full simulate-sign-send-confirm pass.
func (s *Submitter) attempt(ctx context.Context, agg *models.AggregatedPrice) (string, error) {
	account, err := s.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: s.kp.Address()})
	if err != nil {
		return "", fmt.Errorf("load admin account: %w", err)
	}
	seq, err := account.GetSequenceNumber()
	if err != nil {
		return "", fmt.Errorf("read account sequence: %w", err)
	}

	op, err := utils.BuildSetAssetPriceOp(s.contractID, s.kp.Address(), agg.Asset, agg.Price, agg.Timestamp)
	if err != nil {
		return "", err
	}

	envelope, err := s.buildEnvelope(op, seq, 0)
	if err != nil {
		return "", err
	}

	sim, err := s.rpc.SimulateTransaction(ctx, envelope)
	if err != nil {
		return "", fmt.Errorf("simulate: %w", err)
	}
	if sim.Error != "" {
		return "", fmt.Errorf("simulation failed: %s", sim.Error)
	}

	if sim.TransactionData != "" {
		var sorobanData xdr.SorobanTransactionData
		if err := xdr.SafeUnmarshalBase64(sim.TransactionData, &sorobanData); err != nil {
			return "", fmt.Errorf("decode transaction data: %w", err)
		}
		op.Ext = xdr.TransactionExt{V: 1, SorobanData: &sorobanData}
	}
	resourceFee := int64(0)
	if sim.MinResourceFee != "" {
		if resourceFee, err = strconv.ParseInt(sim.MinResourceFee, 10, 64); err != nil {
			return "", fmt.Errorf("parse resource fee %q: %w", sim.MinResourceFee, err)
		}
	}

	signed, err := s.buildSignedEnvelope(op, seq, resourceFee)
	if err != nil {
		return "", err
	}

	sent, err := s.rpc.SendTransaction(ctx, signed)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	if sent.Status == "ERROR" || sent.Status == "TRY_AGAIN_LATER" {
		return "", fmt.Errorf("send rejected with status %s: %s", sent.Status, sent.ErrorResultXdr)
	}

	return s.confirm(ctx, sent.Hash)
}

// buildEnvelope assembles the unsigned base64 envelope used for simulation.
func (s *Submitter) buildEnvelope(op *txnbuild.InvokeHostFunction, seq, resourceFee int64) (string, error) {
	tx, err := s.buildTx(op, seq, resourceFee)
	if err != nil {
		return "", err
	}
	return marshalTx(tx)
}

// buildSignedEnvelope rebuilds the transaction with the simulation's
// resource footprint and signs it under the network passphrase.
func (s *Submitter) buildSignedEnvelope(op *txnbuild.InvokeHostFunction, seq, resourceFee int64) (string, error) {
	tx, err := s.buildTx(op, seq, resourceFee)
	if err != nil {
		return "", err
	}
	signed, err := tx.Sign(s.passphrase, s.kp)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	return marshalTx(signed)
}

func (s *Submitter) buildTx(op *txnbuild.InvokeHostFunction, seq, resourceFee int64) (*txnbuild.Transaction, error) {
	source := txnbuild.NewSimpleAccount(s.kp.Address(), seq)
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &source,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              txnbuild.MinBaseFee + resourceFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(s.txTimeoutSecs),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return tx, nil
}

func marshalTx(tx *txnbuild.Transaction) (string, error) {
	envelope := tx.ToXDR()
	encoded, err := xdr.MarshalBase64(envelope)
	if err != nil {
		return "", fmt.Errorf("marshal tx envelope: %w", err)
	}
	return encoded, nil
}

// confirm polls getTransaction until the status leaves NOT_FOUND, bounded
// by the transaction's own validity window.
func (s *Submitter) confirm(ctx context.Context, hash string) (string, error) {
	deadline := time.Now().Add(time.Duration(s.txTimeoutSecs) * time.Second)
	for {
		result, err := s.rpc.GetTransaction(ctx, hash)
		if err != nil {
			return "", fmt.Errorf("poll transaction %s: %w", hash, err)
		}
		switch result.Status {
		case utils.TxStatusSuccess:
			return hash, nil
		case utils.TxStatusFailed:
			return "", fmt.Errorf("transaction %s failed on-chain: %s", hash, result.ResultXdr)
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("transaction %s not confirmed before deadline", hash)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		s.sleep(s.pollInterval)
	}
}

// HealthCheck validates the contract identifier and probes the RPC node.
// It never submits.
func (s *Submitter) HealthCheck(ctx context.Context) models.HealthResult {
	start := time.Now()
	if _, err := utils.ScAddressFromString(s.contractID); err != nil {
		return models.HealthResult{Healthy: false, Error: err.Error()}
	}

	client := rpcclient.NewClient(s.rpcURL, nil)
	health, err := client.GetHealth(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return models.HealthResult{Healthy: false, LatencyMs: latency, Error: err.Error()}
	}
	if health.Status != "healthy" {
		return models.HealthResult{Healthy: false, LatencyMs: latency, Error: fmt.Sprintf("rpc status %s", health.Status)}
	}
	return models.HealthResult{Healthy: true, LatencyMs: latency}
}
