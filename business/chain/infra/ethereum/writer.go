package ethereum

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dexkeep/keeperbot/business/chain/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
)

// pendingTx remembers enough about an in-flight transaction to replace
// it at the same nonce with a higher gas price while waiting.
type pendingTx struct {
	req      domain.TxRequest
	nonce    uint64
	gasLimit uint64
	lastGas  *big.Int
	hashes   []common.Hash // original hash plus every replacement
}

// submit signs and sends one transaction. Gas price comes from the
// configured strategy, falling back to the node suggestion, and is
// always capped at GasMaxWei.
func (g *Gateway) submit(ctx context.Context, req domain.TxRequest) (domain.TxHandle, error) {
	if g.signer == nil {
		return domain.TxHandle{}, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("gateway is read-only: no signing key configured"))
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	if err := g.limiter.Wait(ctx); err != nil {
		return domain.TxHandle{}, apperror.Wrap(err, apperror.CodeRateLimitExceeded, "submit")
	}

	nonce, err := g.client.PendingNonceAt(ctx, g.signer.Address())
	if err != nil {
		return domain.TxHandle{}, apperror.Wrap(err, apperror.CodeChainRead, "pending nonce")
	}

	gasPrice, err := g.gasPriceFor(ctx, 0)
	if err != nil {
		return domain.TxHandle{}, err
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = g.gas.EstimateGas(ctx, req)
		if err != nil {
			return domain.TxHandle{}, err
		}
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})

	signed, err := g.signer.SignTx(tx)
	if err != nil {
		return domain.TxHandle{}, err
	}

	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return domain.TxHandle{}, apperror.Wrap(err, apperror.CodeTxSubmitFailed, signed.Hash().Hex())
	}

	handle := domain.TxHandle{
		Hash:        signed.Hash(),
		Nonce:       nonce,
		GasPriceWei: gasPrice,
		SubmittedAt: time.Now(),
	}
	g.trackPending(handle, req, gasLimit)

	g.metrics.txSubmitted.Add(ctx, 1)
	g.log.Info(ctx, "transaction submitted",
		"hash", handle.Hash.Hex(),
		"nonce", handle.Nonce,
		"gas_price_wei", gasPrice.String(),
		"gas_limit", gasLimit)

	return handle, nil
}

// gasPriceFor resolves the gas price for a transaction elapsed time
// into its wait, clamped at GasMaxWei.
func (g *Gateway) gasPriceFor(ctx context.Context, elapsed time.Duration) (*big.Int, error) {
	var price *big.Int
	if g.strategy != nil {
		price = g.strategy.Price(elapsed)
	}
	if price == nil {
		suggested, err := g.gas.GetGasPrice(ctx)
		if err != nil {
			return nil, err
		}
		price = new(big.Int).Set(suggested.Wei)
	}
	if g.config.GasMaxWei != nil && price.Cmp(g.config.GasMaxWei) > 0 {
		price = new(big.Int).Set(g.config.GasMaxWei)
	}
	return price, nil
}

func (g *Gateway) trackPending(handle domain.TxHandle, req domain.TxRequest, gasLimit uint64) {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()
	if g.pending == nil {
		g.pending = make(map[common.Hash]*pendingTx)
	}
	g.pending[handle.Hash] = &pendingTx{
		req:      req,
		nonce:    handle.Nonce,
		gasLimit: gasLimit,
		lastGas:  new(big.Int).Set(handle.GasPriceWei),
		hashes:   []common.Hash{handle.Hash},
	}
}

func (g *Gateway) pendingHashes(hash common.Hash) []common.Hash {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()
	if info, ok := g.pending[hash]; ok {
		hashes := make([]common.Hash, len(info.hashes))
		copy(hashes, info.hashes)
		return hashes
	}
	return []common.Hash{hash}
}

func (g *Gateway) finishPending(hash common.Hash) {
	g.pendingMu.Lock()
	defer g.pendingMu.Unlock()
	delete(g.pending, hash)
}

// WaitForReceipt polls for a receipt until the confirmation timeout.
// With an increasing gas strategy the transaction is replaced at the
// same nonce whenever the strategy outbids the last submission, so any
// of the replacement hashes may confirm. A timeout returns a result,
// not an error; only context cancellation is an error here.
func (g *Gateway) WaitForReceipt(ctx context.Context, handle domain.TxHandle) (domain.ConfirmationResult, error) {
	start := handle.SubmittedAt
	if start.IsZero() {
		start = time.Now()
	}
	deadline := start.Add(g.config.ConfirmationTimeout)

	ticker := time.NewTicker(g.config.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		elapsed := time.Since(start)

		for _, h := range g.pendingHashes(handle.Hash) {
			receipt, err := g.client.TransactionReceipt(ctx, h)
			if err != nil {
				if !errors.Is(err, ethereum.NotFound) {
					g.log.Debug(ctx, "receipt poll failed", "hash", h.Hex(), "error", err)
				}
				continue
			}

			result := classifyReceipt(receipt, elapsed)
			g.finishPending(handle.Hash)
			g.recordOutcome(ctx, result)
			return result, nil
		}

		if time.Now().After(deadline) {
			g.finishPending(handle.Hash)
			result := domain.ConfirmationResult{
				Outcome: domain.ConfirmationTimeout,
				Elapsed: elapsed,
			}
			g.recordOutcome(ctx, result)
			g.log.Warn(ctx, "confirmation timed out",
				"hash", handle.Hash.Hex(),
				"waited", elapsed.String())
			return result, nil
		}

		g.maybeReplace(ctx, handle.Hash, elapsed)

		select {
		case <-ctx.Done():
			return domain.ConfirmationResult{}, apperror.Wrap(ctx.Err(),
				apperror.CodeServiceTimeout, "confirmation wait cancelled")
		case <-ticker.C:
		}
	}
}

// maybeReplace re-signs a stuck transaction at the same nonce when the
// gas strategy now wants a higher price. Send errors are expected while
// racing the original (already known, nonce too low) and are ignored.
func (g *Gateway) maybeReplace(ctx context.Context, hash common.Hash, elapsed time.Duration) {
	if g.signer == nil || g.strategy == nil {
		return
	}
	want := g.strategy.Price(elapsed)
	if want == nil {
		return
	}
	if g.config.GasMaxWei != nil && want.Cmp(g.config.GasMaxWei) > 0 {
		want = new(big.Int).Set(g.config.GasMaxWei)
	}

	g.pendingMu.Lock()
	info, ok := g.pending[hash]
	if !ok || want.Cmp(info.lastGas) <= 0 {
		g.pendingMu.Unlock()
		return
	}
	req, nonce, gasLimit := info.req, info.nonce, info.gasLimit
	g.pendingMu.Unlock()

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	to := req.To
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: want,
		Data:     req.Data,
	})

	signed, err := g.signer.SignTx(tx)
	if err != nil {
		g.log.Debug(ctx, "replacement signing failed", "error", err)
		return
	}
	if err := g.client.SendTransaction(ctx, signed); err != nil {
		g.log.Debug(ctx, "replacement rejected", "hash", signed.Hash().Hex(), "error", err)
		return
	}

	g.pendingMu.Lock()
	if info, ok := g.pending[hash]; ok {
		info.lastGas = new(big.Int).Set(want)
		info.hashes = append(info.hashes, signed.Hash())
	}
	g.pendingMu.Unlock()

	g.metrics.txSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("replacement", true)))
	g.log.Info(ctx, "transaction replaced with higher gas",
		"nonce", nonce,
		"hash", signed.Hash().Hex(),
		"gas_price_wei", want.String())
}

func (g *Gateway) recordOutcome(ctx context.Context, result domain.ConfirmationResult) {
	g.metrics.txConfirmed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", string(result.Outcome))))
	g.metrics.confirmLatency.Record(ctx, float64(result.Elapsed.Milliseconds()),
		metric.WithAttributes(attribute.String("outcome", string(result.Outcome))))
}

// classifyReceipt turns a node receipt into a confirmation result.
func classifyReceipt(receipt *types.Receipt, elapsed time.Duration) domain.ConfirmationResult {
	rec := &domain.Receipt{
		TxHash:  receipt.TxHash,
		GasUsed: receipt.GasUsed,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		rec.BlockNumber = receipt.BlockNumber.Uint64()
	}

	outcome := domain.ConfirmationRevert
	if rec.Success {
		outcome = domain.ConfirmationSuccess
	}
	return domain.ConfirmationResult{Outcome: outcome, Receipt: rec, Elapsed: elapsed}
}

// Owner returns the batch executor's owner.
func (g *Gateway) Owner(ctx context.Context) (common.Address, error) {
	results, err := g.view(ctx, "batch", g.config.Batch, "owner")
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected owner result type"))
	}
	return owner, nil
}

// ExecuteBatch submits all calls as one transaction through the batch
// executor. Inner call values are funded by the transaction value.
func (g *Gateway) ExecuteBatch(ctx context.Context, calls []domain.Call) (domain.TxHandle, error) {
	if len(calls) == 0 {
		return domain.TxHandle{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithMessage("batch requires at least one call"))
	}
	if (g.config.Batch == common.Address{}) {
		return domain.TxHandle{}, apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("batch executor address is not configured"))
	}

	packed := make([]batchCall, 0, len(calls))
	total := big.NewInt(0)
	for _, c := range calls {
		value := c.Value
		if value == nil {
			value = big.NewInt(0)
		}
		total = total.Add(total, value)
		packed = append(packed, batchCall{Target: c.To, Data: c.Data, Value: value})
	}

	data, err := g.abis.batch.Pack("execute", packed)
	if err != nil {
		return domain.TxHandle{}, apperror.Wrap(err, apperror.CodeContractCallFailed, "pack batch execute")
	}

	return g.submit(ctx, domain.TxRequest{
		Call: domain.Call{To: g.config.Batch, Data: data, Value: total},
	})
}
