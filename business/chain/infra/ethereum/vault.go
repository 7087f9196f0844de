package ethereum

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexkeep/keeperbot/business/chain/domain"
	vaultDomain "github.com/dexkeep/keeperbot/business/vault/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
)

// CupCount returns the number of cups ever opened. Cup IDs are dense
// from 1, so this bounds a full scan.
func (g *Gateway) CupCount(ctx context.Context) (uint64, error) {
	results, err := g.view(ctx, "vault", g.config.Vault, "cupCount")
	if err != nil {
		return 0, err
	}
	count, ok := results[0].(*big.Int)
	if !ok {
		return 0, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected cupCount result type"))
	}
	return count.Uint64(), nil
}

// Cup reads one cup's state. Safety comes from the engine itself so
// keeper and contract never disagree on liquidation eligibility.
func (g *Gateway) Cup(ctx context.Context, id uint64) (vaultDomain.Cup, error) {
	cupID := new(big.Int).SetUint64(id)

	results, err := g.view(ctx, "vault", g.config.Vault, "cups", cupID)
	if err != nil {
		return vaultDomain.Cup{}, err
	}
	owner, ok0 := results[0].(common.Address)
	ink, ok1 := results[1].(*big.Int)
	if !ok0 || !ok1 {
		return vaultDomain.Cup{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected cups result types"))
	}

	results, err = g.view(ctx, "vault", g.config.Vault, "tab", cupID)
	if err != nil {
		return vaultDomain.Cup{}, err
	}
	tab, ok := results[0].(*big.Int)
	if !ok {
		return vaultDomain.Cup{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected tab result type"))
	}

	results, err = g.view(ctx, "vault", g.config.Vault, "safe", cupID)
	if err != nil {
		return vaultDomain.Cup{}, err
	}
	safe, ok := results[0].(bool)
	if !ok {
		return vaultDomain.Cup{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected safe result type"))
	}

	return vaultDomain.Cup{
		ID:    id,
		Owner: owner,
		Ink:   asset.NewAmount(g.config.Collateral, ink),
		Tab:   asset.NewAmount(g.config.Stablecoin, tab),
		Safe:  safe,
	}, nil
}

// vaultWad reads a single wad-scaled view from the vault engine.
func (g *Gateway) vaultWad(ctx context.Context, method string) (decimal.Decimal, error) {
	results, err := g.view(ctx, "vault", g.config.Vault, method)
	if err != nil {
		return decimal.Zero, err
	}
	wad, ok := results[0].(*big.Int)
	if !ok {
		return decimal.Zero, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected vault."+method+" result type"))
	}
	return wadToDecimal(wad), nil
}

// LiquidationRatio returns the engine's minimum collateralization ratio.
func (g *Gateway) LiquidationRatio(ctx context.Context) (decimal.Decimal, error) {
	return g.vaultWad(ctx, "liquidationRatio")
}

// CollateralPrice returns the engine's collateral valuation in debt
// units per collateral unit.
func (g *Gateway) CollateralPrice(ctx context.Context) (decimal.Decimal, error) {
	return g.vaultWad(ctx, "collateralPrice")
}

// Bite liquidates an unsafe cup. Any account may call it.
func (g *Gateway) Bite(ctx context.Context, id uint64) (domain.TxHandle, error) {
	ctx, span := g.tracer.Start(ctx, "vault.bite",
		trace.WithAttributes(attribute.Int64("cup_id", int64(id))))
	defer span.End()

	data, err := g.abis.vault.Pack("bite", new(big.Int).SetUint64(id))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, apperror.Wrap(err, apperror.CodeContractCallFailed, "pack bite")
	}

	handle, err := g.submit(ctx, domain.TxRequest{
		Call: domain.Call{To: g.config.Vault, Data: data},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, err
	}

	span.SetStatus(codes.Ok, "")
	return handle, nil
}

// LockCollateral adds collateral to one of the account's own cups.
func (g *Gateway) LockCollateral(ctx context.Context, id uint64, amount asset.Amount) (domain.TxHandle, error) {
	ctx, span := g.tracer.Start(ctx, "vault.lock",
		trace.WithAttributes(
			attribute.Int64("cup_id", int64(id)),
			attribute.String("amount", amount.String()),
		))
	defer span.End()

	if !amount.Asset().Equals(g.config.Collateral) {
		span.SetStatus(codes.Error, "wrong asset")
		return domain.TxHandle{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("lock takes collateral, got "+amount.Asset().Symbol()))
	}

	data, err := g.abis.vault.Pack("lock", new(big.Int).SetUint64(id), amount.Raw())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, apperror.Wrap(err, apperror.CodeContractCallFailed, "pack lock")
	}

	handle, err := g.submit(ctx, domain.TxRequest{
		Call: domain.Call{To: g.config.Vault, Data: data},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, err
	}

	span.SetStatus(codes.Ok, "")
	return handle, nil
}
