package ethereum

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dexkeep/keeperbot/business/chain/domain"
	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
)

// wadDecimals is the fixed-point scale the pool and vault contracts use.
const wadDecimals = 18

func wadToDecimal(wad *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(wad, -wadDecimals)
}

// poolUint reads a single uint256 view from the pool.
func (g *Gateway) poolUint(ctx context.Context, method string) (*big.Int, error) {
	results, err := g.view(ctx, "pool", g.config.Pool, method)
	if err != nil {
		return nil, err
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected pool."+method+" result type"))
	}
	return value, nil
}

// MintRate is the stablecoin received per collateral token paid.
func (g *Gateway) MintRate(ctx context.Context) (decimal.Decimal, error) {
	wad, err := g.poolUint(ctx, "mintRate")
	if err != nil {
		return decimal.Zero, err
	}
	return wadToDecimal(wad), nil
}

// RedeemRate is the collateral token received per stablecoin paid.
func (g *Gateway) RedeemRate(ctx context.Context) (decimal.Decimal, error) {
	wad, err := g.poolUint(ctx, "redeemRate")
	if err != nil {
		return decimal.Zero, err
	}
	return wadToDecimal(wad), nil
}

// MintCapacity is the maximum collateral the pool accepts right now.
func (g *Gateway) MintCapacity(ctx context.Context) (asset.Amount, error) {
	raw, err := g.poolUint(ctx, "mintable")
	if err != nil {
		return asset.Amount{}, err
	}
	return asset.NewAmount(g.config.Collateral, raw), nil
}

// RedeemCapacity is the maximum stablecoin the pool accepts right now.
func (g *Gateway) RedeemCapacity(ctx context.Context) (asset.Amount, error) {
	raw, err := g.poolUint(ctx, "redeemable")
	if err != nil {
		return asset.Amount{}, err
	}
	return asset.NewAmount(g.config.Stablecoin, raw), nil
}

// Mint pays collateral into the pool for freshly minted stablecoin.
func (g *Gateway) Mint(ctx context.Context, pay asset.Amount) (domain.TxHandle, error) {
	ctx, span := g.tracer.Start(ctx, "pool.mint",
		trace.WithAttributes(attribute.String("pay", pay.String())))
	defer span.End()

	call, err := g.PackMint(pay)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, err
	}

	handle, err := g.submit(ctx, domain.TxRequest{Call: call})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, err
	}

	span.SetStatus(codes.Ok, "")
	return handle, nil
}

// Redeem pays stablecoin into the pool for collateral.
func (g *Gateway) Redeem(ctx context.Context, pay asset.Amount) (domain.TxHandle, error) {
	ctx, span := g.tracer.Start(ctx, "pool.redeem",
		trace.WithAttributes(attribute.String("pay", pay.String())))
	defer span.End()

	call, err := g.PackRedeem(pay)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, err
	}

	handle, err := g.submit(ctx, domain.TxRequest{Call: call})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.TxHandle{}, err
	}

	span.SetStatus(codes.Ok, "")
	return handle, nil
}

// PackMint encodes a mint for batch execution. pay must be collateral.
func (g *Gateway) PackMint(pay asset.Amount) (domain.Call, error) {
	if !pay.Asset().Equals(g.config.Collateral) {
		return domain.Call{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("mint pays collateral, got "+pay.Asset().Symbol()))
	}
	data, err := g.abis.pool.Pack("mint", pay.Raw())
	if err != nil {
		return domain.Call{}, apperror.Wrap(err, apperror.CodeContractCallFailed, "pack mint")
	}
	return domain.Call{To: g.config.Pool, Data: data}, nil
}

// PackRedeem encodes a redeem for batch execution. pay must be stablecoin.
func (g *Gateway) PackRedeem(pay asset.Amount) (domain.Call, error) {
	if !pay.Asset().Equals(g.config.Stablecoin) {
		return domain.Call{}, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("redeem pays stablecoin, got "+pay.Asset().Symbol()))
	}
	data, err := g.abis.pool.Pack("redeem", pay.Raw())
	if err != nil {
		return domain.Call{}, apperror.Wrap(err, apperror.CodeContractCallFailed, "pack redeem")
	}
	return domain.Call{To: g.config.Pool, Data: data}, nil
}
