package ethereum

import (
	"context"
	"math/big"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
)

// ReferencePrice reads the oracle's collateral price in stablecoin
// units per collateral unit. An unset oracle value is reported as a
// feed failure so callers fall back or skip the cycle.
func (g *Gateway) ReferencePrice(ctx context.Context) (asset.Price, error) {
	ctx, span := g.tracer.Start(ctx, "oracle.reference_price")
	defer span.End()

	results, err := g.view(ctx, "oracle", g.config.Oracle, "peek")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return asset.Price{}, err
	}

	value, ok0 := results[0].([32]byte)
	valid, ok1 := results[1].(bool)
	if !ok0 || !ok1 {
		span.SetStatus(codes.Error, "bad peek result")
		return asset.Price{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected peek result types"))
	}

	if !valid {
		span.SetStatus(codes.Error, "oracle value unset")
		return asset.Price{}, apperror.New(apperror.CodeFeedUnavailable,
			apperror.WithContext("oracle has no valid value"))
	}

	rate := wadToDecimal(new(big.Int).SetBytes(value[:]))
	price := asset.NewPriceNow(g.config.Collateral, g.config.Stablecoin, rate)

	span.SetAttributes(attribute.String("price", price.String()))
	span.SetStatus(codes.Ok, "")
	return price, nil
}
