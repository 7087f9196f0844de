package app

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dexkeep/keeperbot/internal/apperror"
	"github.com/dexkeep/keeperbot/internal/asset"
	"github.com/dexkeep/keeperbot/internal/logger"
)

// Deps bundles the gateway capabilities behind the chain service.
// Batch may be nil when atomic execution is not configured.
type Deps struct {
	Node      NodeReader
	Tokens    TokenGateway
	Exchange  ExchangeGateway
	Pool      PoolGateway
	Oracle    OracleReader
	Vault     VaultGateway
	Batch     BatchGateway
	Confirmer TxConfirmer
	Watcher   BlockWatcher
	Gas       GasPricer
}

// ChainService is the single entry point to the chain for the keepers.
// Keepers bind the typed capability they need at startup; the service
// also carries the cross-cutting startup checks.
type ChainService struct {
	deps Deps
	log  logger.LoggerInterface
}

// NewChainService creates a new ChainService.
func NewChainService(deps Deps, log logger.LoggerInterface) *ChainService {
	return &ChainService{deps: deps, log: log}
}

// Node returns the node reader capability.
func (s *ChainService) Node() NodeReader { return s.deps.Node }

// Tokens returns the token gateway capability.
func (s *ChainService) Tokens() TokenGateway { return s.deps.Tokens }

// Exchange returns the order book capability.
func (s *ChainService) Exchange() ExchangeGateway { return s.deps.Exchange }

// Pool returns the mint/redeem pool capability.
func (s *ChainService) Pool() PoolGateway { return s.deps.Pool }

// Oracle returns the reference oracle capability.
func (s *ChainService) Oracle() OracleReader { return s.deps.Oracle }

// Vault returns the vault engine capability.
func (s *ChainService) Vault() VaultGateway { return s.deps.Vault }

// Batch returns the batch executor capability, nil when not configured.
func (s *ChainService) Batch() BatchGateway { return s.deps.Batch }

// Confirmer returns the receipt confirmation capability.
func (s *ChainService) Confirmer() TxConfirmer { return s.deps.Confirmer }

// Watcher returns the block watcher capability.
func (s *ChainService) Watcher() BlockWatcher { return s.deps.Watcher }

// Gas returns the gas pricing capability.
func (s *ChainService) Gas() GasPricer { return s.deps.Gas }

// WaitForSync blocks until the node reports itself synced. Keepers refuse
// to act on a syncing node because every read would be stale.
func (s *ChainService) WaitForSync(ctx context.Context, poll time.Duration) error {
	for {
		synced, err := s.deps.Node.IsSynced(ctx)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeChainRead, "sync status")
		}
		if synced {
			return nil
		}

		s.log.Info(ctx, "node is syncing, waiting", "poll", poll.String())

		select {
		case <-ctx.Done():
			return apperror.Wrap(ctx.Err(), apperror.CodeNodeNotSynced, "wait for sync")
		case <-time.After(poll):
		}
	}
}

// EnsureAllowance makes sure spender can move the account's tokens,
// approving and waiting for confirmation when it cannot.
func (s *ChainService) EnsureAllowance(ctx context.Context, a *asset.Asset, owner, spender common.Address) error {
	allowance, err := s.deps.Tokens.Allowance(ctx, a, owner, spender)
	if err != nil {
		return err
	}

	// An allowance of 2^127 raw units or more covers every realistic
	// transfer; treat it as unlimited.
	if allowance.Raw().BitLen() >= 128 {
		return nil
	}

	s.log.Info(ctx, "approving token allowance",
		"asset", a.Symbol(), "spender", spender.Hex())

	handle, err := s.deps.Tokens.Approve(ctx, a, spender)
	if err != nil {
		return err
	}

	result, err := s.deps.Confirmer.WaitForReceipt(ctx, handle)
	if err != nil {
		return err
	}
	if !result.Succeeded() {
		return apperror.New(apperror.CodeTxRevert,
			apperror.WithMessage("approve transaction failed"),
			apperror.WithContext(a.Symbol()))
	}
	return nil
}

// VerifyBatchOwner confirms the operating account controls the batch
// executor contract. Atomic execution without ownership would always revert.
func (s *ChainService) VerifyBatchOwner(ctx context.Context, account common.Address) error {
	if s.deps.Batch == nil {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithMessage("atomic mode requires a batch executor contract"))
	}

	owner, err := s.deps.Batch.Owner(ctx)
	if err != nil {
		return err
	}
	if owner != account {
		return apperror.New(apperror.CodeBatchNotOwned,
			apperror.WithContext(owner.Hex()))
	}
	return nil
}
