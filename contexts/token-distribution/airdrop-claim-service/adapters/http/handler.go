package httpadapter

import (
	"context"
	"log/slog"
	"time"

	application "merkledrop/contexts/token-distribution/airdrop-claim-service/application"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/commands"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/queries"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	httptransport "merkledrop/contexts/token-distribution/airdrop-claim-service/transport/http"
)

const moduleName = "token-distribution/airdrop-claim-service"

type Handler struct {
	ClaimAirdrop           commands.ClaimAirdropUseCase
	ClaimAllocation        commands.ClaimAllocationUseCase
	RotateRoot             commands.RotateRootUseCase
	TransferAdministration commands.TransferAdministrationUseCase
	Allocations            commands.AllocationsUseCase
	Queries                queries.UseCase
	Logger                 *slog.Logger
}

// ClaimAirdropHandler godoc
// @Summary Claim airdrop tokens with a Merkle proof
// @Description Verifies the proof against the committed root and starts the payout saga.
// @Tags airdrop-claim-service
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Claiming account"
// @Param X-Attached-Deposit header string true "Attached deposit, at least 1"
// @Param request body httptransport.ClaimAirdropRequest true "Claim payload"
// @Success 202 {object} httptransport.ClaimResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 402 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/airdrop/claims [post]
func (h Handler) ClaimAirdropHandler(
	ctx context.Context,
	userID string,
	deposit string,
	req httptransport.ClaimAirdropRequest,
) (httptransport.ClaimResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("airdrop claim request received",
		"event", "http_airdrop_claim_received",
		"module", moduleName,
		"layer", "transport",
		"account", userID,
		"proof_length", len(req.MerkleProof),
	)

	outcome, err := h.ClaimAirdrop.Execute(ctx, commands.ClaimAirdropCommand{
		Account:         userID,
		Amount:          req.Amount,
		Proof:           req.MerkleProof,
		AttachedDeposit: deposit,
	})
	if err != nil {
		logger.Warn("airdrop claim request rejected",
			"event", "http_airdrop_claim_rejected",
			"module", moduleName,
			"layer", "transport",
			"account", userID,
			"error", err.Error(),
		)
		return httptransport.ClaimResponse{}, err
	}
	return mapOutcome(outcome), nil
}

// ClaimAllocationHandler godoc
// @Summary Claim an allow-list allocation
// @Description Pays out the caller's allow-list amount through the same saga as Merkle claims.
// @Tags airdrop-claim-service
// @Produce json
// @Param X-User-Id header string true "Claiming account"
// @Param X-Attached-Deposit header string true "Attached deposit, at least 1"
// @Success 202 {object} httptransport.ClaimResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 402 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/airdrop/allocation-claims [post]
func (h Handler) ClaimAllocationHandler(ctx context.Context, userID string, deposit string) (httptransport.ClaimResponse, error) {
	outcome, err := h.ClaimAllocation.Execute(ctx, commands.ClaimAllocationCommand{
		Account:         userID,
		AttachedDeposit: deposit,
	})
	if err != nil {
		return httptransport.ClaimResponse{}, err
	}
	return mapOutcome(outcome), nil
}

// ClaimStatusHandler godoc
// @Summary Check whether an account has claimed
// @Description An account counts as claimed while its payout is in flight or after it completed.
// @Tags airdrop-claim-service
// @Produce json
// @Param account path string true "Account"
// @Success 200 {object} httptransport.ClaimStatusResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/airdrop/claims/{account} [get]
func (h Handler) ClaimStatusHandler(ctx context.Context, account string) (httptransport.ClaimStatusResponse, error) {
	claimed, err := h.Queries.HasClaimed(ctx, account)
	if err != nil {
		return httptransport.ClaimStatusResponse{}, err
	}
	return httptransport.ClaimStatusResponse{Account: account, Claimed: claimed}, nil
}

// GetSagaHandler godoc
// @Summary Get payout saga
// @Tags airdrop-claim-service
// @Produce json
// @Param saga_id path string true "Saga id"
// @Success 200 {object} httptransport.GetSagaResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/airdrop/sagas/{saga_id} [get]
func (h Handler) GetSagaHandler(ctx context.Context, sagaID string) (httptransport.GetSagaResponse, error) {
	saga, err := h.Queries.GetSaga(ctx, sagaID)
	if err != nil {
		return httptransport.GetSagaResponse{}, err
	}
	return httptransport.GetSagaResponse{Item: mapSaga(saga)}, nil
}

// ReadRootHandler godoc
// @Summary Read the committed Merkle root
// @Tags airdrop-claim-service
// @Produce json
// @Success 200 {object} httptransport.RootResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/airdrop/root [get]
func (h Handler) ReadRootHandler(ctx context.Context) (httptransport.RootResponse, error) {
	registry, err := h.Queries.ReadRegistry(ctx)
	if err != nil {
		return httptransport.RootResponse{}, err
	}
	return httptransport.RootResponse{
		Root:      registry.CommittedRoot,
		UpdatedAt: formatTime(registry.UpdatedAt),
	}, nil
}

// RotateRootHandler godoc
// @Summary Replace the committed Merkle root
// @Description Administrator only. Accounts that already claimed stay claimed.
// @Tags airdrop-claim-service
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Administrator account"
// @Param X-Attached-Deposit header string true "Attached deposit, at least 1"
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body httptransport.RootRequest true "New root"
// @Success 200 {object} httptransport.RootResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 402 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/airdrop/root [put]
func (h Handler) RotateRootHandler(
	ctx context.Context,
	userID string,
	deposit string,
	idempotencyKey string,
	req httptransport.RootRequest,
) (httptransport.RootResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	result, err := h.RotateRoot.Execute(ctx, commands.RotateRootCommand{
		Caller:          userID,
		Root:            req.Root,
		AttachedDeposit: deposit,
		IdempotencyKey:  idempotencyKey,
	})
	if err != nil {
		logger.Warn("root rotation request rejected",
			"event", "http_airdrop_root_rotation_rejected",
			"module", moduleName,
			"layer", "transport",
			"caller", userID,
			"error", err.Error(),
		)
		return httptransport.RootResponse{}, err
	}
	return httptransport.RootResponse{
		Root:      result.Root,
		UpdatedAt: formatTime(result.UpdatedAt),
	}, nil
}

// ReadAdministratorHandler godoc
// @Summary Read the administrator identity
// @Tags airdrop-claim-service
// @Produce json
// @Success 200 {object} httptransport.AdministratorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/airdrop/administrator [get]
func (h Handler) ReadAdministratorHandler(ctx context.Context) (httptransport.AdministratorResponse, error) {
	registry, err := h.Queries.ReadRegistry(ctx)
	if err != nil {
		return httptransport.AdministratorResponse{}, err
	}
	return httptransport.AdministratorResponse{
		Administrator: registry.Administrator.String(),
		UpdatedAt:     formatTime(registry.UpdatedAt),
	}, nil
}

// TransferAdministrationHandler godoc
// @Summary Hand administration to another account
// @Tags airdrop-claim-service
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Current administrator"
// @Param X-Attached-Deposit header string true "Attached deposit, at least 1"
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body httptransport.TransferAdministrationRequest true "New administrator"
// @Success 200 {object} httptransport.AdministratorResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 402 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/airdrop/administrator/transfer [post]
func (h Handler) TransferAdministrationHandler(
	ctx context.Context,
	userID string,
	deposit string,
	idempotencyKey string,
	req httptransport.TransferAdministrationRequest,
) (httptransport.AdministratorResponse, error) {
	result, err := h.TransferAdministration.Execute(ctx, commands.TransferAdministrationCommand{
		Caller:           userID,
		NewAdministrator: req.NewAdministrator,
		AttachedDeposit:  deposit,
		IdempotencyKey:   idempotencyKey,
	})
	if err != nil {
		return httptransport.AdministratorResponse{}, err
	}
	return httptransport.AdministratorResponse{
		Administrator: result.Administrator,
		UpdatedAt:     formatTime(result.UpdatedAt),
	}, nil
}

// AddAllocationsHandler godoc
// @Summary Add allow-list entries
// @Description Administrator only. Accounts already listed keep their amount and are reported as skipped.
// @Tags airdrop-claim-service
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Administrator account"
// @Param X-Attached-Deposit header string true "Attached deposit, at least 1"
// @Param request body httptransport.AddAllocationsRequest true "Recipients and amounts, index aligned"
// @Success 200 {object} httptransport.AddAllocationsResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 402 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/airdrop/allocations [post]
func (h Handler) AddAllocationsHandler(
	ctx context.Context,
	userID string,
	deposit string,
	req httptransport.AddAllocationsRequest,
) (httptransport.AddAllocationsResponse, error) {
	result, err := h.Allocations.Add(ctx, commands.AddAllocationsCommand{
		Caller:          userID,
		Recipients:      req.Recipients,
		Amounts:         req.Amounts,
		AttachedDeposit: deposit,
	})
	if err != nil {
		return httptransport.AddAllocationsResponse{}, err
	}
	return httptransport.AddAllocationsResponse{
		Added:   result.Added,
		Skipped: result.Skipped,
	}, nil
}

// UpdateAllocationHandler godoc
// @Summary Update an allow-list entry
// @Tags airdrop-claim-service
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Administrator account"
// @Param X-Attached-Deposit header string true "Attached deposit, at least 1"
// @Param account path string true "Account"
// @Param request body httptransport.AllocationRequest true "New amount"
// @Success 200 {object} httptransport.AllocationResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 402 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/airdrop/allocations/{account} [put]
func (h Handler) UpdateAllocationHandler(
	ctx context.Context,
	userID string,
	deposit string,
	account string,
	req httptransport.AllocationRequest,
) (httptransport.AllocationResponse, error) {
	allocation, err := h.Allocations.Update(ctx, commands.UpdateAllocationCommand{
		Caller:          userID,
		Account:         account,
		Amount:          req.Amount,
		AttachedDeposit: deposit,
	})
	if err != nil {
		return httptransport.AllocationResponse{}, err
	}
	return httptransport.AllocationResponse{
		Account: allocation.Account.String(),
		Amount:  allocation.Amount.String(),
	}, nil
}

// CheckAllocationHandler godoc
// @Summary Read an allow-list entry
// @Description Unknown accounts report an amount of 0.
// @Tags airdrop-claim-service
// @Produce json
// @Param account path string true "Account"
// @Success 200 {object} httptransport.AllocationResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/airdrop/allocations/{account} [get]
func (h Handler) CheckAllocationHandler(ctx context.Context, account string) (httptransport.AllocationResponse, error) {
	amount, err := h.Queries.CheckAllocation(ctx, account)
	if err != nil {
		return httptransport.AllocationResponse{}, err
	}
	return httptransport.AllocationResponse{Account: account, Amount: amount.String()}, nil
}

func mapOutcome(outcome commands.ClaimOutcome) httptransport.ClaimResponse {
	return httptransport.ClaimResponse{
		SagaID:  outcome.SagaID,
		Account: outcome.Account,
		Amount:  outcome.Amount,
		Stage:   string(outcome.Stage),
	}
}

func mapSaga(saga entities.ClaimSaga) httptransport.SagaDTO {
	return httptransport.SagaDTO{
		SagaID:        saga.SagaID,
		Account:       saga.Account.String(),
		Amount:        saga.Amount.String(),
		Root:          saga.Root,
		Source:        string(saga.Source),
		Stage:         string(saga.Stage),
		FailureStage:  string(saga.FailureStage),
		FailureReason: saga.FailureReason,
		CreatedAt:     formatTime(saga.CreatedAt),
		UpdatedAt:     formatTime(saga.UpdatedAt),
	}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
