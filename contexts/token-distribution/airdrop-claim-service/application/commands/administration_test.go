package commands_test

import (
	"context"
	"strings"
	"testing"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/memory"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/commands"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/queries"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotateRootRequiresAdministrator(t *testing.T) {
	f := newFixture(t)
	uc := commands.RotateRootUseCase{Registry: f.store, Idempotency: f.store, Clock: f.store}
	ctx := context.Background()
	nextRoot := strings.Repeat("0f", 32)

	_, err := uc.Execute(ctx, commands.RotateRootCommand{Caller: "user1.testnet", Root: nextRoot, AttachedDeposit: "1"})
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	_, err = uc.Execute(ctx, commands.RotateRootCommand{Caller: adminAccount, Root: nextRoot})
	assert.ErrorIs(t, err, domainerrors.ErrDepositRequired)

	_, err = uc.Execute(ctx, commands.RotateRootCommand{Caller: adminAccount, Root: strings.ToUpper(nextRoot), AttachedDeposit: "1"})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidRoot)

	result, err := uc.Execute(ctx, commands.RotateRootCommand{Caller: adminAccount, Root: nextRoot, AttachedDeposit: "1"})
	require.NoError(t, err)
	assert.Equal(t, nextRoot, result.Root)

	root, err := queries.UseCase{Registry: f.store}.ReadRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, nextRoot, root)
}

func TestRotateRootIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	uc := commands.RotateRootUseCase{Registry: f.store, Idempotency: f.store, Clock: f.store}
	ctx := context.Background()
	first := strings.Repeat("1a", 32)
	second := strings.Repeat("2b", 32)

	original, err := uc.Execute(ctx, commands.RotateRootCommand{
		Caller: adminAccount, Root: first, AttachedDeposit: "1", IdempotencyKey: "rotate-1",
	})
	require.NoError(t, err)

	replayed, err := uc.Execute(ctx, commands.RotateRootCommand{
		Caller: adminAccount, Root: first, AttachedDeposit: "1", IdempotencyKey: "rotate-1",
	})
	require.NoError(t, err)
	assert.Equal(t, original.Root, replayed.Root)
	assert.True(t, original.UpdatedAt.Equal(replayed.UpdatedAt))

	_, err = uc.Execute(ctx, commands.RotateRootCommand{
		Caller: adminAccount, Root: second, AttachedDeposit: "1", IdempotencyKey: "rotate-1",
	})
	assert.ErrorIs(t, err, domainerrors.ErrIdempotencyKeyConflict)

	root, err := queries.UseCase{Registry: f.store}.ReadRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, root)
}

func TestTransferAdministrationMovesAuthority(t *testing.T) {
	f := newFixture(t)
	transfer := commands.TransferAdministrationUseCase{Registry: f.store, Idempotency: f.store, Clock: f.store}
	rotate := commands.RotateRootUseCase{Registry: f.store, Clock: f.store}
	ctx := context.Background()

	_, err := transfer.Execute(ctx, commands.TransferAdministrationCommand{
		Caller: "user1.testnet", NewAdministrator: "user1.testnet", AttachedDeposit: "1",
	})
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)

	_, err = transfer.Execute(ctx, commands.TransferAdministrationCommand{
		Caller: adminAccount, NewAdministrator: "  ", AttachedDeposit: "1",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidAdministrator)

	result, err := transfer.Execute(ctx, commands.TransferAdministrationCommand{
		Caller: adminAccount, NewAdministrator: "ops.testnet", AttachedDeposit: "1", IdempotencyKey: "handover",
	})
	require.NoError(t, err)
	assert.Equal(t, "ops.testnet", result.Administrator)

	admin, err := queries.UseCase{Registry: f.store}.ReadAdministrator(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ops.testnet", admin)

	_, err = rotate.Execute(ctx, commands.RotateRootCommand{Caller: adminAccount, Root: strings.Repeat("aa", 32), AttachedDeposit: "1"})
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
	_, err = rotate.Execute(ctx, commands.RotateRootCommand{Caller: "ops.testnet", Root: strings.Repeat("aa", 32), AttachedDeposit: "1"})
	assert.NoError(t, err)
}

func TestInitializeRegistryKeepsExistingState(t *testing.T) {
	store := memory.NewStore(nil)
	uc := commands.InitializeRegistryUseCase{Registry: store, Clock: store}
	ctx := context.Background()
	firstRoot := strings.Repeat("01", 32)

	registry, err := uc.Execute(ctx, commands.InitializeRegistryCommand{
		AirdropID: "default", Administrator: adminAccount, LedgerReference: ledgerAccount, Root: firstRoot,
	})
	require.NoError(t, err)
	assert.Equal(t, firstRoot, registry.CommittedRoot)

	existing, err := uc.Execute(ctx, commands.InitializeRegistryCommand{
		AirdropID: "default", Administrator: "other.testnet", LedgerReference: ledgerAccount, Root: strings.Repeat("02", 32),
	})
	assert.ErrorIs(t, err, domainerrors.ErrRegistryAlreadyInitialized)
	assert.Equal(t, firstRoot, existing.CommittedRoot)
	assert.Equal(t, adminAccount, existing.Administrator.String())

	_, err = uc.Execute(ctx, commands.InitializeRegistryCommand{
		AirdropID: "default", Administrator: adminAccount, LedgerReference: ledgerAccount, Root: "short",
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidRoot)
}
