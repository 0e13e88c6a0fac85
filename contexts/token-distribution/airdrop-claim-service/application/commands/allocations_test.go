package commands_test

import (
	"context"
	"errors"
	"testing"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/commands"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/queries"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAllocationsSkipsExistingAccounts(t *testing.T) {
	f := newFixture(t)
	uc := f.allocationsUseCase()
	ctx := context.Background()

	result, err := uc.Add(ctx, commands.AddAllocationsCommand{
		Caller:          adminAccount,
		Recipients:      []string{"alice.testnet", "bob.testnet"},
		Amounts:         []string{"10", "20"},
		AttachedDeposit: "1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice.testnet", "bob.testnet"}, result.Added)
	assert.Empty(t, result.Skipped)

	result, err = uc.Add(ctx, commands.AddAllocationsCommand{
		Caller:          adminAccount,
		Recipients:      []string{"bob.testnet", "carol.testnet"},
		Amounts:         []string{"99", "30"},
		AttachedDeposit: "1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol.testnet"}, result.Added)
	assert.Equal(t, []string{"bob.testnet"}, result.Skipped)

	amount, err := queries.UseCase{Allocations: f.store}.CheckAllocation(ctx, "bob.testnet")
	require.NoError(t, err)
	assert.Equal(t, "20", amount.String())

	amount, err = queries.UseCase{Allocations: f.store}.CheckAllocation(ctx, "nobody.testnet")
	require.NoError(t, err)
	assert.Equal(t, "0", amount.String())
}

func TestAddAllocationsValidation(t *testing.T) {
	f := newFixture(t)
	uc := f.allocationsUseCase()
	ctx := context.Background()

	cases := map[string]struct {
		cmd  commands.AddAllocationsCommand
		want error
	}{
		"not administrator": {
			cmd:  commands.AddAllocationsCommand{Caller: "user1.testnet", Recipients: []string{"a.testnet"}, Amounts: []string{"1"}, AttachedDeposit: "1"},
			want: domainerrors.ErrUnauthorized,
		},
		"no deposit": {
			cmd:  commands.AddAllocationsCommand{Caller: adminAccount, Recipients: []string{"a.testnet"}, Amounts: []string{"1"}},
			want: domainerrors.ErrDepositRequired,
		},
		"length mismatch": {
			cmd:  commands.AddAllocationsCommand{Caller: adminAccount, Recipients: []string{"a.testnet", "b.testnet"}, Amounts: []string{"1"}, AttachedDeposit: "1"},
			want: domainerrors.ErrInvalidAllocation,
		},
		"empty list": {
			cmd:  commands.AddAllocationsCommand{Caller: adminAccount, AttachedDeposit: "1"},
			want: domainerrors.ErrInvalidAllocation,
		},
		"bad amount": {
			cmd:  commands.AddAllocationsCommand{Caller: adminAccount, Recipients: []string{"a.testnet"}, Amounts: []string{"-5"}, AttachedDeposit: "1"},
			want: domainerrors.ErrInvalidAllocation,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := uc.Add(ctx, tc.cmd)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUpdateAllocation(t *testing.T) {
	f := newFixture(t)
	uc := f.allocationsUseCase()
	ctx := context.Background()

	_, err := uc.Update(ctx, commands.UpdateAllocationCommand{Caller: adminAccount, Account: "alice.testnet", Amount: "5", AttachedDeposit: "1"})
	assert.ErrorIs(t, err, domainerrors.ErrAllocationNotFound)

	_, err = uc.Add(ctx, commands.AddAllocationsCommand{
		Caller: adminAccount, Recipients: []string{"alice.testnet"}, Amounts: []string{"10"}, AttachedDeposit: "1",
	})
	require.NoError(t, err)

	updated, err := uc.Update(ctx, commands.UpdateAllocationCommand{Caller: adminAccount, Account: "alice.testnet", Amount: "0042", AttachedDeposit: "1"})
	require.NoError(t, err)
	assert.Equal(t, "42", updated.Amount.String())

	_, err = uc.Update(ctx, commands.UpdateAllocationCommand{Caller: "alice.testnet", Account: "alice.testnet", Amount: "1000", AttachedDeposit: "1"})
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestClaimAllocationPaysOutThroughSaga(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.allocationsUseCase().Add(ctx, commands.AddAllocationsCommand{
		Caller:          adminAccount,
		Recipients:      []string{"alice.testnet", "zero.testnet"},
		Amounts:         []string{"40", "0"},
		AttachedDeposit: "1",
	})
	require.NoError(t, err)
	uc := f.allocationClaimUseCase()

	outcome, err := uc.Execute(ctx, commands.ClaimAllocationCommand{Account: "alice.testnet", AttachedDeposit: "1"})
	require.NoError(t, err)
	assert.Equal(t, "40", outcome.Amount)

	item, err := f.store.GetSaga(ctx, outcome.SagaID)
	require.NoError(t, err)
	assert.Equal(t, entities.SagaStageCompleted, item.Stage)
	assert.Equal(t, entities.ClaimSourceAllowlist, item.Source)
	assert.Equal(t, "40", f.ledger.Balance("alice.testnet"))

	_, err = uc.Execute(ctx, commands.ClaimAllocationCommand{Account: "alice.testnet", AttachedDeposit: "1"})
	assert.ErrorIs(t, err, domainerrors.ErrAlreadyClaimed)

	_, err = uc.Execute(ctx, commands.ClaimAllocationCommand{Account: "zero.testnet", AttachedDeposit: "1"})
	assert.ErrorIs(t, err, domainerrors.ErrNothingToClaim)

	_, err = uc.Execute(ctx, commands.ClaimAllocationCommand{Account: "stranger.testnet", AttachedDeposit: "1"})
	assert.ErrorIs(t, err, domainerrors.ErrNothingToClaim)

	_, err = uc.Execute(ctx, commands.ClaimAllocationCommand{Account: "alice.testnet"})
	assert.ErrorIs(t, err, domainerrors.ErrDepositRequired)
}

func TestClaimAllocationRollbackAllowsRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.allocationsUseCase().Add(ctx, commands.AddAllocationsCommand{
		Caller: adminAccount, Recipients: []string{"alice.testnet"}, Amounts: []string{"40"}, AttachedDeposit: "1",
	})
	require.NoError(t, err)
	uc := f.allocationClaimUseCase()

	f.ledger.FailTransfers(errors.New("ledger paused"))
	outcome, err := uc.Execute(ctx, commands.ClaimAllocationCommand{Account: "alice.testnet", AttachedDeposit: "1"})
	require.NoError(t, err)
	item, err := f.store.GetSaga(ctx, outcome.SagaID)
	require.NoError(t, err)
	assert.Equal(t, entities.SagaStageRolledBack, item.Stage)

	f.ledger.FailTransfers(nil)
	_, err = uc.Execute(ctx, commands.ClaimAllocationCommand{Account: "alice.testnet", AttachedDeposit: "1"})
	require.NoError(t, err)
	assert.Equal(t, "40", f.ledger.Balance("alice.testnet"))
}
