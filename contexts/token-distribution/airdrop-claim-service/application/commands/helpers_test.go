package commands_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"merkledrop/contexts/token-distribution/airdrop-claim-service/adapters/memory"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/commands"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/saga"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/merkle"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"

	"github.com/stretchr/testify/require"
)

const (
	adminAccount  = "admin.testnet"
	ledgerAccount = "token.testnet"
)

type recordingMetrics struct {
	mu         sync.Mutex
	rejected   map[string]int
	started    int
	completed  int
	rolledBack map[string]int
	stalled    map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		rejected:   map[string]int{},
		rolledBack: map[string]int{},
		stalled:    map[string]int{},
	}
}

func (m *recordingMetrics) ClaimRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[reason]++
}

func (m *recordingMetrics) SagaStarted(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *recordingMetrics) SagaCompleted(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
}

func (m *recordingMetrics) SagaRolledBack(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolledBack[stage]++
}

func (m *recordingMetrics) SagaStalled(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stalled[stage]++
}

func (m *recordingMetrics) stalledCount(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stalled[stage]
}

func (m *recordingMetrics) rejectedCount(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected[reason]
}

type failingDispatcher struct {
	err error
}

func (d failingDispatcher) Dispatch(func(context.Context)) error {
	return d.err
}

type fixture struct {
	store   *memory.Store
	ledger  *memory.Ledger
	metrics *recordingMetrics
	tree    *merkle.Tree
	payout  saga.Payout
}

func defaultLeaves() []merkle.Leaf {
	return []merkle.Leaf{
		{Account: "user1.testnet", Amount: "100"},
		{Account: "user2.testnet", Amount: "250"},
		{Account: "user3.testnet", Amount: "75"},
		{Account: "user4.testnet", Amount: "1000"},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tree, err := merkle.BuildTree(defaultLeaves(), merkle.SHA256)
	require.NoError(t, err)

	store := memory.NewStore(nil)
	registry, err := entities.NewRegistry("default", adminAccount, ledgerAccount, tree.Root().Hex(), time.Now())
	require.NoError(t, err)
	require.NoError(t, store.InitializeRegistry(context.Background(), registry))

	ledger := memory.NewLedger()
	metrics := newRecordingMetrics()
	return &fixture{
		store:   store,
		ledger:  ledger,
		metrics: metrics,
		tree:    tree,
		payout: saga.Payout{
			Claims:              store,
			Ledger:              ledger,
			Metrics:             metrics,
			Clock:               store,
			IDGenerator:         store,
			RegistrationTimeout: time.Second,
			TransferTimeout:     time.Second,
		},
	}
}

func (f *fixture) claimUseCase(dispatcher ports.Dispatcher) commands.ClaimAirdropUseCase {
	return commands.ClaimAirdropUseCase{
		Registry:    f.store,
		Claims:      f.store,
		Verifier:    merkle.NewVerifier(merkle.SHA256),
		Payout:      f.payout,
		Dispatcher:  dispatcher,
		Clock:       f.store,
		IDGenerator: f.store,
	}
}

func (f *fixture) allocationClaimUseCase() commands.ClaimAllocationUseCase {
	return commands.ClaimAllocationUseCase{
		Registry:    f.store,
		Claims:      f.store,
		Allocations: f.store,
		Payout:      f.payout,
		Dispatcher:  memory.InlineDispatcher{},
		Clock:       f.store,
		IDGenerator: f.store,
	}
}

func (f *fixture) allocationsUseCase() commands.AllocationsUseCase {
	return commands.AllocationsUseCase{
		Registry:    f.store,
		Allocations: f.store,
		Clock:       f.store,
	}
}

func (f *fixture) claimCommand(t *testing.T, account string, amount string) commands.ClaimAirdropCommand {
	t.Helper()
	proof, err := f.tree.HexProof(account)
	require.NoError(t, err)
	return commands.ClaimAirdropCommand{
		Account:         account,
		Amount:          amount,
		Proof:           proof,
		AttachedDeposit: "1",
	}
}

func (f *fixture) claimed(t *testing.T, account string) bool {
	t.Helper()
	ok, err := f.store.HasClaimed(context.Background(), valueobjects.AccountID(account))
	require.NoError(t, err)
	return ok
}
