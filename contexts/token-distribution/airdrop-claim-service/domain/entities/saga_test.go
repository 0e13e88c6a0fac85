package entities

import (
	"testing"
	"time"

	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSaga(t *testing.T) ClaimSaga {
	t.Helper()
	saga, err := NewClaimSaga("airdrop-1", "user1.testnet", "100", testRoot, "token.testnet", ClaimSourceMerkle, testNow)
	require.NoError(t, err)
	return saga
}

func TestNewClaimSagaRejectsBadInput(t *testing.T) {
	cases := map[string]struct {
		id     string
		amount valueobjects.Amount
		source ClaimSource
	}{
		"empty id":       {id: "", amount: "100", source: ClaimSourceMerkle},
		"zero amount":    {id: "airdrop-1", amount: "0", source: ClaimSourceMerkle},
		"unknown source": {id: "airdrop-1", amount: "100", source: "gift"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewClaimSaga(tc.id, "user1.testnet", tc.amount, testRoot, "token.testnet", tc.source, testNow)
			assert.ErrorIs(t, err, domainerrors.ErrInvalidClaimRequest)
		})
	}
}

func TestClaimSagaHappyPath(t *testing.T) {
	saga := newTestSaga(t)
	assert.Equal(t, SagaStageVerified, saga.Stage)
	assert.True(t, saga.HoldsClaim())

	var err error
	for _, next := range []SagaStage{
		SagaStageAwaitingRegistration,
		SagaStageRegisteredAwaitingTransfer,
		SagaStageCompleted,
	} {
		saga, err = saga.Advance(next, testNow)
		require.NoError(t, err)
		assert.Equal(t, next, saga.Stage)
	}
	assert.True(t, saga.Stage.IsTerminal())
	assert.True(t, saga.HoldsClaim())
}

func TestClaimSagaRejectsSkippedAndBackwardSteps(t *testing.T) {
	saga := newTestSaga(t)

	_, err := saga.Advance(SagaStageCompleted, testNow)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidSagaTransition)

	_, err = saga.Advance(SagaStageRolledBack, testNow)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidSagaTransition)

	saga, err = saga.Advance(SagaStageAwaitingRegistration, testNow)
	require.NoError(t, err)
	_, err = saga.Advance(SagaStageVerified, testNow)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidSagaTransition)
}

func TestClaimSagaFailRecordsStageAndReleasesClaim(t *testing.T) {
	saga := newTestSaga(t)
	saga, err := saga.Advance(SagaStageAwaitingRegistration, testNow)
	require.NoError(t, err)

	failed, err := saga.Fail(domainerrors.StageRegistration, "ledger refused", testNow.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, SagaStageRolledBack, failed.Stage)
	assert.Equal(t, domainerrors.StageRegistration, failed.FailureStage)
	assert.Equal(t, "ledger refused", failed.FailureReason)
	assert.False(t, failed.HoldsClaim())

	_, err = failed.Fail(domainerrors.StageTransfer, "again", testNow)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidSagaTransition)
}

func TestCompletedSagaCannotRollBack(t *testing.T) {
	saga := newTestSaga(t)
	saga.Stage = SagaStageCompleted
	_, err := saga.Fail(domainerrors.StageTransfer, "late failure", testNow)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidSagaTransition)
}

func TestRecordFailureKeepsSagaOpen(t *testing.T) {
	saga := newTestSaga(t)
	saga, err := saga.Advance(SagaStageAwaitingRegistration, testNow)
	require.NoError(t, err)
	saga, err = saga.Advance(SagaStageRegisteredAwaitingTransfer, testNow)
	require.NoError(t, err)
	assert.False(t, saga.RollbackPending())

	marked := saga.RecordFailure(domainerrors.StageTransfer, "frozen account", testNow.Add(time.Minute))
	assert.Equal(t, SagaStageRegisteredAwaitingTransfer, marked.Stage)
	assert.True(t, marked.HoldsClaim())
	assert.True(t, marked.RollbackPending())

	failed, err := marked.Fail(marked.FailureStage, marked.FailureReason, testNow.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, failed.RollbackPending())
}
