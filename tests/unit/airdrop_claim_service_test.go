package unit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	airdropclaimservice "merkledrop/contexts/token-distribution/airdrop-claim-service"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/application/saga"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/entities"
	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/domain/merkle"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
	httptransport "merkledrop/contexts/token-distribution/airdrop-claim-service/transport/http"
	contractsv1 "merkledrop/contracts/gen/events/v1"
)

func newAirdropModule(t *testing.T) (airdropclaimservice.Module, *merkle.Tree) {
	t.Helper()
	tree, err := merkle.BuildTree([]merkle.Leaf{
		{Account: "alice.testnet", Amount: "500"},
		{Account: "bob.testnet", Amount: "20"},
	}, merkle.SHA256)
	if err != nil {
		t.Fatalf("build tree failed: %v", err)
	}
	module, err := airdropclaimservice.NewInMemoryModule(airdropclaimservice.RegistrySeed{
		AirdropID:       "default",
		Administrator:   "admin.testnet",
		LedgerReference: "token.testnet",
		Root:            tree.Root().Hex(),
	}, nil)
	if err != nil {
		t.Fatalf("new module failed: %v", err)
	}
	return module, tree
}

func claimRequest(t *testing.T, tree *merkle.Tree, account string, amount string) httptransport.ClaimAirdropRequest {
	t.Helper()
	proof, err := tree.HexProof(account)
	if err != nil {
		t.Fatalf("proof failed: %v", err)
	}
	return httptransport.ClaimAirdropRequest{Amount: amount, MerkleProof: proof}
}

func TestAirdropClaimSettlesAndPublishesOutbox(t *testing.T) {
	module, tree := newAirdropModule(t)
	ctx := context.Background()

	resp, err := module.Handler.ClaimAirdropHandler(ctx, "alice.testnet", "1", claimRequest(t, tree, "alice.testnet", "500"))
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	view, err := module.Handler.GetSagaHandler(ctx, resp.SagaID)
	if err != nil {
		t.Fatalf("get saga failed: %v", err)
	}
	if view.Item.Stage != "completed" {
		t.Fatalf("expected completed saga, got %s", view.Item.Stage)
	}
	if balance := module.Ledger.Balance("alice.testnet"); balance != "500" {
		t.Fatalf("expected balance 500, got %s", balance)
	}

	var published []contractsv1.Envelope
	relay := module.NewOutboxRelay(publisherFunc(func(_ context.Context, topic string, event contractsv1.Envelope) error {
		if topic != event.EventType {
			t.Fatalf("expected topic %s, got %s", event.EventType, topic)
		}
		published = append(published, event)
		return nil
	}), 10)
	if err := relay.RunOnce(ctx); err != nil {
		t.Fatalf("relay failed: %v", err)
	}
	if len(published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(published))
	}
	event := published[0]
	if event.EventType != "airdrop.claim.completed" || event.PartitionKey != "alice.testnet" || event.SchemaVersion != 1 {
		t.Fatalf("unexpected envelope %+v", event)
	}
	var data ports.ClaimSettledData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		t.Fatalf("decode data failed: %v", err)
	}
	if data.SagaID != resp.SagaID || data.Amount != "500" || data.Stage != "completed" {
		t.Fatalf("unexpected event data %+v", data)
	}
}

func TestAirdropRolledBackClaimCanBeRetried(t *testing.T) {
	module, tree := newAirdropModule(t)
	ctx := context.Background()

	module.Ledger.FailTransfers(errors.New("ledger paused"))
	resp, err := module.Handler.ClaimAirdropHandler(ctx, "bob.testnet", "1", claimRequest(t, tree, "bob.testnet", "20"))
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	view, err := module.Handler.GetSagaHandler(ctx, resp.SagaID)
	if err != nil {
		t.Fatalf("get saga failed: %v", err)
	}
	if view.Item.Stage != "rolled_back" || view.Item.FailureStage != "transfer" {
		t.Fatalf("expected transfer rollback, got %+v", view.Item)
	}
	status, err := module.Handler.ClaimStatusHandler(ctx, "bob.testnet")
	if err != nil || status.Claimed {
		t.Fatalf("expected bob to be eligible again, got %+v err=%v", status, err)
	}

	module.Ledger.FailTransfers(nil)
	if _, err := module.Handler.ClaimAirdropHandler(ctx, "bob.testnet", "1", claimRequest(t, tree, "bob.testnet", "20")); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	_, err = module.Handler.ClaimAirdropHandler(ctx, "bob.testnet", "1", claimRequest(t, tree, "bob.testnet", "20"))
	if !errors.Is(err, domainerrors.ErrAlreadyClaimed) {
		t.Fatalf("expected already claimed, got %v", err)
	}
}

func TestAirdropLateReceiptDoesNotReopenCompletedSaga(t *testing.T) {
	module, tree := newAirdropModule(t)
	ctx := context.Background()
	module.Ledger.MarkRegistered("alice.testnet")

	resp, err := module.Handler.ClaimAirdropHandler(ctx, "alice.testnet", "1", claimRequest(t, tree, "alice.testnet", "500"))
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	item, err := module.Store.GetSaga(ctx, resp.SagaID)
	if err != nil {
		t.Fatalf("get saga failed: %v", err)
	}
	if item.Stage != entities.SagaStageCompleted {
		t.Fatalf("expected completed saga, got %s", item.Stage)
	}

	consumer := module.NewLedgerReceiptConsumer(nil)
	data, _ := json.Marshal(ports.LedgerReceiptData{SagaID: resp.SagaID, Status: ports.LedgerReceiptFailure})
	if err := consumer.Handle(ctx, contractsv1.Envelope{EventID: "receipt-1", Data: data}); err != nil {
		t.Fatalf("handle receipt failed: %v", err)
	}
	item, err = module.Store.GetSaga(ctx, resp.SagaID)
	if err != nil {
		t.Fatalf("get saga failed: %v", err)
	}
	if item.Stage != entities.SagaStageCompleted {
		t.Fatalf("late receipt must not reopen a completed saga, got %s", item.Stage)
	}
}

func TestAirdropAdministrationRequiresDepositAndAdmin(t *testing.T) {
	module, _ := newAirdropModule(t)
	ctx := context.Background()
	root := httptransport.RootRequest{Root: "0000000000000000000000000000000000000000000000000000000000000001"}

	if _, err := module.Handler.RotateRootHandler(ctx, "admin.testnet", "", "", root); !errors.Is(err, domainerrors.ErrDepositRequired) {
		t.Fatalf("expected deposit required, got %v", err)
	}
	if _, err := module.Handler.RotateRootHandler(ctx, "alice.testnet", "1", "", root); !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	resp, err := module.Handler.RotateRootHandler(ctx, "admin.testnet", "1", "", root)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if resp.Root != root.Root {
		t.Fatalf("expected root %s, got %s", root.Root, resp.Root)
	}
}

func TestAirdropPayoutDefaults(t *testing.T) {
	module, _ := newAirdropModule(t)
	if module.Payout.RegistrationCollateral != saga.DefaultRegistrationCollateral {
		t.Fatalf("unexpected collateral %s", module.Payout.RegistrationCollateral)
	}
}

type publisherFunc func(ctx context.Context, topic string, event contractsv1.Envelope) error

func (f publisherFunc) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	return f(ctx, topic, event)
}
