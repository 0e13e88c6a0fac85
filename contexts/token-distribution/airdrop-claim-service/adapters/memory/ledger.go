package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	domainerrors "merkledrop/contexts/token-distribution/airdrop-claim-service/domain/errors"
	"merkledrop/contexts/token-distribution/airdrop-claim-service/ports"
)

var ErrRecipientNotRegistered = errors.New("recipient is not registered with ledger")

// Ledger is a scriptable token ledger. It backs tests and the ledger simulator.
type Ledger struct {
	mu              sync.Mutex
	registered      map[string]bool
	balances        map[string]*big.Int
	transfers       []ports.TransferRequest
	registerCalls   int
	transferCalls   int
	registerErr     error
	transferErr     error
	holdTransfers   bool
	applyOnHold     bool
	registerBarrier chan struct{}
}

func NewLedger() *Ledger {
	return &Ledger{
		registered: make(map[string]bool),
		balances:   make(map[string]*big.Int),
	}
}

func (l *Ledger) RegisterRecipient(ctx context.Context, req ports.RegisterRecipientRequest) error {
	l.mu.Lock()
	l.registerCalls++
	barrier := l.registerBarrier
	l.mu.Unlock()

	if barrier != nil {
		select {
		case <-barrier:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domainerrors.ErrLedgerNoResponse, ctx.Err())
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.registerErr != nil {
		return l.registerErr
	}
	if l.registered[req.Account] {
		return domainerrors.ErrAlreadyRegistered
	}
	l.registered[req.Account] = true
	return nil
}

func (l *Ledger) Transfer(ctx context.Context, req ports.TransferRequest) error {
	l.mu.Lock()
	l.transferCalls++
	hold, apply := l.holdTransfers, l.applyOnHold
	failure := l.transferErr
	l.mu.Unlock()

	if failure != nil {
		return failure
	}
	if hold {
		if apply {
			if err := l.credit(req); err != nil {
				return err
			}
		}
		<-ctx.Done()
		return fmt.Errorf("%w: %v", domainerrors.ErrLedgerNoResponse, ctx.Err())
	}
	return l.credit(req)
}

func (l *Ledger) credit(req ports.TransferRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.registered[req.Recipient] {
		return ErrRecipientNotRegistered
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("invalid transfer amount %q", req.Amount)
	}
	balance, ok := l.balances[req.Recipient]
	if !ok {
		balance = new(big.Int)
		l.balances[req.Recipient] = balance
	}
	balance.Add(balance, amount)
	l.transfers = append(l.transfers, req)
	return nil
}

// FailRegistrations makes every RegisterRecipient return err. Nil clears it.
func (l *Ledger) FailRegistrations(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registerErr = err
}

// FailTransfers makes every Transfer return err. Nil clears it.
func (l *Ledger) FailTransfers(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transferErr = err
}

// HoldTransfers makes Transfer block until its context ends. With apply the
// tokens still move, which is what a lost response looks like from outside.
func (l *Ledger) HoldTransfers(apply bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holdTransfers = true
	l.applyOnHold = apply
}

// BlockRegistrations makes RegisterRecipient wait until the returned func is called.
func (l *Ledger) BlockRegistrations() (release func()) {
	barrier := make(chan struct{})
	l.mu.Lock()
	l.registerBarrier = barrier
	l.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() { close(barrier) })
	}
}

func (l *Ledger) MarkRegistered(account string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.registered[account] = true
}

func (l *Ledger) Balance(account string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[account]
	if !ok {
		return "0"
	}
	return balance.String()
}

func (l *Ledger) Transfers() []ports.TransferRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := make([]ports.TransferRequest, len(l.transfers))
	copy(items, l.transfers)
	return items
}

func (l *Ledger) Calls() (register int, transfer int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registerCalls, l.transferCalls
}
