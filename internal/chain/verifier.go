package chain

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TxHashPattern is the accepted transaction hash format.
var TxHashPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// Verification outcomes reported to the observer.
const (
	OutcomeVerified    = "verified"
	OutcomeMalformed   = "malformed"
	OutcomeNotFound    = "not_found"
	OutcomeWrongTo     = "wrong_recipient"
	OutcomeWrongSender = "wrong_sender"
	OutcomeReverted    = "reverted"
	OutcomeUnderpaid   = "underpaid"
	OutcomeRPCError    = "rpc_error"
	OutcomeBreakerOpen = "breaker_open"
)

// Payment is a claimed on-chain transfer to the platform contract.
type Payment struct {
	TxHash string
	From   string
	Amount decimal.Decimal
}

// PaymentVerifier confirms a claimed payment. It fails closed: any error means false.
type PaymentVerifier interface {
	Verify(ctx context.Context, p Payment) bool
}

// TxReader is the read side of the chain the verifier needs.
type TxReader interface {
	TransactionByHash(ctx context.Context, hash string) (*Transaction, error)
	TransactionReceipt(ctx context.Context, hash string) (*Receipt, error)
}

// VerifierConfig holds verifier settings.
type VerifierConfig struct {
	ContractAddress string
	TokenDecimals   int32
	VerifySender    bool
}

// Verifier checks payments against a node through a circuit breaker.
type Verifier struct {
	reader   TxReader
	breaker  *Breaker
	cfg      VerifierConfig
	log      *zap.Logger
	observer func(outcome string)
}

// NewVerifier creates a verifier. observer may be nil.
func NewVerifier(reader TxReader, breaker *Breaker, cfg VerifierConfig, log *zap.Logger, observer func(string)) *Verifier {
	if observer == nil {
		observer = func(string) {}
	}
	return &Verifier{
		reader:   reader,
		breaker:  breaker,
		cfg:      cfg,
		log:      log,
		observer: observer,
	}
}

// Verify implements PaymentVerifier.
func (v *Verifier) Verify(ctx context.Context, p Payment) bool {
	outcome := v.check(ctx, p)
	v.observer(outcome)

	if outcome != OutcomeVerified {
		v.log.Warn("payment not verified",
			zap.String("tx_hash", p.TxHash),
			zap.String("from", p.From),
			zap.String("amount", p.Amount.String()),
			zap.String("outcome", outcome),
		)
		return false
	}
	return true
}

func (v *Verifier) check(ctx context.Context, p Payment) string {
	if !TxHashPattern.MatchString(p.TxHash) {
		return OutcomeMalformed
	}

	var (
		tx      *Transaction
		receipt *Receipt
	)
	err := v.breaker.Do(func() error {
		var err error
		tx, err = v.reader.TransactionByHash(ctx, p.TxHash)
		if err != nil {
			return transportOnly(err)
		}
		receipt, err = v.reader.TransactionReceipt(ctx, p.TxHash)
		return transportOnly(err)
	})

	switch {
	case errors.Is(err, ErrBreakerOpen):
		return OutcomeBreakerOpen
	case err != nil:
		v.log.Error("chain rpc failed", zap.String("tx_hash", p.TxHash), zap.Error(err))
		return OutcomeRPCError
	case tx == nil || receipt == nil:
		return OutcomeNotFound
	}

	if !strings.EqualFold(tx.To, v.cfg.ContractAddress) {
		return OutcomeWrongTo
	}

	if p.From != "" && !strings.EqualFold(tx.From, p.From) {
		if v.cfg.VerifySender {
			return OutcomeWrongSender
		}
		v.log.Info("payment sender differs from caller wallet",
			zap.String("tx_hash", p.TxHash),
			zap.String("tx_from", tx.From),
			zap.String("wallet", p.From),
		)
	}

	if !receipt.Succeeded() {
		return OutcomeReverted
	}

	if tx.Value == nil || tx.Value.Cmp(ToBaseUnits(p.Amount, v.cfg.TokenDecimals)) < 0 {
		return OutcomeUnderpaid
	}

	return OutcomeVerified
}

// transportOnly keeps "not found" out of the breaker's failure count.
func transportOnly(err error) error {
	if errors.Is(err, ErrTxNotFound) {
		return nil
	}
	return err
}

// Static is a verifier with a fixed answer, used when no RPC endpoint is configured.
type Static bool

// Verify accepts well-formed hashes when s is true and rejects everything otherwise.
func (s Static) Verify(_ context.Context, p Payment) bool {
	return bool(s) && TxHashPattern.MatchString(p.TxHash)
}
