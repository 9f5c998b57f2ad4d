package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// MpesaPayoutJobArgs carries one redemption payout. Inserted with InsertTx
// inside the redemption transaction, so the job exists exactly when the
// pending transaction does.
type MpesaPayoutJobArgs struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Phone         string    `json:"phone"`
	AmountCents   int64     `json:"amount_cents"`
}

func (MpesaPayoutJobArgs) Kind() string { return "mpesa_payout" }

// PayoutGateway initiates the cash transfer; may be slow and network-bound.
type PayoutGateway interface {
	Payout(ctx context.Context, phone string, amountCents int64) (gatewayRef string, err error)
}

// RedemptionCompleter flips the redemption transaction to completed after a
// confirmed payout.
type RedemptionCompleter interface {
	MarkPaidOut(ctx context.Context, transactionID uuid.UUID) error
}

// MpesaPayoutWorker performs the out-of-band half of a cash redemption. A
// gateway failure returns an error so river retries; a redemption whose
// retries run out stays pending and shows up in the unsettled query.
type MpesaPayoutWorker struct {
	river.WorkerDefaults[MpesaPayoutJobArgs]
	gateway     PayoutGateway
	redemptions RedemptionCompleter
	logger      *slog.Logger
}

func NewMpesaPayoutWorker(gateway PayoutGateway, redemptions RedemptionCompleter, logger *slog.Logger) *MpesaPayoutWorker {
	return &MpesaPayoutWorker{gateway: gateway, redemptions: redemptions, logger: logger}
}

func (w *MpesaPayoutWorker) Work(ctx context.Context, job *river.Job[MpesaPayoutJobArgs]) error {
	args := job.Args

	ref, err := w.gateway.Payout(ctx, args.Phone, args.AmountCents)
	if err != nil {
		return fmt.Errorf("mpesa payout for transaction %s: %w", args.TransactionID, err)
	}
	if err := w.redemptions.MarkPaidOut(ctx, args.TransactionID); err != nil {
		// Paid out but not recorded: retrying is safe, MarkPaidOut refuses
		// a second terminal transition.
		return fmt.Errorf("mark redemption %s paid out: %w", args.TransactionID, err)
	}
	w.logger.Info("mpesa payout completed",
		"transaction_id", args.TransactionID, "amount_cents", args.AmountCents, "gateway_ref", ref)
	return nil
}
