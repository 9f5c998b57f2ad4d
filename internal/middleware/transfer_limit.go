package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ctxTransferKey contextKey = "parsed_transfer"

// parsedTransfer is stored in context so the handler can read the amount
// without re-parsing the body.
type parsedTransfer struct {
	AmountCents int64 `json:"amount_cents"`
}

// TransferAmountFromCtx returns the amount parsed by TransferLimitCheck,
// or 0 if not set.
func TransferAmountFromCtx(ctx context.Context) int64 {
	if p, ok := ctx.Value(ctxTransferKey).(*parsedTransfer); ok {
		return p.AmountCents
	}
	return 0
}

// TransferLimitCheck rejects transfers from locked wallets and transfers
// that would blow the sender's daily send limit, before the handler runs.
// Reads the body to extract "amount_cents", then replaces r.Body so the
// handler can re-read it. The transfer engine re-checks all of this under
// the row lock; this is the cheap early answer for the common case.
func TransferLimitCheck(pool *pgxpool.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromCtx(r.Context())
			if u == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek parsedTransfer
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.AmountCents <= 0 {
				http.Error(w, `{"error":"amount_cents must be > 0"}`, http.StatusBadRequest)
				return
			}

			state, err := walletStateFn(r.Context(), pool, u.ID)
			if err != nil {
				http.Error(w, `{"error":"failed to check wallet"}`, http.StatusInternalServerError)
				return
			}
			if state.Locked {
				http.Error(w, `{"error":"wallet is locked"}`, http.StatusForbidden)
				return
			}
			if state.UsedTodayCents+peek.AmountCents > state.SendLimitCents {
				http.Error(w, fmt.Sprintf(
					`{"error":"amount %d plus %d already sent today exceeds daily limit %d"}`,
					peek.AmountCents, state.UsedTodayCents, state.SendLimitCents), http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), ctxTransferKey, &peek)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// walletState is the slice of wallet state the limit check needs.
type walletState struct {
	Locked         bool
	SendLimitCents int64
	UsedTodayCents int64
}

// walletStateFn loads the sender's wallet state.
// Tests can replace this to avoid hitting a real database.
var walletStateFn = defaultWalletState

func defaultWalletState(ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID) (*walletState, error) {
	var s walletState
	err := pool.QueryRow(ctx, `
		SELECT is_locked, send_limit_cents,
		       CASE WHEN last_reset_date = CURRENT_DATE THEN send_used_today_cents ELSE 0 END
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&s.Locked, &s.SendLimitCents, &s.UsedTodayCents)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
