package main

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maziwa/backend/internal/handlers"
	"github.com/maziwa/backend/internal/middleware"
	"github.com/maziwa/backend/internal/models"
	"github.com/maziwa/backend/internal/repository"
)

// RegisterV1Routes adds the /v1/ ledger API endpoints to the given mux.
// Human actors authenticate with JWTs; the gateway callback uses API keys.
func RegisterV1Routes(
	mux *http.ServeMux,
	pool *pgxpool.Pool,
	apiKeyRepo *repository.APIKeyRepo,
	userRepo *repository.UserRepo,
	milk *handlers.MilkHandler,
	transfers *handlers.TransferHandler,
	tokens *handlers.TokenHandler,
	redemptions *handlers.RedemptionHandler,
	gateway *handlers.GatewayHandler,
	validator middleware.TokenValidator,
) {
	jwtAuth := middleware.JWTAuth(validator, userRepo)
	apiKeyAuth := middleware.APIKeyAuth(apiKeyRepo)
	transferLimit := middleware.TransferLimitCheck(pool)
	depotOnly := middleware.RequireRole(models.RoleDepotAttendant, models.RoleAdmin)
	kccOnly := middleware.RequireRole(models.RoleKccAttendant, models.RoleAdmin)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	// Milk deposit workflow (depot attendants).
	mux.Handle("POST /v1/milk/deposits", jwtAuth(depotOnly(http.HandlerFunc(milk.RecordDeposit))))
	mux.Handle("POST /v1/milk/deposits/{id}/settle", jwtAuth(depotOnly(http.HandlerFunc(milk.SettleDeposit))))
	mux.Handle("GET /v1/milk/deposits/code/{code}", jwtAuth(http.HandlerFunc(milk.FindDeposit)))

	// KCC pickup workflow.
	mux.Handle("POST /v1/milk/pickups", jwtAuth(kccOnly(http.HandlerFunc(milk.RecordPickup))))
	mux.Handle("POST /v1/milk/pickups/{id}/settle", jwtAuth(kccOnly(http.HandlerFunc(milk.SettlePickup))))
	mux.Handle("GET /v1/milk/obligations", jwtAuth(http.HandlerFunc(milk.ListObligations)))

	// Pickup signals: depots raise them, KCC attendants claim them.
	mux.Handle("POST /v1/milk/signals", jwtAuth(depotOnly(http.HandlerFunc(milk.CreateSignal))))
	mux.Handle("POST /v1/milk/signals/{id}/accept", jwtAuth(kccOnly(http.HandlerFunc(milk.AcceptSignal))))
	mux.Handle("POST /v1/milk/signals/{id}/complete", jwtAuth(kccOnly(http.HandlerFunc(milk.CompleteSignal))))
	mux.Handle("POST /v1/milk/signals/{id}/release", jwtAuth(kccOnly(http.HandlerFunc(milk.ReleaseSignal))))
	mux.Handle("POST /v1/milk/signals/{id}/cancel", jwtAuth(depotOnly(http.HandlerFunc(milk.CancelSignal))))

	// Pasteurized-milk deliveries.
	mux.Handle("POST /v1/milk/deliveries", jwtAuth(depotOnly(http.HandlerFunc(milk.RequestDelivery))))
	mux.Handle("POST /v1/milk/deliveries/confirm", jwtAuth(kccOnly(http.HandlerFunc(milk.ConfirmDelivery))))
	mux.Handle("POST /v1/milk/deliveries/{id}/cancel", jwtAuth(depotOnly(http.HandlerFunc(milk.CancelDelivery))))

	// Transfers: any wallet holder, subject to daily-limit and lock checks.
	mux.Handle("POST /v1/transfers", jwtAuth(transferLimit(http.HandlerFunc(transfers.Transfer))))
	mux.Handle("POST /v1/transfers/bulk", jwtAuth(http.HandlerFunc(transfers.BulkTransfer)))

	// Token supply ledger. Reads are open to any authed user, mutations are
	// admin only.
	mux.Handle("GET /v1/tokens/supply", jwtAuth(http.HandlerFunc(tokens.GetSupply)))
	mux.Handle("GET /v1/tokens/activities", jwtAuth(http.HandlerFunc(tokens.ListActivities)))
	mux.Handle("POST /v1/tokens/mint", jwtAuth(adminOnly(http.HandlerFunc(tokens.Mint))))
	mux.Handle("POST /v1/tokens/burn", jwtAuth(adminOnly(http.HandlerFunc(tokens.Burn))))
	mux.Handle("POST /v1/tokens/price", jwtAuth(adminOnly(http.HandlerFunc(tokens.AdjustPrice))))

	// Cash redemption and token purchase.
	mux.Handle("GET /v1/redemptions/quote", jwtAuth(http.HandlerFunc(redemptions.Quote)))
	mux.Handle("POST /v1/redemptions", jwtAuth(http.HandlerFunc(redemptions.Redeem)))
	mux.Handle("POST /v1/purchases", jwtAuth(http.HandlerFunc(redemptions.Buy)))

	// Payment-gateway result callback (machine caller).
	mux.Handle("POST /v1/gateway/mpesa", apiKeyAuth(http.HandlerFunc(gateway.MpesaCallback)))
}
