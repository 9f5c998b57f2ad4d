package dashboard

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maziwa/backend/internal/auth"
	"github.com/maziwa/backend/internal/models"
	"github.com/maziwa/backend/internal/repository"
)

type Handler struct {
	authSvc auth.Service
	userR   *repository.UserRepo
	walletR *repository.WalletRepo
	txR     *repository.TransactionRepo
	apiKeyR *repository.APIKeyRepo
	log     *slog.Logger
}

func NewHandler(
	authSvc auth.Service,
	userR *repository.UserRepo,
	walletR *repository.WalletRepo,
	txR *repository.TransactionRepo,
	apiKeyR *repository.APIKeyRepo,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		authSvc: authSvc,
		userR:   userR,
		walletR: walletR,
		txR:     txR,
		apiKeyR: apiKeyR,
		log:     log,
	}
}

func (h *Handler) callerFromRequest(r *http.Request) (uuid.UUID, models.Role, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return uuid.Nil, "", fmt.Errorf("missing authorization")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return uuid.Nil, "", fmt.Errorf("bad authorization format")
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return uuid.Nil, "", fmt.Errorf("empty token")
	}
	return h.authSvc.ValidateToken(r.Context(), token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/wallet/me
func (h *Handler) GetWalletMe(w http.ResponseWriter, r *http.Request) {
	userID, _, err := h.callerFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	u, err := h.userR.GetByID(r.Context(), userID)
	if err != nil {
		h.log.Error("get user failed", "error", err)
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	wal, err := h.walletR.GetOrCreate(r.Context(), userID)
	if err != nil {
		h.log.Error("get wallet failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":               u.ID,
		"phone":                 u.Phone,
		"name":                  u.Name,
		"role":                  u.Role,
		"balance_cents":         wal.BalanceCents,
		"send_limit_cents":      wal.SendLimitCents,
		"receive_limit_cents":   wal.ReceiveLimitCents,
		"send_used_today_cents": wal.SendUsedOn(time.Now()),
		"is_locked":             wal.IsLocked,
		"transaction_count":     wal.TransactionCount,
		"last_transaction_at":   wal.LastTransactionAt,
		"created_at":            wal.CreatedAt,
	})
}

// GET /api/v1/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, _, err := h.callerFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	txs, err := h.txR.FindByUser(r.Context(), userID, 100)
	if err != nil {
		h.log.Error("list transactions failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// PATCH /api/v1/wallets/{userID}/limits (admin only)
func (h *Handler) UpdateWalletLimits(w http.ResponseWriter, r *http.Request) {
	targetID, ok := h.adminTarget(w, r)
	if !ok {
		return
	}
	var body struct {
		SendLimitCents    *int64 `json:"send_limit_cents"`
		ReceiveLimitCents *int64 `json:"receive_limit_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	wal, err := h.walletR.GetOrCreate(r.Context(), targetID)
	if err != nil {
		h.log.Error("get wallet failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	sendLimit, receiveLimit := wal.SendLimitCents, wal.ReceiveLimitCents
	if body.SendLimitCents != nil {
		sendLimit = *body.SendLimitCents
	}
	if body.ReceiveLimitCents != nil {
		receiveLimit = *body.ReceiveLimitCents
	}
	if sendLimit < 0 || receiveLimit < 0 {
		http.Error(w, "limits must be >= 0", http.StatusBadRequest)
		return
	}
	if err := h.walletR.UpdateLimits(r.Context(), targetID, sendLimit, receiveLimit); err != nil {
		h.log.Error("update limits failed", "error", err)
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/v1/wallets/{userID}/lock (admin only)
func (h *Handler) LockWallet(w http.ResponseWriter, r *http.Request) {
	targetID, ok := h.adminTarget(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := h.walletR.SetLocked(r.Context(), targetID, true, body.Reason); err != nil {
		h.log.Error("lock wallet failed", "error", err)
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "locked"})
}

// POST /api/v1/wallets/{userID}/unlock (admin only)
func (h *Handler) UnlockWallet(w http.ResponseWriter, r *http.Request) {
	targetID, ok := h.adminTarget(w, r)
	if !ok {
		return
	}
	if err := h.walletR.SetLocked(r.Context(), targetID, false, ""); err != nil {
		h.log.Error("unlock wallet failed", "error", err)
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

// GET /api/v1/api-keys
func (h *Handler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	userID, _, err := h.callerFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	keys, err := h.apiKeyR.ListByUserID(r.Context(), userID)
	if err != nil {
		h.log.Error("list api keys failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// POST /api/v1/api-keys
func (h *Handler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	userID, _, err := h.callerFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		http.Error(w, "key generation failed", http.StatusInternalServerError)
		return
	}
	rawKey := "mzw_" + hex.EncodeToString(rawBytes)
	hash := sha256.Sum256([]byte(rawKey))
	keyHash := hex.EncodeToString(hash[:])
	keyPrefix := rawKey[:12]

	k := &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		IsActive:  true,
	}
	if err := h.apiKeyR.Create(r.Context(), k); err != nil {
		h.log.Error("create api key failed", "error", err)
		http.Error(w, "create failed", http.StatusInternalServerError)
		return
	}
	// raw_key is shown exactly once; only its hash is stored.
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         k.ID,
		"key_prefix": k.KeyPrefix,
		"is_active":  k.IsActive,
		"raw_key":    rawKey,
	})
}

// DELETE /api/v1/api-keys/{id}
func (h *Handler) DeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	userID, _, err := h.callerFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	keyID, err := lastPathUUID(r)
	if err != nil {
		http.Error(w, "invalid key ID", http.StatusBadRequest)
		return
	}
	keys, err := h.apiKeyR.ListByUserID(r.Context(), userID)
	if err != nil {
		h.log.Error("list api keys failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	owned := false
	for _, k := range keys {
		if k.ID == keyID {
			owned = true
			break
		}
	}
	if !owned {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}
	if err := h.apiKeyR.Delete(r.Context(), keyID); err != nil {
		h.log.Error("delete api key failed", "error", err)
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// adminTarget authorizes the caller as admin and extracts the target user ID
// from the path, e.g. /api/v1/wallets/{userID}/lock.
func (h *Handler) adminTarget(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	_, role, err := h.callerFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	if role != models.RoleAdmin {
		http.Error(w, "admin only", http.StatusForbidden)
		return uuid.Nil, false
	}
	parts := strings.Split(strings.TrimRight(r.URL.Path, "/"), "/")
	if len(parts) < 2 {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return uuid.Nil, false
	}
	targetID, err := uuid.Parse(parts[len(parts)-2])
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return targetID, true
}

func lastPathUUID(r *http.Request) (uuid.UUID, error) {
	parts := strings.Split(strings.TrimRight(r.URL.Path, "/"), "/")
	return uuid.Parse(parts[len(parts)-1])
}
