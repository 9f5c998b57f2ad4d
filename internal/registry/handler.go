package registry

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/maziwa/backend/internal/auth"
	"github.com/maziwa/backend/internal/models"
)

type CreateDepotRequest struct {
	Name           string `json:"name"`
	County         string `json:"county"`
	CapacityLiters int64  `json:"capacity_liters"`
}

type CreateBranchRequest struct {
	Name   string `json:"name"`
	County string `json:"county"`
}

type Handler struct {
	svc     Service
	authSvc auth.Service
	log     *slog.Logger
}

func NewHandler(svc Service, authSvc auth.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, authSvc: authSvc, log: log}
}

// CreateDepot handles POST /api/v1/depots. Admin only.
func (h *Handler) CreateDepot(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req CreateDepotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	d, err := h.svc.CreateDepot(r.Context(), req.Name, req.County, req.CapacityLiters)
	if errors.Is(err, ErrInvalidSite) {
		http.Error(w, "name, county and a positive capacity are required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("create depot failed", "error", err)
		http.Error(w, "create depot failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(d)
}

// ListDepots handles GET /api/v1/depots.
func (h *Handler) ListDepots(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListDepots(r.Context())
	if err != nil {
		h.log.Error("list depots failed", "error", err)
		http.Error(w, "list depots failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Depot{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(list)
}

// CreateBranch handles POST /api/v1/kcc-branches. Admin only.
func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req CreateBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	b, err := h.svc.CreateBranch(r.Context(), req.Name, req.County)
	if errors.Is(err, ErrInvalidSite) {
		http.Error(w, "name and county are required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.log.Error("create branch failed", "error", err)
		http.Error(w, "create branch failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(b)
}

// ListBranches handles GET /api/v1/kcc-branches.
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListBranches(r.Context())
	if err != nil {
		h.log.Error("list branches failed", "error", err)
		http.Error(w, "list branches failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.KccBranch{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	id, role, err := h.callerFromRequest(r)
	if err != nil || id == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if role != models.RoleAdmin {
		http.Error(w, "admin only", http.StatusForbidden)
		return false
	}
	return true
}

func (h *Handler) callerFromRequest(r *http.Request) (uuid.UUID, models.Role, error) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return uuid.Nil, "", errors.New("missing bearer token")
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return uuid.Nil, "", errors.New("empty token")
	}
	return h.authSvc.ValidateToken(r.Context(), token)
}
