package router

import (
	"net/http"
	"strings"

	"github.com/maziwa/backend/internal/auth"
	"github.com/maziwa/backend/internal/dashboard"
	"github.com/maziwa/backend/internal/registry"
)

// New returns an http.Handler serving the account/site API under /api/v1:
// registration, login, wallet dashboard, admin wallet controls and the
// depot/branch registry.
func New(authHandler *auth.Handler, registryHandler *registry.Handler, dashHandler *dashboard.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	mux.HandleFunc(base+"/auth/register", methodPOST(authHandler.Register))
	mux.HandleFunc(base+"/auth/login", methodPOST(authHandler.Login))

	mux.HandleFunc(base+"/depots", sitesHandler(registryHandler.CreateDepot, registryHandler.ListDepots))
	mux.HandleFunc(base+"/kcc-branches", sitesHandler(registryHandler.CreateBranch, registryHandler.ListBranches))

	mux.HandleFunc(base+"/wallet/me", methodGET(dashHandler.GetWalletMe))
	mux.HandleFunc(base+"/transactions", methodGET(dashHandler.ListTransactions))

	mux.HandleFunc(base+"/wallets/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPatch && strings.HasSuffix(r.URL.Path, "/limits"):
			dashHandler.UpdateWalletLimits(w, r)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/lock"):
			dashHandler.LockWallet(w, r)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/unlock"):
			dashHandler.UnlockWallet(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc(base+"/api-keys", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			dashHandler.ListAPIKeys(w, r)
		case http.MethodPost:
			dashHandler.CreateAPIKey(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc(base+"/api-keys/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && strings.Count(r.URL.Path, "/") >= 4 {
			dashHandler.DeleteAPIKey(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	return mux
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func sitesHandler(create, list http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			create(w, r)
		case http.MethodGet:
			list(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
