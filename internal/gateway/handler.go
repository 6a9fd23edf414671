package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Handler is the public edge: it fronts the storefront service (checkout,
// orders, payment webhook) and the inventory admin service.
type Handler struct {
	storefrontProxy *ServiceProxy
	inventoryProxy  *ServiceProxy
	logger          *slog.Logger
}

func NewHandler(storefrontProxy, inventoryProxy *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		storefrontProxy: storefrontProxy,
		inventoryProxy:  inventoryProxy,
		logger:          logger,
	}
}

func (h *Handler) HandleStorefront(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.storefrontProxy, r.URL.Path)
}

func (h *Handler) HandleInventory(w http.ResponseWriter, r *http.Request) {
	// Public /inventory paths map onto the stock service's /stock routes.
	path := "/stock" + strings.TrimPrefix(r.URL.Path, "/inventory")
	h.proxyRequest(w, r, h.inventoryProxy, path)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy, path string) {
	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		h.writeError(w, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
