// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"atlas/internal/pkg/idempotency"
	"atlas/internal/service/order/application"
	"atlas/internal/service/order/domain"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

const serviceName = "order-admin-service"

var operationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "order_admin_operations_total",
		Help: "Order admin operations by action and outcome.",
	},
	[]string{"action", "outcome"},
)

// OrderAdminHandler 暴露订单管理操作的 HTTP 入口。
type OrderAdminHandler struct {
	service *application.LifecycleService
}

func NewOrderAdminHandler(service *application.LifecycleService) *OrderAdminHandler {
	return &OrderAdminHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *OrderAdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /admin/orders/cancel", h.cancelHandler)
	mux.HandleFunc("POST /admin/orders/refund", h.refundHandler)
	mux.HandleFunc("POST /admin/orders/batch", h.batchHandler)
}

type cancelRequest struct {
	OrderNo   string `json:"order_no"`
	Reason    string `json:"reason"`
	RequestID string `json:"request_id"`
}

type refundRequest struct {
	OrderNo      string  `json:"order_no"`
	RefundAmount float64 `json:"refund_amount"`
	Reason       string  `json:"reason"`
	RequestID    string  `json:"request_id"`
}

type batchRequest struct {
	Action    string   `json:"action"`
	OrderNos  []string `json:"order_nos"`
	Reason    string   `json:"reason"`
	RequestID string   `json:"request_id"`
}

type mutationResponse struct {
	OrderNo           string `json:"order_no"`
	From              string `json:"from"`
	To                string `json:"to"`
	Version           int64  `json:"version"`
	RevocationWarning string `json:"revocation_warning,omitempty"`
}

func (h *OrderAdminHandler) cancelHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.CancelOrder")
	defer span.End()

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, pkgerrors.Wrap(err, "invalid cancel request body"))
		return
	}
	if req.OrderNo == "" {
		writeBadRequest(w, pkgerrors.New("order_no is required"))
		return
	}
	span.SetAttributes(attribute.String("order.no", req.OrderNo))

	result, err := h.service.CancelOrder(ctx, req.OrderNo, req.Reason, req.RequestID)
	h.writeMutationResult(w, "cancel", result, err)
}

func (h *OrderAdminHandler) refundHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.RefundOrder")
	defer span.End()

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, pkgerrors.Wrap(err, "invalid refund request body"))
		return
	}
	if req.OrderNo == "" {
		writeBadRequest(w, pkgerrors.New("order_no is required"))
		return
	}
	span.SetAttributes(attribute.String("order.no", req.OrderNo))

	result, err := h.service.RefundOrder(ctx, req.OrderNo, req.RefundAmount, req.Reason, req.RequestID)
	h.writeMutationResult(w, "refund", result, err)
}

func (h *OrderAdminHandler) batchHandler(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := otel.Tracer(serviceName).Start(ctx, "http.BatchProcess")
	defer span.End()

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, pkgerrors.Wrap(err, "invalid batch request body"))
		return
	}
	if len(req.OrderNos) == 0 {
		writeBadRequest(w, pkgerrors.New("order_nos must not be empty"))
		return
	}
	span.SetAttributes(
		attribute.String("batch.action", req.Action),
		attribute.Int("batch.size", len(req.OrderNos)),
	)

	summary, err := h.service.BatchProcess(ctx, req.Action, req.OrderNos, req.Reason, req.RequestID)
	if err != nil {
		operationsTotal.WithLabelValues("batch", application.ErrorCode(err)).Inc()
		writeError(w, err)
		return
	}
	operationsTotal.WithLabelValues("batch", "OK").Inc()
	writeJSON(w, http.StatusOK, summary)
}

func (h *OrderAdminHandler) writeMutationResult(w http.ResponseWriter, action string, result *application.MutationResult, err error) {
	if err != nil {
		operationsTotal.WithLabelValues(action, application.ErrorCode(err)).Inc()
		writeError(w, err)
		return
	}
	operationsTotal.WithLabelValues(action, "OK").Inc()

	resp := mutationResponse{
		OrderNo: result.OrderNo,
		From:    string(result.From),
		To:      string(result.To),
		Version: result.NewVersion,
	}
	if result.RevocationErr != nil {
		resp.RevocationWarning = result.RevocationErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError 把错误分类映射到 HTTP 状态码。
// AlreadyProcessed 对调用方是成功等价的，返回 200 但带上区分标记，
// 让前端不要把它渲染成失败。
func writeError(w http.ResponseWriter, err error) {
	code := application.ErrorCode(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, idempotency.ErrAlreadyProcessed):
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_processed"})
		return
	case errors.Is(err, domain.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, idempotency.ErrBusy), errors.Is(err, domain.ErrConcurrentConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrTooManyItems),
		errors.Is(err, domain.ErrInvalidRefundAmount),
		errors.Is(err, domain.ErrUnsupportedAction):
		status = http.StatusBadRequest
	default:
		var illegal *domain.IllegalTransitionError
		if errors.As(err, &illegal) {
			status = http.StatusUnprocessableEntity
		}
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
