package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campushub/api/internal/platform/httpx"
	"github.com/campushub/api/internal/services"
)

const maxOrderExpiry = 7 * 24 * time.Hour

// OrderHandlers exposes the parcel order lifecycle.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/transition", h.transitionOrder)
	r.Post("/{orderID}/rate", h.rateOrder)
	r.Post("/{orderID}/payment", h.setPaymentStatus)
}

type createOrderRequest struct {
	Description      string `json:"description" validate:"required,max=1000"`
	PickupCode       string `json:"pickupCode" validate:"max=64"`
	Destination      string `json:"destination" validate:"required,max=1000"`
	Reward           int64  `json:"reward" validate:"gte=0"`
	ExpiresInMinutes int    `json:"expiresInMinutes" validate:"gte=0,max=10080"`
}

type transitionOrderRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted picked delivered completed cancelled"`
	Note   string `json:"note" validate:"max=500"`
}

func (r *transitionOrderRequest) normalize() {
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
}

type rateOrderRequest struct {
	Score   int    `json:"score" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=500"`
}

type paymentStatusRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID                 string            `json:"id"`
	OrderNumber        string            `json:"orderNumber"`
	CustomerID         string            `json:"customerId"`
	HelperID           string            `json:"helperId,omitempty"`
	Status             string            `json:"status"`
	Description        string            `json:"description"`
	PickupCode         string            `json:"pickupCode,omitempty"`
	Destination        string            `json:"destination"`
	Reward             int64             `json:"reward"`
	PaymentStatus      string            `json:"paymentStatus,omitempty"`
	Timeline           []timelinePayload `json:"timeline"`
	Rating             *ratingPayload    `json:"rating,omitempty"`
	AllowedTransitions []string          `json:"allowedTransitions"`
	ExpiresAt          string            `json:"expiresAt"`
	CreatedAt          string            `json:"createdAt"`
	UpdatedAt          string            `json:"updatedAt"`
}

type timelinePayload struct {
	Action     string `json:"action"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	OperatorID string `json:"operatorId"`
	Note       string `json:"note,omitempty"`
}

type ratingPayload struct {
	Score     int    `json:"score"`
	Comment   string `json:"comment,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !bindJSON(w, r, &req) {
		return
	}
	expiresIn := time.Duration(req.ExpiresInMinutes) * time.Minute
	if expiresIn > maxOrderExpiry {
		expiresIn = maxOrderExpiry
	}
	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		Customer:    actor,
		Description: req.Description,
		PickupCode:  req.PickupCode,
		Destination: req.Destination,
		Reward:      req.Reward,
		ExpiresIn:   expiresIn,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderID"), actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req transitionOrderRequest
	if !bindJSON(w, r, &req) {
		return
	}
	order, err := h.orders.Transition(ctx, services.TransitionOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Actor:   actor,
		Status:  req.Status,
		Note:    req.Note,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) rateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req rateOrderRequest
	if !bindJSON(w, r, &req) {
		return
	}
	order, err := h.orders.Rate(ctx, services.RateOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Actor:   actor,
		Score:   req.Score,
		Comment: req.Comment,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) setPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req paymentStatusRequest
	if !bindJSON(w, r, &req) {
		return
	}
	order, err := h.orders.SetPaymentStatus(ctx, services.SetPaymentStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Actor:   actor,
		Status:  req.Status,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		CustomerID:         order.CustomerID,
		HelperID:           order.HelperID,
		Status:             string(order.Status),
		Description:        order.Description,
		PickupCode:         order.PickupCode,
		Destination:        order.Destination,
		Reward:             order.Reward,
		PaymentStatus:      order.PaymentStatus,
		Timeline:           make([]timelinePayload, 0, len(order.Timeline)),
		AllowedTransitions: []string{},
		ExpiresAt:          formatTime(order.ExpiresAt),
		CreatedAt:          formatTime(order.CreatedAt),
		UpdatedAt:          formatTime(order.UpdatedAt),
	}
	for _, entry := range order.Timeline {
		payload.Timeline = append(payload.Timeline, timelinePayload{
			Action:     entry.Action,
			Status:     string(entry.Status),
			Timestamp:  formatTime(entry.Timestamp),
			OperatorID: entry.OperatorID,
			Note:       entry.Note,
		})
	}
	for _, next := range services.AllowedTransitions(order.Status) {
		payload.AllowedTransitions = append(payload.AllowedTransitions, string(next))
	}
	if order.Rating != nil {
		payload.Rating = &ratingPayload{
			Score:     order.Rating.Score,
			Comment:   order.Rating.Comment,
			CreatedAt: formatTime(order.Rating.CreatedAt),
		}
	}
	return payload
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
