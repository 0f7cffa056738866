// Package api exposes the delivery engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushub/notify/internal/dispatch"
	"github.com/campushub/notify/internal/metrics"
	"github.com/campushub/notify/internal/notification"
	"github.com/campushub/notify/internal/redis"
	"github.com/campushub/notify/internal/template"
)

// dispatchTimeout bounds the background delivery started after a create or
// retry request returns.
const dispatchTimeout = 2 * time.Minute

// CreateNotificationRequest is the body of POST /v1/notifications. Either
// template_id+variables or subject+body must be present.
type CreateNotificationRequest struct {
	RecipientID string            `json:"recipient_id"`
	Channel     string            `json:"channel"`
	TemplateID  string            `json:"template_id,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Subject     string            `json:"subject,omitempty"`
	Body        string            `json:"body,omitempty"`
	ActionURL   string            `json:"action_url,omitempty"`
	IconURL     string            `json:"icon_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NotificationResponse is the JSON view of a notification.
type NotificationResponse struct {
	ID            string            `json:"id"`
	RecipientID   string            `json:"recipient_id"`
	TemplateID    *string           `json:"template_id,omitempty"`
	Channel       string            `json:"channel"`
	Status        string            `json:"status"`
	Subject       string            `json:"subject"`
	Body          string            `json:"body"`
	ActionURL     string            `json:"action_url,omitempty"`
	IconURL       string            `json:"icon_url,omitempty"`
	Metadata      map[string]string `json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
	SentAt        *time.Time        `json:"sent_at,omitempty"`
	ReadAt        *time.Time        `json:"read_at,omitempty"`
	DismissedAt   *time.Time        `json:"dismissed_at,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	SendAttempts  int               `json:"send_attempts"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	dispatcher  *dispatch.Dispatcher
	repo        notification.Repository
	idempotency *redis.IdempotencyService // nil if Redis not configured
}

// NewHandler creates a new API handler.
func NewHandler(logger *zap.Logger, dispatcher *dispatch.Dispatcher, repo notification.Repository) *Handler {
	return &Handler{
		logger:     logger,
		dispatcher: dispatcher,
		repo:       repo,
	}
}

// NewHandlerWithIdempotency creates a handler with idempotency support.
func NewHandlerWithIdempotency(logger *zap.Logger, dispatcher *dispatch.Dispatcher, repo notification.Repository, idempotency *redis.IdempotencyService) *Handler {
	return &Handler{
		logger:      logger,
		dispatcher:  dispatcher,
		repo:        repo,
		idempotency: idempotency,
	}
}

// CreateNotification handles POST /v1/notifications. The notification is
// persisted as pending and delivery starts in the background; the response
// does not wait for the send. Supports the Idempotency-Key header.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idempotencyKey := r.Header.Get("Idempotency-Key")

	var req CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.RecipientID == "" || req.Channel == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "recipient_id and channel are required")
		return
	}

	ch, err := notification.ParseChannel(req.Channel)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid channel", "channel must be email, push, or in_app")
		return
	}

	if idempotencyKey != "" && h.idempotency != nil {
		cachedResult, err := h.idempotency.CheckOrReserve(ctx, req.RecipientID, idempotencyKey)
		if err != nil {
			if errors.Is(err, redis.ErrDuplicateRequest) {
				h.writeError(w, http.StatusConflict, "duplicate_request",
					"Request is already being processed",
					"Another request with this idempotency key is in progress")
				return
			}
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		} else if cachedResult != nil {
			metrics.RecordIdempotencyHit()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotency-Replayed", "true")
			w.WriteHeader(cachedResult.StatusCode)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": cachedResult.NotificationID})
			return
		}
	}

	var n *notification.Notification
	origin := "direct"

	if req.TemplateID != "" {
		origin = "template"
		n, err = h.dispatcher.CreateFromTemplate(ctx, req.RecipientID, ch, req.TemplateID, req.Variables)
	} else {
		var content notification.Content
		var metadata notification.Metadata

		var opts []notification.ContentOption
		if req.ActionURL != "" {
			opts = append(opts, notification.WithActionURL(req.ActionURL))
		}
		if req.IconURL != "" {
			opts = append(opts, notification.WithIconURL(req.IconURL))
		}

		content, err = notification.NewContent(req.Subject, req.Body, opts...)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid content", err.Error())
			return
		}

		metadata, err = notification.NewMetadata(req.Metadata)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid metadata", err.Error())
			return
		}

		n, err = h.dispatcher.CreateDirect(ctx, req.RecipientID, ch, content, metadata)
	}

	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	metrics.RecordCreated(string(n.Channel()), origin)

	h.logger.Info("notification created",
		zap.String("id", n.ID().String()),
		zap.String("recipient_id", req.RecipientID),
		zap.String("channel", req.Channel),
		zap.String("origin", origin),
	)

	if idempotencyKey != "" && h.idempotency != nil {
		result := &redis.IdempotencyResult{
			NotificationID: n.ID().String(),
			StatusCode:     http.StatusCreated,
		}
		if err := h.idempotency.Store(ctx, req.RecipientID, idempotencyKey, result, redis.IdempotencyTTL); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	resp := toResponse(n)
	h.dispatchAsync(n.ID())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

// dispatchAsync starts delivery on a detached context so it survives the
// HTTP request that triggered it. The aggregate is reloaded so the goroutine
// works on its own copy and the version guard matches the stored row.
func (h *Handler) dispatchAsync(id uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		n, err := h.repo.GetByID(ctx, id)
		if err != nil {
			h.logger.Error("failed to load notification for dispatch",
				zap.Error(err),
				zap.String("notification_id", id.String()),
			)
			return
		}

		if err := h.dispatcher.Dispatch(ctx, n); err != nil {
			h.logger.Error("background dispatch failed",
				zap.Error(err),
				zap.String("notification_id", id.String()),
			)
		}
	}()
}

// GetNotification handles GET /v1/notifications/{id}
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	notifID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return
	}

	n, err := h.repo.GetByID(ctx, notifID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toResponse(n))
}

// ListNotifications handles GET /v1/notifications?recipient_id=xxx&page=1&page_size=20
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recipientID := r.URL.Query().Get("recipient_id")
	if recipientID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing recipient_id", "recipient_id query parameter is required")
		return
	}

	page := 1
	pageSize := 20

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if sizeStr := r.URL.Query().Get("page_size"); sizeStr != "" {
		if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
			pageSize = s
		}
	}

	notifications, err := h.repo.ListByRecipient(ctx, recipientID, page, pageSize)
	if err != nil {
		h.logger.Error("failed to list notifications",
			zap.Error(err),
			zap.String("recipient_id", recipientID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}

	data := make([]NotificationResponse, 0, len(notifications))
	for _, n := range notifications {
		data = append(data, toResponse(n))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":      data,
		"page":      page,
		"page_size": pageSize,
		"count":     len(data),
	})
}

// UnreadCount handles GET /v1/notifications/unread-count?recipient_id=xxx
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recipientID := r.URL.Query().Get("recipient_id")
	if recipientID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing recipient_id", "recipient_id query parameter is required")
		return
	}

	count, err := h.repo.CountUnread(ctx, recipientID)
	if err != nil {
		h.logger.Error("failed to count unread",
			zap.Error(err),
			zap.String("recipient_id", recipientID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to count unread notifications", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]int{"unread": count})
}

// MarkRead handles POST /v1/notifications/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(n *notification.Notification) error {
		return n.MarkRead()
	})
}

// Dismiss handles POST /v1/notifications/{id}/dismiss
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(n *notification.Notification) error {
		return n.Dismiss()
	})
}

// transition loads the notification, applies one state change, and persists
// it under the optimistic concurrency guard.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(*notification.Notification) error) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	notifID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return
	}

	n, err := h.repo.GetByID(ctx, notifID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if err := apply(n); err != nil {
		h.writeDomainError(w, err)
		return
	}

	if err := h.repo.Update(ctx, n); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.dispatcher.PublishEvents(ctx, n)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(toResponse(n))
}

// Retry handles POST /v1/notifications/{id}/retry: a failed notification is
// reset to pending and delivery starts again in the background.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	notifID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return
	}

	n, err := h.repo.GetByID(ctx, notifID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if err := n.ResetForRetry(); err != nil {
		h.writeDomainError(w, err)
		return
	}

	if err := h.repo.Update(ctx, n); err != nil {
		h.writeDomainError(w, err)
		return
	}

	metrics.RecordSenderRetry(string(n.Channel()))

	h.logger.Info("notification reset for retry",
		zap.String("id", n.ID().String()),
		zap.Int("send_attempts", n.SendAttempts()),
	)

	resp := toResponse(n)
	h.dispatchAsync(n.ID())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}

// MarkAllRead handles POST /v1/notifications/read-all?recipient_id=xxx
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recipientID := r.URL.Query().Get("recipient_id")
	if recipientID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing recipient_id", "recipient_id query parameter is required")
		return
	}

	if err := h.repo.MarkAllRead(ctx, recipientID); err != nil {
		h.logger.Error("failed to mark all read",
			zap.Error(err),
			zap.String("recipient_id", recipientID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to mark notifications read", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func toResponse(n *notification.Notification) NotificationResponse {
	s := n.Snapshot()
	return NotificationResponse{
		ID:            s.ID.String(),
		RecipientID:   s.RecipientID,
		TemplateID:    s.TemplateID,
		Channel:       string(s.Channel),
		Status:        string(s.Status),
		Subject:       s.Subject,
		Body:          s.Body,
		ActionURL:     s.ActionURL,
		IconURL:       s.IconURL,
		Metadata:      s.Metadata,
		CreatedAt:     s.CreatedAt,
		SentAt:        s.SentAt,
		ReadAt:        s.ReadAt,
		DismissedAt:   s.DismissedAt,
		FailureReason: s.FailureReason,
		SendAttempts:  s.SendAttempts,
	}
}

// writeDomainError maps domain errors to HTTP statuses: unknown entities to
// 404, transition and concurrency conflicts to 409, validation to 400.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notification.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
	case errors.Is(err, template.ErrTemplateNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Template not found", "")
	case errors.Is(err, notification.ErrVersionConflict):
		h.writeError(w, http.StatusConflict, "version_conflict", "Notification was modified concurrently", "Reload and retry")
	case isTransitionError(err):
		h.writeError(w, http.StatusConflict, "invalid_transition", "Invalid state transition", err.Error())
	case errors.Is(err, template.ErrUnsupportedChannel):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Template does not support channel", err.Error())
	case isValidationError(err):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Validation failed", err.Error())
	default:
		h.logger.Error("internal error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error", "")
	}
}

func isTransitionError(err error) bool {
	for _, target := range []error{
		notification.ErrAlreadySent,
		notification.ErrNotPending,
		notification.ErrAlreadyRead,
		notification.ErrCannotReadFailed,
		notification.ErrAlreadyDismissed,
		notification.ErrCannotDismissFailed,
		notification.ErrNotFailed,
		notification.ErrTerminalStatus,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isValidationError(err error) bool {
	for _, target := range []error{
		notification.ErrSubjectRequired,
		notification.ErrSubjectTooLong,
		notification.ErrBodyRequired,
		notification.ErrBodyTooLong,
		notification.ErrActionURLTooLong,
		notification.ErrIconURLTooLong,
		notification.ErrTooManyMetadataEntries,
		notification.ErrMetadataKeyRequired,
		notification.ErrMetadataKeyTooLong,
		notification.ErrMetadataValueTooLong,
		notification.ErrRecipientRequired,
		notification.ErrInvalidChannel,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
