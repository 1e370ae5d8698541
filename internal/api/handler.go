package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/service"
	"github.com/fathima-sithara/realtime-service/internal/utils"
)

// PresenceLookup reads the shared presence record. *presence.Directory
// implements it.
type PresenceLookup interface {
	Get(ctx context.Context, userID string) (presence.Status, error)
}

type Handler struct {
	svc      *service.Service
	calls    *service.CallRelay
	profiles service.Profiles
	dir      PresenceLookup
	timeout  time.Duration
	log      *zap.Logger
}

func NewHandler(svc *service.Service, calls *service.CallRelay, profiles service.Profiles, dir PresenceLookup, timeout time.Duration, log *zap.Logger) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, calls: calls, profiles: profiles, dir: dir, timeout: timeout, log: log}
}

func (h *Handler) ctx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	if utils.StatusFor(err) >= fiber.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return utils.AppError(c, err)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "connections": h.svc.Registry().Count()})
}

// Presence prefers the local registry, then the shared directory, then the
// stored last-seen time.
func (h *Handler) Presence(c *fiber.Ctx) error {
	uid := c.Params("user_id")
	if uid == "" {
		return utils.JSONError(c, fiber.StatusBadRequest, "user_id required")
	}
	if h.svc.Registry().Online(uid) {
		return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"user_id": uid, "online": true})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if h.dir != nil {
		st, err := h.dir.Get(ctx, uid)
		if err == nil && (st.Online || st.LastSeen != nil) {
			return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"user_id": uid, "online": st.Online, "last_seen": st.LastSeen})
		}
		if err != nil {
			h.log.Warn("presence directory read failed", zap.String("user", uid), zap.Error(err))
		}
	}
	p, err := h.profiles.Profile(ctx, uid)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"user_id": uid, "online": false, "last_seen": p.LastSeen})
}

func (h *Handler) DirectPins(c *fiber.Ctx) error {
	return h.pins(c, domain.DirectConversation(userID(c), c.Params("peer")))
}

func (h *Handler) GroupPins(c *fiber.Ctx) error {
	return h.pins(c, domain.GroupConversation(c.Params("group_id")))
}

func (h *Handler) pins(c *fiber.Ctx, conv domain.ConversationKey) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	items, err := h.svc.ListPinned(ctx, userID(c), conv)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, items)
}

func (h *Handler) DirectHistory(c *fiber.Ctx) error {
	return h.history(c, domain.DirectConversation(userID(c), c.Params("peer")))
}

func (h *Handler) GroupHistory(c *fiber.Ctx) error {
	return h.history(c, domain.GroupConversation(c.Params("group_id")))
}

func (h *Handler) history(c *fiber.Ctx, conv domain.ConversationKey) error {
	limit, err := strconv.Atoi(c.Query("limit", "0"))
	if err != nil {
		return h.fail(c, apperr.Validation("limit must be a number"))
	}
	var before time.Time
	if b := c.Query("before"); b != "" {
		if before, err = time.Parse(time.RFC3339, b); err != nil {
			return h.fail(c, apperr.Validation("before must be RFC3339"))
		}
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	msgs, err := h.svc.History(ctx, userID(c), conv, limit, before)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, msgs)
}

type finalizeRequest struct {
	Status   domain.CallStatus `json:"status" validate:"required"`
	Duration int               `json:"duration" validate:"gte=0"`
}

func (h *Handler) FinalizeCall(c *fiber.Ctx) error {
	var body finalizeRequest
	if err := c.BodyParser(&body); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "invalid body")
	}
	if err := utils.ValidateStruct(body); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	l, err := h.calls.FinalizeLog(ctx, userID(c), c.Params("id"), body.Status, body.Duration)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, l)
}
