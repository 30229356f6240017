package httpgin

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kirinyoku/bookit/internal/domain"
	"github.com/kirinyoku/bookit/internal/metrics"
	"github.com/kirinyoku/bookit/internal/reference"
	redisrepo "github.com/kirinyoku/bookit/internal/repository/redis"
	"github.com/kirinyoku/bookit/internal/service"
	"github.com/kirinyoku/bookit/internal/service/booking"
	"github.com/kirinyoku/bookit/internal/service/catalog"
	"github.com/kirinyoku/bookit/internal/service/promo"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	msgInternal     = "Internal server error"
	idemLockTTL     = 60 * time.Second
	idemScopeCreate = "bookings"
)

type Deps struct {
	Services *service.Services
	Idem     *redisrepo.IdempotencyStore
	Limiter  *redisrepo.Limiter
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type handlers struct {
	svcs    *service.Services
	idem    *redisrepo.IdempotencyStore
	limiter *redisrepo.Limiter
	logger  *slog.Logger
}

func NewRouter(deps Deps, middlewares ...gin.HandlerFunc) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &handlers{svcs: deps.Services, idem: deps.Idem, limiter: deps.Limiter, logger: logger}

	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), MetricsMiddleware(deps.Metrics), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "Server is running"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	experiences := api.Group("/experiences")
	{
		experiences.GET("", h.handleListExperiences)
		experiences.GET("/:id", h.handleGetExperience)
		experiences.POST("", h.handleCreateExperience)
		experiences.PUT("/:id/slots/update", h.handleUpdateSlot)
	}

	bookings := api.Group("/bookings")
	{
		bookings.POST("", RateLimit(deps.Limiter, ScopeBookings, logger), h.handleCreateBooking)
		bookings.GET("/:bookingRef", h.handleGetBooking)
		bookings.GET("", h.handleListBookings)
	}

	promos := api.Group("/promo")
	{
		promos.POST("/validate", RateLimit(deps.Limiter, ScopePromo, logger), h.handleValidatePromo)
		promos.POST("", h.handleCreatePromo)
		promos.GET("", h.handleListPromos)
	}

	return r
}

// @Summary  List experiences
// @Tags     experiences
// @Param    search  query  string  false  "case-insensitive substring of title, location or description"
// @Success  200  {object}  Envelope{data=[]domain.Activity}
// @Router   /api/experiences [get]
func (h *handlers) handleListExperiences(c *gin.Context) {
	list, err := h.svcs.Catalog.List(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.respondErr(c, err)
		return
	}

	n := len(list)
	c.JSON(http.StatusOK, Envelope{Success: true, Count: &n, Data: list})
}

// @Summary  Get experience with slots
// @Tags     experiences
// @Param    id  path  string  true  "Experience ID (uuid)"
// @Success  200  {object}  Envelope{data=domain.Activity}
// @Failure  400  {object}  Envelope
// @Failure  404  {object}  Envelope
// @Router   /api/experiences/{id} [get]
func (h *handlers) handleGetExperience(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	a, err := h.svcs.Catalog.Get(c.Request.Context(), id)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	writeJSONWithETag(c, http.StatusOK, Envelope{Success: true, Data: a}, "no-cache")
}

// @Summary  Create experience
// @Tags     experiences
// @Param    req  body  CreateExperienceRequest  true  "payload"
// @Success  201  {object}  Envelope{data=domain.Activity}
// @Failure  400  {object}  Envelope
// @Router   /api/experiences [post]
func (h *handlers) handleCreateExperience(c *gin.Context) {
	var req CreateExperienceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	a, err := h.svcs.Catalog.Create(c.Request.Context(), req.input())
	if err != nil {
		h.respondErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, Envelope{Success: true, Data: a})
}

// @Summary  Reserve slot capacity (internal)
// @Tags     experiences
// @Param    id   path  string             true  "Experience ID (uuid)"
// @Param    req  body  UpdateSlotRequest  true  "payload"
// @Success  200  {object}  Envelope{data=domain.Activity}
// @Failure  400  {object}  Envelope
// @Failure  404  {object}  Envelope
// @Router   /api/experiences/{id}/slots/update [put]
func (h *handlers) handleUpdateSlot(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing required fields")
		return
	}

	a, err := h.svcs.Catalog.ReserveSlot(c.Request.Context(), id, req.Date, req.Time, req.Quantity)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, Envelope{Success: true, Data: a})
}

// @Summary  Create booking (idempotent with Idempotency-Key)
// @Tags     bookings
// @Param    Idempotency-Key  header  string                false  "client key; repeats replay the first response"
// @Param    req              body    CreateBookingRequest  true   "payload"
// @Success  201  {object}  Envelope{data=CreateBookingResponse}
// @Failure  400  {object}  Envelope  "missing fields / slot unavailable / duplicate"
// @Failure  404  {object}  Envelope
// @Failure  409  {object}  Envelope  "idempotency key in progress"
// @Failure  429  {object}  Envelope  "rate limited"
// @Failure  500  {object}  Envelope
// @Router   /api/bookings [post]
func (h *handlers) handleCreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	in := req.input()
	if req.ExperienceID != "" {
		id, err := uuid.Parse(req.ExperienceID)
		if err != nil {
			badRequest(c, "Invalid experienceId")
			return
		}
		in.ActivityID = id
	}

	ctx := c.Request.Context()

	idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	var idemStorageKey string
	if h.idem != nil && idemKey != "" {
		idemStorageKey = redisrepo.KeyIdempotency(idemScopeCreate, idemKey)

		if h.replay(c, idemStorageKey, idemKey) {
			return
		}
	}

	// Replays above are free; every fresh attempt counts against the booker.
	if !allow(c, h.limiter, ScopeBooker, domain.NormalizeEmail(in.UserEmail), h.logger) {
		return
	}

	if idemStorageKey != "" {
		locked, err := h.idem.AcquireLock(ctx, idemStorageKey, idemLockTTL)
		if err != nil {
			h.respondErr(c, err)
			return
		}
		if !locked {
			if h.replay(c, idemStorageKey, idemKey) {
				return
			}
			c.Header("Retry-After", "1")
			c.JSON(http.StatusConflict, Envelope{Message: "Idempotency key in progress"})
			return
		}
	}

	b, err := h.svcs.Bookings.Create(ctx, in)
	if err != nil {
		if idemStorageKey != "" {
			_ = h.idem.Release(ctx, idemStorageKey)
		}
		h.respondErr(c, err)
		return
	}

	resp := Envelope{
		Success: true,
		Message: "Booking confirmed successfully",
		Data:    CreateBookingResponse{BookingRef: b.Ref, Booking: b},
	}

	if idemStorageKey != "" {
		if payload, err := json.Marshal(resp); err == nil {
			if err := h.idem.SaveResult(ctx, idemStorageKey, string(payload)); err != nil {
				h.logger.Warn("save idempotent result", "error", err)
			}
		}
		c.Header("Idempotency-Key", idemKey)
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *handlers) replay(c *gin.Context, storageKey, idemKey string) bool {
	payload, ok, err := h.idem.GetResult(c.Request.Context(), storageKey)
	if err != nil || !ok {
		return false
	}

	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))

	return true
}

// @Summary  Get booking by reference
// @Tags     bookings
// @Param    bookingRef  path  string  true  "8-character booking reference"
// @Success  200  {object}  Envelope{data=domain.BookingWithActivity}
// @Failure  404  {object}  Envelope
// @Router   /api/bookings/{bookingRef} [get]
func (h *handlers) handleGetBooking(c *gin.Context) {
	ref := strings.ToUpper(strings.TrimSpace(c.Param("bookingRef")))
	if !reference.Valid(ref) {
		notFound(c, "Booking not found")
		return
	}

	b, err := h.svcs.Bookings.Get(c.Request.Context(), ref)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, Envelope{Success: true, Data: b})
}

// @Summary  List bookings, newest first
// @Tags     bookings
// @Success  200  {object}  Envelope{data=[]domain.BookingWithActivity}
// @Router   /api/bookings [get]
func (h *handlers) handleListBookings(c *gin.Context) {
	list, err := h.svcs.Bookings.List(c.Request.Context())
	if err != nil {
		h.respondErr(c, err)
		return
	}

	n := len(list)
	c.JSON(http.StatusOK, Envelope{Success: true, Count: &n, Data: list})
}

// @Summary  Validate promo code
// @Tags     promo
// @Param    req  body  ValidatePromoRequest  true  "payload"
// @Success  200  {object}  Envelope{data=promo.Quote}
// @Failure  400  {object}  Envelope  "missing code / below minimum / expired"
// @Failure  404  {object}  Envelope
// @Failure  429  {object}  Envelope  "rate limited"
// @Router   /api/promo/validate [post]
func (h *handlers) handleValidatePromo(c *gin.Context) {
	var req ValidatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	subtotal := decimal.Zero
	if req.Subtotal != nil {
		subtotal = *req.Subtotal
	}

	q, err := h.svcs.Promos.Validate(c.Request.Context(), req.Code, subtotal)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, Envelope{Success: true, Message: "Promo code applied successfully", Data: q})
}

// @Summary  Create promo code
// @Tags     promo
// @Param    req  body  CreatePromoRequest  true  "payload"
// @Success  201  {object}  Envelope{data=domain.PromoCode}
// @Failure  400  {object}  Envelope
// @Router   /api/promo [post]
func (h *handlers) handleCreatePromo(c *gin.Context) {
	var req CreatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	in, err := req.input()
	if err != nil {
		badRequest(c, "Failed to create promo code: "+err.Error())
		return
	}

	p, err := h.svcs.Promos.Create(c.Request.Context(), in)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	c.JSON(http.StatusCreated, Envelope{Success: true, Data: p})
}

// @Summary  List promo codes
// @Tags     promo
// @Success  200  {object}  Envelope{data=[]domain.PromoCode}
// @Router   /api/promo [get]
func (h *handlers) handleListPromos(c *gin.Context) {
	list, err := h.svcs.Promos.List(c.Request.Context())
	if err != nil {
		h.respondErr(c, err)
		return
	}

	n := len(list)
	c.JSON(http.StatusOK, Envelope{Success: true, Count: &n, Data: list})
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Envelope{Message: msg})
}

func notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Envelope{Message: msg})
}

func (h *handlers) respondErr(c *gin.Context, err error) {
	var (
		bookingCap   *booking.InsufficientCapacityError
		catalogCap   *catalog.InsufficientCapacityError
		catalogValid *catalog.ValidationError
		promoValid   *promo.ValidationError
		belowMin     *promo.BelowMinimumError
		mismatch     *booking.PriceMismatchError
	)

	switch {
	// booking service
	case errors.Is(err, booking.ErrMissingFields):
		badRequest(c, "Missing required fields")
	case errors.Is(err, booking.ErrInvalidQuantity), errors.Is(err, catalog.ErrInvalidQuantity):
		badRequest(c, "Quantity must be at least 1")
	case errors.Is(err, booking.ErrInvalidAmount):
		badRequest(c, "Price fields must not be negative")
	case errors.Is(err, booking.ErrActivityNotFound):
		notFound(c, "Experience not found")
	case errors.Is(err, booking.ErrDateNotFound):
		badRequest(c, "Selected date not available")
	case errors.Is(err, booking.ErrTimeNotFound):
		badRequest(c, "Selected time not available")
	case errors.As(err, &bookingCap):
		c.JSON(http.StatusBadRequest, Envelope{
			Message:        "Not enough available slots",
			AvailableSlots: &bookingCap.Available,
		})
	case errors.Is(err, booking.ErrDuplicateBooking):
		badRequest(c, "You already have a booking for this slot")
	case errors.As(err, &mismatch):
		badRequest(c, "Price mismatch: "+mismatch.Error())
	case errors.Is(err, booking.ErrBookingNotFound):
		notFound(c, "Booking not found")

	// catalog service
	case errors.As(err, &catalogValid):
		badRequest(c, "Failed to create experience: "+catalogValid.Reason)
	case errors.Is(err, catalog.ErrActivityNotFound):
		notFound(c, "Experience not found")
	case errors.Is(err, catalog.ErrDateNotFound):
		notFound(c, "Slot date not found")
	case errors.Is(err, catalog.ErrTimeNotFound):
		notFound(c, "Time slot not found")
	case errors.As(err, &catalogCap):
		c.JSON(http.StatusBadRequest, Envelope{
			Message:        "Not enough available slots",
			AvailableSlots: &catalogCap.Available,
		})

	// promo service
	case errors.Is(err, promo.ErrCodeRequired):
		badRequest(c, "Promo code is required")
	case errors.Is(err, promo.ErrInvalidSubtotal):
		badRequest(c, "Subtotal must not be negative")
	case errors.Is(err, promo.ErrPromoNotFound):
		notFound(c, "Invalid promo code")
	case errors.Is(err, promo.ErrPromoExpired):
		badRequest(c, "Promo code has expired")
	case errors.As(err, &belowMin):
		badRequest(c, fmt.Sprintf("Minimum order value of ₹%s required", belowMin.Min.String()))
	case errors.As(err, &promoValid):
		badRequest(c, "Failed to create promo code: "+promoValid.Reason)
	case errors.Is(err, promo.ErrPromoConflict):
		badRequest(c, "Failed to create promo code: code already exists")

	default:
		reqID, _ := c.Get("request_id")
		h.logger.Error("request failed",
			slog.Any("request_id", reqID),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, Envelope{Message: msgInternal})
	}
}
