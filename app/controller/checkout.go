package controller

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-checkout/app/factory"
	"github.com/vibast-solutions/ms-go-checkout/app/mapper"
	"github.com/vibast-solutions/ms-go-checkout/app/service"
	"github.com/vibast-solutions/ms-go-checkout/app/types"
)

type CheckoutController struct {
	checkoutService *service.CheckoutService
	now             func() time.Time
	logger          logrus.FieldLogger
}

func NewCheckoutController(checkoutService *service.CheckoutService) *CheckoutController {
	return &CheckoutController{
		checkoutService: checkoutService,
		now:             time.Now,
		logger:          factory.NewModuleLogger("checkout-controller"),
	}
}

func (c *CheckoutController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *CheckoutController) CreatePaymentIntent(ctx echo.Context) error {
	req, err := types.NewCreatePaymentIntentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.checkoutService.CreatePaymentIntent(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrAmountTooLow), errors.Is(err, service.ErrAmountMismatch):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrSessionNotFound):
			return c.writeError(ctx, http.StatusNotFound, "session not found")
		case errors.Is(err, service.ErrSessionPaid):
			return c.writeError(ctx, http.StatusConflict, "session is already paid")
		case errors.Is(err, service.ErrNoActiveAccount):
			c.logger.WithError(err).Error("No payment account available")
			return c.writeError(ctx, http.StatusInternalServerError, "no active payment account")
		case errors.Is(err, service.ErrProviderFailure):
			c.logger.WithError(err).Error("Create payment intent failed at provider")
			return c.writeError(ctx, http.StatusInternalServerError, "payment provider error")
		default:
			c.logger.WithError(err).Error("Create payment intent failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, mapper.PaymentIntentToResponse(item))
}

// StripeWebhook acknowledges every authenticated event with 200 so the provider stops retrying;
// the outcome field tells what happened.
func (c *CheckoutController) StripeWebhook(ctx echo.Context) error {
	req, err := types.NewStripeWebhookRequestFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, &types.WebhookResponse{Error: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, &types.WebhookResponse{Error: err.Error()})
	}

	result, err := c.checkoutService.HandleWebhook(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWebhookRejected), errors.Is(err, service.ErrInvalidRequest):
			c.logger.WithError(err).Warn("Webhook rejected")
			return ctx.JSON(http.StatusBadRequest, &types.WebhookResponse{Error: "invalid signature"})
		default:
			c.logger.WithError(err).Error("Webhook processing failed")
			return ctx.JSON(http.StatusInternalServerError, &types.WebhookResponse{Error: "internal server error"})
		}
	}

	return ctx.JSON(http.StatusOK, mapper.WebhookResultToResponse(result))
}

func (c *CheckoutController) RotationStatus(ctx echo.Context) error {
	status, err := c.checkoutService.RotationStatus(ctx.Request().Context())
	if err != nil {
		if errors.Is(err, service.ErrNoActiveAccount) {
			return c.writeError(ctx, http.StatusNotFound, "no active payment account")
		}
		c.logger.WithError(err).Error("Rotation status failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.RotationStatusToResponse(status, c.checkoutService.RotationWindow()))
}

func (c *CheckoutController) AdminStats(ctx echo.Context) error {
	stats, err := c.checkoutService.Stats(ctx.Request().Context(), c.now())
	if err != nil {
		c.logger.WithError(err).Error("Admin stats failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.StatsToResponse(stats))
}

func (c *CheckoutController) GetConfig(ctx echo.Context) error {
	cfg, err := c.checkoutService.GetConfig(ctx.Request().Context())
	if err != nil {
		c.logger.WithError(err).Error("Get config failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.ConfigToResponse(cfg))
}

func (c *CheckoutController) SaveConfig(ctx echo.Context) error {
	req, err := types.NewSaveConfigRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	saved, err := c.checkoutService.SaveConfig(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		c.logger.WithError(err).Error("Save config failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.SavedConfigToResponse(saved))
}

func (c *CheckoutController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
