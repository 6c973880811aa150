package web

import (
	"context"
	"errors"

	"tuition-ledger/internal/models"
	"tuition-ledger/internal/service"
	"tuition-ledger/internal/service/settlement"
	"tuition-ledger/pkg/validator"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Handler struct {
	settlementService service.SettlementService
	packageService    service.PackageService
	validator         *validator.Validator
	logger            *zap.Logger
}

func NewHandler(
	settlementService service.SettlementService,
	packageService service.PackageService,
	v *validator.Validator,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		settlementService: settlementService,
		packageService:    packageService,
		validator:         v,
		logger:            logger.Named("web"),
	}
}

func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", h.Health)

	api := app.Group("/api")

	sessions := api.Group("/sessions")
	sessions.Post("/:id/settle", h.SettleSession)
	sessions.Post("/:id/present", h.MarkAllPresent)

	api.Get("/students/:id/packages", h.StudentPackages)

	packages := api.Group("/packages")
	packages.Post("/", h.CreatePackage)
	packages.Get("/:id/ledger", h.PackageLedger)
	packages.Get("/:id/reconcile", h.ReconcilePackage)
	packages.Post("/:id/adjust", h.AdjustPackage)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(models.SuccessResponse(fiber.Map{"status": "ok"}, ""))
}

func (h *Handler) SettleSession(c *fiber.Ctx) error {
	sessionID, ok := paramID(c)
	if !ok {
		return h.badRequest(c, "Invalid id", nil)
	}

	var req SettleRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badRequest(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return h.badRequest(c, "Invalid request", validator.FieldErrors(err))
	}

	summary, err := h.settlementService.SettleSession(c.UserContext(), sessionID, req.DesiredStates())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(models.SuccessResponse(summary, summary.Message))
}

func (h *Handler) MarkAllPresent(c *fiber.Ctx) error {
	sessionID, ok := paramID(c)
	if !ok {
		return h.badRequest(c, "Invalid id", nil)
	}

	summary, err := h.settlementService.MarkAllPresent(c.UserContext(), sessionID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(models.SuccessResponse(summary, summary.Message))
}

func (h *Handler) StudentPackages(c *fiber.Ctx) error {
	studentID, ok := paramID(c)
	if !ok {
		return h.badRequest(c, "Invalid id", nil)
	}

	packages, err := h.packageService.ListStudentPackages(c.UserContext(), studentID)
	if err != nil {
		return h.fail(c, err)
	}
	if packages == nil {
		packages = []*models.CoursePackage{}
	}
	return c.JSON(models.SuccessResponse(packages, "Packages retrieved successfully"))
}

func (h *Handler) CreatePackage(c *fiber.Ctx) error {
	var req CreatePackageRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badRequest(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return h.badRequest(c, "Invalid request", validator.FieldErrors(err))
	}

	pkg, err := h.packageService.CreatePackage(c.UserContext(), req.NewPackage())
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(models.SuccessResponse(pkg, "Package created successfully"))
}

func (h *Handler) PackageLedger(c *fiber.Ctx) error {
	packageID, ok := paramID(c)
	if !ok {
		return h.badRequest(c, "Invalid id", nil)
	}

	txns, err := h.packageService.GetLedger(c.UserContext(), packageID)
	if err != nil {
		return h.fail(c, err)
	}
	if txns == nil {
		txns = []models.PackageTxn{}
	}
	return c.JSON(models.SuccessResponse(txns, "Ledger retrieved successfully"))
}

func (h *Handler) ReconcilePackage(c *fiber.Ctx) error {
	packageID, ok := paramID(c)
	if !ok {
		return h.badRequest(c, "Invalid id", nil)
	}

	rec, err := h.packageService.Reconcile(c.UserContext(), packageID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(models.SuccessResponse(rec, ""))
}

func (h *Handler) AdjustPackage(c *fiber.Ctx) error {
	packageID, ok := paramID(c)
	if !ok {
		return h.badRequest(c, "Invalid id", nil)
	}

	var req AdjustRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badRequest(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return h.badRequest(c, "Invalid request", validator.FieldErrors(err))
	}

	txn, err := h.packageService.Adjust(c.UserContext(), packageID, req.Amount, req.Note)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(models.SuccessResponse(txn, "Package adjusted successfully"))
}

func paramID(c *fiber.Ctx) (int64, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, false
	}
	return int64(id), true
}

func (h *Handler) badRequest(c *fiber.Ctx, message string, details interface{}) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse(settlement.CodeValidation, message, details))
}

// fail переводит доменную ошибку в HTTP статус
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	var coded settlement.CodedError
	if errors.As(err, &coded) {
		status := fiber.StatusInternalServerError
		var details interface{}

		switch coded.Code() {
		case settlement.CodeValidation:
			status = fiber.StatusBadRequest
		case settlement.CodeNotFound:
			status = fiber.StatusNotFound
		case settlement.CodeEligibility:
			status = fiber.StatusUnprocessableEntity
		case settlement.CodeConsistency:
			status = fiber.StatusConflict
		case settlement.CodeInsufficientBalance:
			status = fiber.StatusConflict
			var balanceErr *settlement.BalanceError
			if errors.As(err, &balanceErr) {
				details = fiber.Map{
					"package_id": balanceErr.PackageID,
					"student_id": balanceErr.StudentID,
					"requested":  balanceErr.Requested,
					"remaining":  balanceErr.Remaining,
					"unit":       balanceErr.Unit,
				}
			}
		}
		return c.Status(status).JSON(models.ErrorResponse(coded.Code(), err.Error(), details))
	}

	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.Warn("request timed out", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusGatewayTimeout).JSON(models.ErrorResponse("TIMEOUT", "Request timed out", nil))
	}

	h.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse("INTERNAL", "Internal server error", nil))
}
