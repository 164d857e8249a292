package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/pressgate/pressgate/pkg/persistence"
	"github.com/pressgate/pressgate/pkg/services"
)

type APIHandlers struct {
	approvalService *services.Approval
	queryService    *services.Query
	persistence     persistence.Persistence
	validator       *validator.Validate
}

func NewAPIHandlers(
	approvalService *services.Approval,
	queryService *services.Query,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		approvalService: approvalService,
		queryService:    queryService,
		persistence:     persistence,
		validator:       validator,
	}
}

func (h *APIHandlers) InitiateWorkflow(c fiber.Ctx) error {
	var req InitiateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.approvalService.Initiate(c.Context(), services.InitiateRequest{
		NodeID:   req.NodeID,
		AuthorID: req.AuthorID,
		Comment:  req.Comment,
		Publish:  req.Publish,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(actionResponse(result))
}

func (h *APIHandlers) ApproveTask(c fiber.Ctx) error {
	return h.actionTask(c, h.approvalService.Approve)
}

func (h *APIHandlers) RejectTask(c fiber.Ctx) error {
	return h.actionTask(c, h.approvalService.Reject)
}

func (h *APIHandlers) CancelTask(c fiber.Ctx) error {
	return h.actionTask(c, h.approvalService.Cancel)
}

func (h *APIHandlers) actionTask(
	c fiber.Ctx,
	action func(ctx context.Context, req services.ActionRequest) (*services.ActionResult, error),
) error {
	taskID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "Task ID must be numeric")
	}

	var req TaskActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := action(c.Context(), services.ActionRequest{
		TaskID:  taskID,
		UserID:  req.UserID,
		Comment: req.Comment,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(actionResponse(result))
}

func (h *APIHandlers) GetPendingTasks(c fiber.Ctx) error {
	items, err := h.queryService.PendingTasks(c.Context(), viewerID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": TransformTasksResponse(items)})
}

func (h *APIHandlers) GetAllTasks(c fiber.Ctx) error {
	items, err := h.queryService.AllTasks(c.Context(), viewerID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": TransformTasksResponse(items)})
}

func (h *APIHandlers) GetNodeTasks(c fiber.Ctx) error {
	nodeID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Node ID must be numeric")
	}

	items, err := h.queryService.TasksForNode(c.Context(), nodeID, viewerID(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": TransformTasksResponse(items)})
}

func (h *APIHandlers) GetUserFlows(c fiber.Ctx) error {
	userID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "User ID must be numeric")
	}

	kind := services.FlowKindTasks

	if kindStr := c.Query("kind"); kindStr != "" {
		kind, err = strconv.Atoi(kindStr)
		if err != nil {
			return badRequest(c, "Flow kind must be numeric")
		}
	}

	items, err := h.queryService.FlowsForUser(c.Context(), userID, kind)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tasks": TransformTasksResponse(items)})
}

func (h *APIHandlers) GetInstances(c fiber.Ctx) error {
	instances, err := h.queryService.Instances(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"instances": instances})
}

func (h *APIHandlers) GetNodeStatus(c fiber.Ctx) error {
	nodeID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return badRequest(c, "Node ID must be numeric")
	}

	active, err := h.queryService.NodeStatus(c.Context(), nodeID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"node_id": nodeID, "active": active})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "PressGate API is healthy"
	httpStatus := http.StatusOK

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "PressGate API is unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"timestamp": time.Now().UTC(),
	})
}

// viewerID identifies the user a listing is rendered for; it only affects
// display fields like show_action_link.
func viewerID(c fiber.Ctx) int {
	id, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		return 0
	}

	return id
}

func actionResponse(result *services.ActionResult) ActionResponse {
	return ActionResponse{
		Message:      result.Message,
		WorkflowType: result.WorkflowType,
		Instance:     result.Instance,
	}
}
