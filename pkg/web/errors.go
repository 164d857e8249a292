package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/pressgate/pressgate/pkg/content"
	"github.com/pressgate/pressgate/pkg/persistence"
	"github.com/pressgate/pressgate/pkg/services"
	"github.com/pressgate/pressgate/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps the engine's error taxonomy onto problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case content.IsNodeNotFound(err):
		return notFound(c, "node_not_found", "node not found")

	case persistence.IsTaskNotFound(err):
		return notFound(c, "task_not_found", "task not found")

	case persistence.IsInstanceNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	case workflow.IsNotAuthorized(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("not_authorized").
			WithDetail("acting user is not a member of the required approval group")

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case persistence.IsActiveInstanceExists(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("workflow_exists").
			WithDetail("an active workflow already exists for this node")

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsStateConflict(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("state_conflict").
			WithDetail("the workflow was already actioned")

		return c.Status(fiber.StatusConflict).JSON(problem)

	case workflow.IsCollaboratorError(err):
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("collaborator_error").
			WithDetail("a content system operation failed")

		return c.Status(fiber.StatusInternalServerError).JSON(problem)

	default:
		return internalError(c, err)
	}
}
