package web

import (
	"github.com/dukex/tenantflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// Problem types returned in RFC 7807 bodies.
const (
	problemValidation = "validation_error"
	problemNotFound   = "not_found"
	problemConflict   = "conflict"
	problemInternal   = "internal_error"
)

func respondProblem(c fiber.Ctx, status int, problemType, detail string) error {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(problem)
}

func badRequest(c fiber.Ctx, detail string) error {
	return respondProblem(c, fiber.StatusBadRequest, problemValidation, detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return respondProblem(c, fiber.StatusNotFound, problemNotFound, detail)
}

func conflict(c fiber.Ctx, detail string) error {
	return respondProblem(c, fiber.StatusConflict, problemConflict, detail)
}

func internalError(c fiber.Ctx, err error) error {
	return respondProblem(c, fiber.StatusInternalServerError, problemInternal, err.Error())
}

// handleExecutionError maps executor errors to problem responses. Tenant
// mismatches surface as not found so instance ids of other tenants are not
// disclosed.
func handleExecutionError(c fiber.Ctx, err error) error {
	switch {
	case workflow.IsValidationError(err):
		return badRequest(c, err.Error())
	case workflow.IsNotFound(err):
		return notFound(c, err.Error())
	case workflow.IsConflict(err):
		return conflict(c, err.Error())
	default:
		return internalError(c, err)
	}
}
