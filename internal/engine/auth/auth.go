package auth

import (
	"fmt"

	"urbanaid/internal/domain"
)

// ForbiddenError indicates the current role may not perform an operation.
type ForbiddenError struct {
	Role      domain.Role
	Operation string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s cannot %s", e.Role, e.Operation)
}

// Capability checks sit at the boundary of each engine operation. The
// backend re-checks everything; these exist so the client never offers an
// action the actor cannot take.

func CanCreateReport(role domain.Role) error {
	return require(role, domain.RoleCitizen, "create reports")
}

func CanClaim(role domain.Role) error {
	return require(role, domain.RoleVolunteer, "claim reports")
}

func CanUpdateStatus(role domain.Role) error {
	return require(role, domain.RoleVolunteer, "update report status")
}

func CanBrowseNearby(role domain.Role) error {
	return require(role, domain.RoleVolunteer, "browse nearby reports")
}

func CanAdminister(role domain.Role) error {
	return require(role, domain.RoleAdmin, "view admin listings")
}

func require(role, want domain.Role, op string) error {
	if role != want {
		return ForbiddenError{Role: role, Operation: op}
	}
	return nil
}
