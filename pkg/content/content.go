// Package content defines the collaborator capabilities the approval engine
// consumes from the content management platform: node lookup, the publish and
// unpublish content actions, and group membership checks.
package content

import (
	"context"
	"errors"

	"github.com/pressgate/pressgate/pkg/models"
)

// Sentinel errors reported by collaborator implementations.
var (
	// ErrNodeNotFound indicates the target content node is unresolvable.
	ErrNodeNotFound = errors.New("content node not found")

	// ErrGroupNotFound indicates an approval group is unknown to the
	// authorization subsystem.
	ErrGroupNotFound = errors.New("approval group not found")

	// ErrUserNotFound indicates a user id is unknown to the content system.
	ErrUserNotFound = errors.New("user not found")
)

// Service is the content system capability: node resolution plus the two
// content actions performed on full approval.
type Service interface {
	GetNodeByID(ctx context.Context, id int) (*models.Node, error)
	Publish(ctx context.Context, nodeID int) error
	Unpublish(ctx context.Context, nodeID int) error
}

// GroupService is the authorization capability. Group membership gates who
// may action a task; the engine never owns group data.
type GroupService interface {
	GroupByID(ctx context.Context, id int) (*models.Group, error)
	IsMember(ctx context.Context, groupID, userID int) (bool, error)
	UserByID(ctx context.Context, id int) (*models.User, error)
}

// IsNodeNotFound checks if an error indicates an unresolvable content node.
func IsNodeNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound)
}
