package workflow

import (
	"context"
	"fmt"

	"github.com/pressgate/pressgate/pkg/content"
	"github.com/pressgate/pressgate/pkg/models"
)

// ContentAction is the content-system operation performed when an instance is
// fully approved. One implementation exists per workflow type; the variant is
// chosen once at initiation and recorded as the instance type.
type ContentAction interface {
	Type() models.WorkflowType
	Do(ctx context.Context, nodeID int) error
}

// ActionFor returns the content action for the recorded workflow type.
func ActionFor(workflowType models.WorkflowType, cms content.Service) (ContentAction, error) {
	switch workflowType {
	case models.WorkflowTypePublish:
		return &publishAction{cms: cms}, nil
	case models.WorkflowTypeUnpublish:
		return &unpublishAction{cms: cms}, nil
	default:
		return nil, fmt.Errorf("unknown workflow type %q", workflowType)
	}
}

type publishAction struct {
	cms content.Service
}

func (a *publishAction) Type() models.WorkflowType { return models.WorkflowTypePublish }

func (a *publishAction) Do(ctx context.Context, nodeID int) error {
	return a.cms.Publish(ctx, nodeID)
}

type unpublishAction struct {
	cms content.Service
}

func (a *unpublishAction) Type() models.WorkflowType { return models.WorkflowTypeUnpublish }

func (a *unpublishAction) Do(ctx context.Context, nodeID int) error {
	return a.cms.Unpublish(ctx, nodeID)
}
