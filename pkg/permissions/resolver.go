// Package permissions resolves the ordered approval chain for a content node.
//
// Chains are configured per (node, content type) pair. A node without an
// explicit chain inherits from its nearest configured ancestor; the walk
// terminates at the content root with the empty chain, meaning the node
// requires no approval.
package permissions

import (
	"context"
	"fmt"

	"github.com/pressgate/pressgate/pkg/content"
	"github.com/pressgate/pressgate/pkg/models"
	"github.com/pressgate/pressgate/pkg/persistence"
)

// maxDepth bounds the ancestor walk against a corrupted parent chain.
const maxDepth = 100

// Resolver derives approval chains from the configured rules and the content
// tree. Resolution is side-effect-free; the resolver holds no per-call state
// and is safe for concurrent use.
type Resolver struct {
	rules  persistence.PermissionRepository
	nodes  content.Service
	groups content.GroupService
}

// NewResolver creates a resolver over the given rule store and collaborators.
func NewResolver(rules persistence.PermissionRepository, nodes content.Service, groups content.GroupService) *Resolver {
	return &Resolver{
		rules:  rules,
		nodes:  nodes,
		groups: groups,
	}
}

// Resolve returns the ordered groups required to approve the node.
//
// The walk visits the node and then its ancestors until an explicit non-empty
// chain is found or the tree root is reached. An empty result means the node
// requires no approval.
func (r *Resolver) Resolve(ctx context.Context, node *models.Node) ([]models.Group, error) {
	groupIDs, err := r.ResolveIDs(ctx, node)
	if err != nil {
		return nil, err
	}

	groups := make([]models.Group, 0, len(groupIDs))

	for _, id := range groupIDs {
		group, err := r.groups.GroupByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load group %d for node %d: %w", id, node.ID, err)
		}

		groups = append(groups, *group)
	}

	return groups, nil
}

// ResolveIDs returns the ordered group ids without hydrating group records.
func (r *Resolver) ResolveIDs(ctx context.Context, node *models.Node) ([]int, error) {
	current := node

	for depth := 0; depth < maxDepth; depth++ {
		chain, err := r.rules.ChainFor(ctx, current.ID, current.ContentTypeID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up chain for node %d: %w", current.ID, err)
		}

		if len(chain) > 0 {
			return chain, nil
		}

		if current.Root() {
			return []int{}, nil
		}

		parent, err := r.nodes.GetNodeByID(ctx, current.ParentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load parent %d of node %d: %w", current.ParentID, current.ID, err)
		}

		current = parent
	}

	return nil, fmt.Errorf("ancestor walk exceeded %d levels starting at node %d", maxDepth, node.ID)
}
