package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pressgate/pressgate/pkg/models"
)

// PermissionRepository reads and seeds the configured approval chains.
type PermissionRepository struct {
	db *sql.DB
}

// ChainFor returns the ordered group ids configured for the exact
// (node, content type) pair, or an empty slice when none are set.
func (pr *PermissionRepository) ChainFor(ctx context.Context, nodeID, contentTypeID int) ([]int, error) {
	var groupIDs pq.Int64Array

	err := pr.db.QueryRowContext(ctx, `
		SELECT group_ids FROM permission_rules
		WHERE node_id = $1 AND content_type_id = $2
	`, nodeID, contentTypeID).Scan(&groupIDs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []int{}, nil
		}

		return nil, fmt.Errorf("failed to query permission rule: %w", err)
	}

	chain := make([]int, len(groupIDs))
	for i, id := range groupIDs {
		chain[i] = int(id)
	}

	return chain, nil
}

// SetChain inserts or replaces the rule for its (node, content type) pair.
func (pr *PermissionRepository) SetChain(ctx context.Context, rule *models.PermissionRule) error {
	groupIDs := make(pq.Int64Array, len(rule.GroupIDs))
	for i, id := range rule.GroupIDs {
		groupIDs[i] = int64(id)
	}

	_, err := pr.db.ExecContext(ctx, `
		INSERT INTO permission_rules (node_id, content_type_id, group_ids)
		VALUES ($1, $2, $3)
		ON CONFLICT (node_id, content_type_id) DO UPDATE SET group_ids = EXCLUDED.group_ids
	`, rule.NodeID, rule.ContentTypeID, groupIDs)
	if err != nil {
		return fmt.Errorf("failed to upsert permission rule: %w", err)
	}

	return nil
}

// All returns every configured rule.
func (pr *PermissionRepository) All(ctx context.Context) ([]*models.PermissionRule, error) {
	rows, err := pr.db.QueryContext(ctx, `
		SELECT node_id, content_type_id, group_ids
		FROM permission_rules
		ORDER BY node_id, content_type_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query permission rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rules := make([]*models.PermissionRule, 0)

	for rows.Next() {
		var (
			rule     models.PermissionRule
			groupIDs pq.Int64Array
		)

		if err := rows.Scan(&rule.NodeID, &rule.ContentTypeID, &groupIDs); err != nil {
			return nil, fmt.Errorf("failed to scan permission rule: %w", err)
		}

		rule.GroupIDs = make([]int, len(groupIDs))
		for i, id := range groupIDs {
			rule.GroupIDs[i] = int(id)
		}

		rules = append(rules, &rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permission rules: %w", err)
	}

	return rules, nil
}
