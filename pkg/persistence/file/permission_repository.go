package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/pressgate/pressgate/pkg/models"
)

// PermissionRepository stores the configured approval chains in a single
// permissions.json document.
type PermissionRepository struct {
	persistence *Persistence
}

// ChainFor returns the ordered group ids configured for the exact
// (node, content type) pair, or an empty slice when none are set.
func (pr *PermissionRepository) ChainFor(_ context.Context, nodeID, contentTypeID int) ([]int, error) {
	pr.persistence.mu.RLock()
	defer pr.persistence.mu.RUnlock()

	rules, err := pr.load()
	if err != nil {
		return nil, err
	}

	for _, rule := range rules {
		if rule.NodeID == nodeID && rule.ContentTypeID == contentTypeID {
			return append([]int(nil), rule.GroupIDs...), nil
		}
	}

	return []int{}, nil
}

// SetChain inserts or replaces the rule for its (node, content type) pair.
func (pr *PermissionRepository) SetChain(_ context.Context, rule *models.PermissionRule) error {
	pr.persistence.mu.Lock()
	defer pr.persistence.mu.Unlock()

	rules, err := pr.load()
	if err != nil {
		return err
	}

	replaced := false

	for i, existing := range rules {
		if existing.NodeID == rule.NodeID && existing.ContentTypeID == rule.ContentTypeID {
			rules[i] = rule
			replaced = true

			break
		}
	}

	if !replaced {
		rules = append(rules, rule)
	}

	return pr.save(rules)
}

// All returns every configured rule.
func (pr *PermissionRepository) All(_ context.Context) ([]*models.PermissionRule, error) {
	pr.persistence.mu.RLock()
	defer pr.persistence.mu.RUnlock()

	return pr.load()
}

func (pr *PermissionRepository) load() ([]*models.PermissionRule, error) {
	body, err := os.ReadFile(path.Join(pr.persistence.root, "permissions.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.PermissionRule{}, nil
		}

		return nil, fmt.Errorf("failed to read permission rules: %w", err)
	}

	var rules []*models.PermissionRule

	if err := json.Unmarshal(body, &rules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permission rules: %w", err)
	}

	return rules, nil
}

func (pr *PermissionRepository) save(rules []*models.PermissionRule) error {
	if err := os.MkdirAll(pr.persistence.root, 0750); err != nil {
		return fmt.Errorf("failed to create persistence root: %w", err)
	}

	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal permission rules: %w", err)
	}

	return os.WriteFile(path.Join(pr.persistence.root, "permissions.json"), data, 0600)
}
