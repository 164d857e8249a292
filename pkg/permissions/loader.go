package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pressgate/pressgate/pkg/models"
	"github.com/pressgate/pressgate/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
)

// rulesSchema describes the permission-rules document accepted by LoadRules.
const rulesSchema = `{
	"type": "object",
	"required": ["rules"],
	"properties": {
		"rules": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["node_id", "content_type_id", "group_ids"],
				"properties": {
					"node_id": {"type": "integer", "minimum": 1},
					"content_type_id": {"type": "integer", "minimum": 1},
					"group_ids": {
						"type": "array",
						"items": {"type": "integer", "minimum": 1}
					}
				}
			}
		}
	}
}`

type rulesDocument struct {
	Rules []*models.PermissionRule `json:"rules"`
}

// LoadRules reads a permission-rules JSON document, validates it against the
// schema and seeds the repository with every rule it contains. Existing rules
// for the same (node, content type) pairs are replaced.
func LoadRules(ctx context.Context, repo persistence.PermissionRepository, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read permission rules from %s: %w", path, err)
	}

	if err := validateRules(data); err != nil {
		return 0, fmt.Errorf("invalid permission rules in %s: %w", path, err)
	}

	var doc rulesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("failed to parse permission rules in %s: %w", path, err)
	}

	for _, rule := range doc.Rules {
		if err := repo.SetChain(ctx, rule); err != nil {
			return 0, fmt.Errorf("failed to store rule for node %d: %w", rule.NodeID, err)
		}
	}

	return len(doc.Rules), nil
}

func validateRules(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(rulesSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("validation errors: %s", strings.Join(descriptions, "; "))
	}

	return nil
}
