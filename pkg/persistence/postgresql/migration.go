package postgresql

// migrations returns the schema migrations keyed by version.
//
// The partial unique index on pending instances enforces the
// at-most-one-active-workflow-per-node invariant at the storage layer,
// closing the race between two concurrent initiations.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_instances (
				id BIGSERIAL PRIMARY KEY,
				guid UUID NOT NULL UNIQUE,
				node_id INTEGER NOT NULL,
				type TEXT NOT NULL,
				status TEXT NOT NULL,
				author_id INTEGER NOT NULL,
				author_comment TEXT NOT NULL DEFAULT '',
				current_step INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_workflow_instances_active_node
				ON workflow_instances (node_id)
				WHERE status = 'pending_approval';

			CREATE INDEX IF NOT EXISTS idx_workflow_instances_node
				ON workflow_instances (node_id);

			CREATE TABLE IF NOT EXISTS workflow_tasks (
				id BIGSERIAL PRIMARY KEY,
				instance_guid UUID NOT NULL REFERENCES workflow_instances(guid),
				step INTEGER NOT NULL,
				group_id INTEGER NOT NULL,
				status TEXT NOT NULL,
				actioned_by_id INTEGER,
				comment TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (instance_guid, step)
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_tasks_status
				ON workflow_tasks (status);

			CREATE TABLE IF NOT EXISTS permission_rules (
				node_id INTEGER NOT NULL,
				content_type_id INTEGER NOT NULL,
				group_ids INTEGER[] NOT NULL,
				PRIMARY KEY (node_id, content_type_id)
			);
		`,
	}
}
