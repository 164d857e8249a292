package models

// Node is a content node as reported by the content management system.
// The engine never mutates nodes; it only resolves approval chains against
// their position in the content tree.
type Node struct {
	ID            int    `json:"id"`
	ParentID      int    `json:"parent_id"`
	Level         int    `json:"level"`
	ContentTypeID int    `json:"content_type_id"`
	Name          string `json:"name"`
}

// Root reports whether the node is the content tree root. Permission
// inheritance terminates here.
func (n *Node) Root() bool {
	return n.Level <= 1
}

// Group is an authorization unit owned by the external identity subsystem.
// The engine references groups by id; membership tests go through
// content.GroupService.
type Group struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// User is a content editor or approver known to the content system.
type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// PermissionRule is the configured approval chain for a (node, content type)
// pair. Configured data, read-only to the engine.
type PermissionRule struct {
	NodeID        int   `json:"node_id"`
	ContentTypeID int   `json:"content_type_id"`
	GroupIDs      []int `json:"group_ids"`
}
