// Package testutil provides in-memory collaborator fakes shared by tests.
package testutil

import (
	"context"
	"sync"

	"github.com/pressgate/pressgate/pkg/content"
	"github.com/pressgate/pressgate/pkg/models"
)

// FakeContent is an in-memory content system. It records publish and
// unpublish calls so tests can assert the content action fired exactly once.
type FakeContent struct {
	mu          sync.Mutex
	nodes       map[int]*models.Node
	Published   []int
	Unpublished []int

	// PublishErr and UnpublishErr, when set, are returned by the
	// corresponding content action to simulate collaborator failure.
	PublishErr   error
	UnpublishErr error
}

// NewFakeContent creates a fake content system holding the given nodes.
func NewFakeContent(nodes ...*models.Node) *FakeContent {
	byID := make(map[int]*models.Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}

	return &FakeContent{nodes: byID}
}

func (f *FakeContent) GetNodeByID(_ context.Context, id int) (*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	node, ok := f.nodes[id]
	if !ok {
		return nil, content.ErrNodeNotFound
	}

	return node, nil
}

func (f *FakeContent) Publish(_ context.Context, nodeID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishErr != nil {
		return f.PublishErr
	}

	if _, ok := f.nodes[nodeID]; !ok {
		return content.ErrNodeNotFound
	}

	f.Published = append(f.Published, nodeID)

	return nil
}

func (f *FakeContent) Unpublish(_ context.Context, nodeID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.UnpublishErr != nil {
		return f.UnpublishErr
	}

	if _, ok := f.nodes[nodeID]; !ok {
		return content.ErrNodeNotFound
	}

	f.Unpublished = append(f.Unpublished, nodeID)

	return nil
}

// PublishCount returns how many times Publish fired for the node.
func (f *FakeContent) PublishCount(nodeID int) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0

	for _, id := range f.Published {
		if id == nodeID {
			count++
		}
	}

	return count
}

// FakeGroups is an in-memory authorization subsystem: groups, users and
// group memberships.
type FakeGroups struct {
	groups  map[int]*models.Group
	users   map[int]*models.User
	members map[int]map[int]bool // groupID -> userID set
}

// NewFakeGroups creates an empty fake authorization subsystem.
func NewFakeGroups() *FakeGroups {
	return &FakeGroups{
		groups:  make(map[int]*models.Group),
		users:   make(map[int]*models.User),
		members: make(map[int]map[int]bool),
	}
}

// AddGroup registers a group with the given members.
func (f *FakeGroups) AddGroup(id int, name string, memberIDs ...int) {
	f.groups[id] = &models.Group{ID: id, Name: name}

	set := make(map[int]bool, len(memberIDs))
	for _, userID := range memberIDs {
		set[userID] = true
	}

	f.members[id] = set
}

// AddUser registers a user.
func (f *FakeGroups) AddUser(id int, name string) {
	f.users[id] = &models.User{ID: id, Name: name}
}

func (f *FakeGroups) GroupByID(_ context.Context, id int) (*models.Group, error) {
	group, ok := f.groups[id]
	if !ok {
		return nil, content.ErrGroupNotFound
	}

	return group, nil
}

func (f *FakeGroups) IsMember(_ context.Context, groupID, userID int) (bool, error) {
	set, ok := f.members[groupID]
	if !ok {
		return false, content.ErrGroupNotFound
	}

	return set[userID], nil
}

func (f *FakeGroups) UserByID(_ context.Context, id int) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, content.ErrUserNotFound
	}

	return user, nil
}
