package members

import (
	"github.com/chuanlbx-ui/zhongdao-core/pkg/db/models"
	"github.com/google/uuid"
)

// AddMemberInput carries the data required to place a new member in the
// tree. ID is optional; when nil one is generated. A nil ParentID creates a
// root member.
type AddMemberInput struct {
	ID       *uuid.UUID
	ParentID *uuid.UUID
	Nickname string
}

// DescendantOptions bound a subtree walk. Zero values fall back to the
// service defaults.
type DescendantOptions struct {
	MaxDepth int
	Limit    int
}

// MemberList is a cursor page of members.
type MemberList struct {
	Members    []models.Member `json:"members"`
	NextCursor *string         `json:"next_cursor,omitempty"`
}
