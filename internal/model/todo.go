package model

import "time"

// TodoTask is a task owned by exactly one user.
//
// ParentID links the task under another task of the same user; a task with
// no parent is a root task. SourceNotificationID is set for tasks generated
// from a notification's action item and is nil for manual tasks.
type TodoTask struct {
	ID                   string
	UserID               string
	Category             string
	Description          string
	ParentID             *string
	SourceNotificationID *string
	CreatedAt            time.Time
}

// IsRoot reports whether the task has no parent.
func (t *TodoTask) IsRoot() bool {
	return t.ParentID == nil
}

// TaskFromActionItem builds the root task generated for userID from a
// notification's action item.
func TaskFromActionItem(n *Notification, userID string) TodoTask {
	source := n.ID
	return TodoTask{
		UserID:               userID,
		Category:             n.ActionItem.Category,
		Description:          n.ActionItem.Description,
		SourceNotificationID: &source,
	}
}
