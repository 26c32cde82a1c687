package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/noticeboard/internal/model"
	"github.com/roach88/noticeboard/internal/notify"
	"github.com/roach88/noticeboard/internal/retention"
	"github.com/roach88/noticeboard/internal/store"
)

// errBadArgs marks a scenario authoring error, as opposed to an outcome the
// scenario can expect.
var errBadArgs = errors.New("bad arguments")

// operation runs one flow step. The returned map holds only strings, ints,
// bools, []any and map[string]any so it can be compared with YAML values and
// serialized canonically.
type operation func(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error)

var operations map[string]operation

func init() {
	operations = map[string]operation{
		"user.add":             opUserAdd,
		"notification.create":  opNotificationCreate,
		"notification.delete":  opNotificationDelete,
		"notification.restore": opNotificationRestore,
		"notification.visible": opNotificationVisible,
		"engine.cycle":         opEngineCycle,
		"retention.count":      opRetentionCount,
		"retention.purge":      opRetentionPurge,
		"todo.create":          opTodoCreate,
		"todo.list":            opTodoList,
		"todo.delete":          opTodoDelete,
	}
}

// Operations returns the names of the operations a flow step may invoke.
func Operations() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func opUserAdd(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return nil, err
	}
	added, err := h.store.AddUser(ctx, id, h.clock.Now())
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"added": added}, nil
}

func opNotificationCreate(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	d := notify.Draft{}
	var err error
	if d.ID, err = optString(args, "id"); err != nil {
		return nil, err
	}
	if d.Title, err = optString(args, "title"); err != nil {
		return nil, err
	}
	if d.Message, err = optString(args, "message"); err != nil {
		return nil, err
	}
	if d.IsGlobal, err = optBool(args, "global"); err != nil {
		return nil, err
	}
	if d.TargetUserIDs, err = optStrings(args, "targets"); err != nil {
		return nil, err
	}
	if d.RecurrenceRule, err = optString(args, "recurrence"); err != nil {
		return nil, err
	}
	expires, err := optString(args, "expires_at")
	if err != nil {
		return nil, err
	}
	if expires != "" {
		t, err := parseInstant(expires)
		if err != nil {
			return nil, fmt.Errorf("%w: expires_at: %v", errBadArgs, err)
		}
		d.ExpiresAt = &t
	}
	if raw, ok := args["action"]; ok {
		action, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: action must be a map", errBadArgs)
		}
		desc, err := optString(action, "description")
		if err != nil {
			return nil, err
		}
		cat, err := optString(action, "category")
		if err != nil {
			return nil, err
		}
		d.ActionItem = &model.ActionItemTransfer{Description: desc, Category: cat}
	}

	p, err := principal(args)
	if err != nil {
		return nil, err
	}
	n, err := h.service.Create(ctx, p, d)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"id": n.ID}, nil
}

func opNotificationDelete(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	id, p, err := idAndPrincipal(args)
	if err != nil {
		return nil, err
	}
	return nil, h.service.SoftDelete(ctx, p, id)
}

func opNotificationRestore(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	id, p, err := idAndPrincipal(args)
	if err != nil {
		return nil, err
	}
	return nil, h.service.Restore(ctx, p, id)
}

func opNotificationVisible(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	user, err := requireString(args, "user")
	if err != nil {
		return nil, err
	}
	list, err := h.service.Active(ctx, notify.Principal{UserID: user})
	if err != nil {
		return nil, err
	}
	ids := make([]interface{}, len(list))
	for i, n := range list {
		ids[i] = n.ID
	}
	return map[string]interface{}{"ids": ids}, nil
}

func opEngineCycle(ctx context.Context, h *Harness, _ map[string]interface{}) (map[string]interface{}, error) {
	r, err := h.engine.RunNow(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"date":                  r.Date.String(),
		"candidates":            r.Candidates,
		"not_due":               r.NotDue,
		"occurrences_processed": r.OccurrencesProcessed,
		"occurrences_skipped":   r.OccurrencesSkipped,
		"tasks_created":         r.TasksCreated,
		"tasks_skipped":         r.TasksSkipped,
		"failures":              len(r.Failures),
	}, nil
}

func (h *Harness) cleaner(args map[string]interface{}) (*retention.Cleaner, error) {
	days, err := optInt(args, "retention_days", retention.DefaultRetentionDays)
	if err != nil {
		return nil, err
	}
	c, err := retention.NewCleaner(h.store, days,
		retention.WithClock(h.clock),
		retention.WithLogger(h.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadArgs, err)
	}
	return c, nil
}

func opRetentionCount(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	c, err := h.cleaner(args)
	if err != nil {
		return nil, err
	}
	cutoff := c.Cutoff()
	n, err := c.CountExpiredPastRetention(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"cutoff": cutoff.Format(time.RFC3339),
		"count":  int(n),
	}, nil
}

func opRetentionPurge(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	c, err := h.cleaner(args)
	if err != nil {
		return nil, err
	}
	r, err := c.Run(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"cutoff":                 r.Cutoff.Format(time.RFC3339),
		"expected":               int(r.Expected),
		"purged":                 int(r.Purged),
		"ledger_entries_removed": int(r.LedgerEntriesRemoved),
	}, nil
}

func opTodoCreate(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	user, err := requireString(args, "user")
	if err != nil {
		return nil, err
	}
	ref, err := requireString(args, "ref")
	if err != nil {
		return nil, err
	}
	if _, exists := h.refs[ref]; exists {
		return nil, fmt.Errorf("%w: duplicate ref %q", errBadArgs, ref)
	}
	d := notify.TodoDraft{}
	if d.Description, err = requireString(args, "description"); err != nil {
		return nil, err
	}
	if d.Category, err = optString(args, "category"); err != nil {
		return nil, err
	}
	parent, err := optString(args, "parent")
	if err != nil {
		return nil, err
	}
	if parent != "" {
		id, ok := h.refs[parent]
		if !ok {
			return nil, fmt.Errorf("%w: unknown parent ref %q", errBadArgs, parent)
		}
		d.ParentID = &id
	}

	task, err := h.service.CreateTodo(ctx, notify.Principal{UserID: user}, d)
	if err != nil {
		return nil, err
	}
	h.refs[ref] = task.ID
	return nil, nil
}

func opTodoList(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	user, err := requireString(args, "user")
	if err != nil {
		return nil, err
	}
	tasks, err := h.service.AllTodos(ctx, notify.Principal{UserID: user})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Description < tasks[j].Description
	})
	list := make([]interface{}, len(tasks))
	for i, t := range tasks {
		list[i] = taskSummary(t)
	}
	return map[string]interface{}{"tasks": list}, nil
}

func opTodoDelete(ctx context.Context, h *Harness, args map[string]interface{}) (map[string]interface{}, error) {
	user, err := requireString(args, "user")
	if err != nil {
		return nil, err
	}
	policyName, err := optString(args, "policy")
	if err != nil {
		return nil, err
	}
	policy, err := store.ParseDeletePolicy(policyName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadArgs, err)
	}
	id, err := h.resolveTask(ctx, user, args)
	if err != nil {
		return nil, err
	}
	removed, err := h.service.DeleteTodo(ctx, notify.Principal{UserID: user}, id, policy)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"removed": int(removed)}, nil
}

// resolveTask finds a task by "ref" or by the "source" notification that
// generated it for user.
func (h *Harness) resolveTask(ctx context.Context, user string, args map[string]interface{}) (string, error) {
	ref, err := optString(args, "ref")
	if err != nil {
		return "", err
	}
	if ref != "" {
		id, ok := h.refs[ref]
		if !ok {
			return "", fmt.Errorf("%w: unknown ref %q", errBadArgs, ref)
		}
		return id, nil
	}

	source, err := optString(args, "source")
	if err != nil {
		return "", err
	}
	if source == "" {
		return "", fmt.Errorf("%w: one of ref or source is required", errBadArgs)
	}
	tasks, err := h.store.ListTodosBySource(ctx, source)
	if err != nil {
		return "", err
	}
	for _, t := range tasks {
		if t.UserID == user {
			return t.ID, nil
		}
	}
	return "", fmt.Errorf("task for source %q and user %q: %w", source, user, store.ErrNotFound)
}

func taskSummary(t model.TodoTask) map[string]interface{} {
	m := map[string]interface{}{
		"description": t.Description,
		"category":    t.Category,
		"root":        t.IsRoot(),
	}
	if t.SourceNotificationID != nil {
		m["source"] = *t.SourceNotificationID
	}
	return m
}

// principal reads the acting principal. Without "as" the step runs as an
// administrator.
func principal(args map[string]interface{}) (notify.Principal, error) {
	as, err := optString(args, "as")
	if err != nil {
		return notify.Principal{}, err
	}
	if as == "" {
		return notify.Principal{UserID: "admin", Admin: true}, nil
	}
	return notify.Principal{UserID: as}, nil
}

func idAndPrincipal(args map[string]interface{}) (string, notify.Principal, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return "", notify.Principal{}, err
	}
	p, err := principal(args)
	if err != nil {
		return "", notify.Principal{}, err
	}
	return id, p, nil
}

func requireString(args map[string]interface{}, key string) (string, error) {
	s, err := optString(args, key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: %s is required", errBadArgs, key)
	}
	return s, nil
}

func optString(args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", errBadArgs, key, raw)
	}
	return s, nil
}

func optBool(args map[string]interface{}, key string) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a bool, got %T", errBadArgs, key, raw)
	}
	return b, nil
}

func optInt(args map[string]interface{}, key string, def int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	n, ok := raw.(int)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be an integer, got %T", errBadArgs, key, raw)
	}
	return n, nil
}

func optStrings(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a list, got %T", errBadArgs, key, raw)
	}
	out := make([]string, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%d] must be a string, got %T", errBadArgs, key, i, v)
		}
		out[i] = s
	}
	return out, nil
}
