package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/noticeboard/internal/engine"
	"github.com/roach88/noticeboard/internal/model"
	"github.com/roach88/noticeboard/internal/recurrence"
	"github.com/roach88/noticeboard/internal/store"
)

// Principal identifies the caller.
type Principal struct {
	UserID string
	Admin  bool
}

// Storage is the part of the store the service needs. *store.Store
// satisfies it.
type Storage interface {
	CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error)
	GetNotification(ctx context.Context, id string) (model.Notification, error)
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	ListNotifications(ctx context.Context, includeDeleted bool) ([]model.Notification, error)
	ListGlobal(ctx context.Context) ([]model.Notification, error)
	ListForUser(ctx context.Context, userID string) ([]model.Notification, error)
	ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]model.Notification, error)

	CreateTodo(ctx context.Context, task model.TodoTask) (model.TodoTask, error)
	ListTodos(ctx context.Context, userID string) ([]model.TodoTask, error)
	ListChildren(ctx context.Context, userID string, parentID *string) ([]model.TodoTask, error)
	DeleteTodo(ctx context.Context, userID, id string, policy store.DeletePolicy) (int64, error)
}

// Service exposes notification and TODO operations to a principal.
type Service struct {
	store    Storage
	clock    engine.Clock
	lifetime time.Duration
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for expiry checks. Default: engine.SystemClock.
func WithClock(c engine.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithDefaultLifetime sets the expiry applied to drafts that carry none.
// Zero, the default, leaves such notifications unexpiring.
func WithDefaultLifetime(d time.Duration) Option {
	return func(s *Service) {
		s.lifetime = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service over st.
func NewService(st Storage, opts ...Option) *Service {
	s := &Service{
		store:  st,
		clock:  engine.SystemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireUser(p Principal) error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrUnauthenticated
	}
	return nil
}

func requireAdmin(p Principal) error {
	if err := requireUser(p); err != nil {
		return err
	}
	if !p.Admin {
		return fmt.Errorf("user %s is not an admin: %w", p.UserID, ErrForbidden)
	}
	return nil
}

// Visible returns every notification addressed to p, expired or not.
func (s *Service) Visible(ctx context.Context, p Principal) ([]model.Notification, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	return s.store.ListForUser(ctx, p.UserID)
}

// Active returns the notifications addressed to p that have not expired.
func (s *Service) Active(ctx context.Context, p Principal) ([]model.Notification, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	return s.store.ListActiveForUser(ctx, p.UserID, s.clock.Now())
}

// Global returns the global notifications. Needs no principal.
func (s *Service) Global(ctx context.Context) ([]model.Notification, error) {
	return s.store.ListGlobal(ctx)
}

// Get returns one notification. Non-admins only see notifications addressed
// to them; anything else is reported as store.ErrNotFound.
func (s *Service) Get(ctx context.Context, p Principal, id string) (model.Notification, error) {
	if err := requireUser(p); err != nil {
		return model.Notification{}, err
	}
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return model.Notification{}, err
	}
	if !p.Admin && (n.Deleted || !n.Targets(p.UserID)) {
		return model.Notification{}, fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	return n, nil
}

// List returns every notification for operators. Admin only.
func (s *Service) List(ctx context.Context, p Principal, includeDeleted bool) ([]model.Notification, error) {
	if err := requireAdmin(p); err != nil {
		return nil, err
	}
	return s.store.ListNotifications(ctx, includeDeleted)
}

// Field limits enforced on drafts.
const (
	MaxIDLength          = 128
	MaxTitleLength       = 200
	MaxMessageLength     = 4000
	MaxRuleLength        = 1000
	MaxDescriptionLength = 500
	MaxCategoryLength    = 100
)

var validate = validator.New()

// checkLimits applies the struct tag limits of a draft.
func checkLimits(d any) error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}
	return nil
}

// Draft is an authoring request for a new notification.
type Draft struct {
	ID      string `json:"id,omitempty" yaml:"id,omitempty" validate:"max=128"`
	Title   string `json:"title" yaml:"title" validate:"max=200"`
	Message string `json:"message" yaml:"message" validate:"max=4000"`

	IsGlobal      bool     `json:"is_global" yaml:"is_global"`
	TargetUserIDs []string `json:"target_user_ids,omitempty" yaml:"target_user_ids,omitempty" validate:"dive,max=128"`

	ExpiresAt      *time.Time                `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	RecurrenceRule string                    `json:"recurrence_rule,omitempty" yaml:"recurrence_rule,omitempty" validate:"max=1000"`
	ActionItem     *model.ActionItemTransfer `json:"action_item,omitempty" yaml:"action_item,omitempty"`
}

// Create validates d and stores it as a new notification. Admin only.
//
// A non-global draft without targets is accepted and visible to no one.
// A recurrence rule must pass recurrence.Validate. Drafts without an expiry
// get the default lifetime, if one is configured.
func (s *Service) Create(ctx context.Context, p Principal, d Draft) (model.Notification, error) {
	if err := requireAdmin(p); err != nil {
		return model.Notification{}, err
	}
	if err := checkLimits(d); err != nil {
		return model.Notification{}, err
	}
	if d.ActionItem != nil {
		if len(d.ActionItem.Description) > MaxDescriptionLength || len(d.ActionItem.Category) > MaxCategoryLength {
			return model.Notification{}, fmt.Errorf("%w: action item exceeds %d/%d bytes", ErrInvalidDraft, MaxDescriptionLength, MaxCategoryLength)
		}
	}

	now := s.clock.Now()
	n := model.Notification{
		ID:            strings.TrimSpace(d.ID),
		Title:         strings.TrimSpace(d.Title),
		Message:       d.Message,
		IsGlobal:      d.IsGlobal,
		ExpiresAt:     d.ExpiresAt,
		CreatedAt:     now,
	}

	if d.IsGlobal && len(d.TargetUserIDs) > 0 {
		return model.Notification{}, fmt.Errorf("%w: a global notification cannot have targets", ErrInvalidDraft)
	}
	for _, id := range d.TargetUserIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return model.Notification{}, fmt.Errorf("%w: blank target user id", ErrInvalidDraft)
		}
		n.TargetUserIDs = append(n.TargetUserIDs, id)
	}

	if n.ExpiresAt == nil && s.lifetime > 0 {
		exp := now.Add(s.lifetime)
		n.ExpiresAt = &exp
	}
	if n.ExpiresAt != nil && !n.ExpiresAt.After(now) {
		return model.Notification{}, fmt.Errorf("%w: expiry %s is not in the future", ErrInvalidDraft, n.ExpiresAt.Format(time.RFC3339))
	}

	if rule := strings.TrimSpace(d.RecurrenceRule); rule != "" {
		if err := recurrence.Validate(rule); err != nil {
			return model.Notification{}, fmt.Errorf("%w: %w", ErrInvalidDraft, err)
		}
		n.RecurrenceRule = &rule
	}

	if d.ActionItem != nil {
		n.ActionItem = model.NewActionItem(d.ActionItem.Description, d.ActionItem.Category)
	}

	created, err := s.store.CreateNotification(ctx, n)
	if err != nil {
		return model.Notification{}, err
	}

	s.logger.Info("notification created",
		"notification", created.ID,
		"author", p.UserID,
		"global", created.IsGlobal,
		"targets", len(created.TargetUserIDs),
		"recurring", created.IsRecurring(),
	)
	return created, nil
}

// SoftDelete hides a notification from every view. Admin only.
func (s *Service) SoftDelete(ctx context.Context, p Principal, id string) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("notification deleted", "notification", id, "author", p.UserID)
	return nil
}

// Restore undoes SoftDelete. Admin only.
func (s *Service) Restore(ctx context.Context, p Principal, id string) error {
	if err := requireAdmin(p); err != nil {
		return err
	}
	if err := s.store.Restore(ctx, id); err != nil {
		return err
	}
	s.logger.Info("notification restored", "notification", id, "author", p.UserID)
	return nil
}

// TodoDraft is a request for a manual task.
type TodoDraft struct {
	Description string  `json:"description" yaml:"description" validate:"max=500"`
	Category    string  `json:"category" yaml:"category" validate:"max=100"`
	ParentID    *string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
}

// CreateTodo creates a manual task owned by p.
func (s *Service) CreateTodo(ctx context.Context, p Principal, d TodoDraft) (model.TodoTask, error) {
	if err := requireUser(p); err != nil {
		return model.TodoTask{}, err
	}
	if err := checkLimits(d); err != nil {
		return model.TodoTask{}, err
	}
	item := model.NewActionItem(d.Description, d.Category)
	if !item.Eligible() {
		return model.TodoTask{}, fmt.Errorf("%w: description is required", ErrInvalidDraft)
	}
	return s.store.CreateTodo(ctx, model.TodoTask{
		UserID:      p.UserID,
		Description: item.Description,
		Category:    item.Category,
		ParentID:    d.ParentID,
		CreatedAt:   s.clock.Now(),
	})
}

// ListTodos returns p's tasks directly under parentID; nil lists roots.
func (s *Service) ListTodos(ctx context.Context, p Principal, parentID *string) ([]model.TodoTask, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	return s.store.ListChildren(ctx, p.UserID, parentID)
}

// AllTodos returns every task p owns.
func (s *Service) AllTodos(ctx context.Context, p Principal) ([]model.TodoTask, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	return s.store.ListTodos(ctx, p.UserID)
}

// DeleteTodo deletes one of p's tasks under policy and returns how many
// tasks were removed. With store.DeleteReject a task that still has
// children fails with store.ErrOrphanTask.
func (s *Service) DeleteTodo(ctx context.Context, p Principal, id string, policy store.DeletePolicy) (int64, error) {
	if err := requireUser(p); err != nil {
		return 0, err
	}
	removed, err := s.store.DeleteTodo(ctx, p.UserID, id, policy)
	if err != nil {
		if errors.Is(err, store.ErrOrphanTask) {
			s.logger.Debug("task delete rejected", "task", id, "user", p.UserID, "policy", policy.String())
		}
		return 0, err
	}
	return removed, nil
}
