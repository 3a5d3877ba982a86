package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"bingo_bot/internal/model"
	"bingo_bot/internal/repository"
	"bingo_bot/pkg/logger"

	"go.uber.org/zap"
)

type TaskStatus string

const (
	TaskAvailable   TaskStatus = "available"
	TaskUnderReview TaskStatus = "under_review"
	TaskCompleted   TaskStatus = "completed"
)

type TaskView struct {
	Task        model.Task `json:"task"`
	Status      TaskStatus `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskService verifies task claims. Channel tasks are checked against the
// messaging platform, social tasks go through the manual review queue.
type TaskService struct {
	ledger  Ledger
	reviews ReviewRepository
	catalog TaskCatalog
	checker MembershipChecker
}

func NewTaskService(ledger Ledger, reviews ReviewRepository, catalog TaskCatalog, checker MembershipChecker) *TaskService {
	return &TaskService{
		ledger:  ledger,
		reviews: reviews,
		catalog: catalog,
		checker: checker,
	}
}

func (s *TaskService) FindTask(taskID string) (model.Task, error) {
	task, ok := s.catalog.Find(taskID)
	if !ok {
		return model.Task{}, ErrTaskNotFound
	}
	return task, nil
}

// TasksForUser returns the catalog in order with the user's progress on
// each task.
func (s *TaskService) TasksForUser(ctx context.Context, telegramID int64) ([]TaskView, error) {
	completions, err := s.ledger.Completions(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	pending, err := s.reviews.ListPendingReviewTaskIDs(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reviews: %w", err)
	}

	done := make(map[string]time.Time, len(completions))
	for _, c := range completions {
		done[c.TaskID] = c.CompletedAt
	}
	review := toSet(pending)

	tasks := s.catalog.List()
	views := make([]TaskView, 0, len(tasks))
	for _, task := range tasks {
		view := TaskView{Task: task, Status: TaskAvailable}
		if at, ok := done[task.ID]; ok {
			view.Status = TaskCompleted
			view.CompletedAt = &at
		} else if review[task.ID] {
			view.Status = TaskUnderReview
		}
		views = append(views, view)
	}

	return views, nil
}

// ClaimChannelTask credits a channel task after confirming membership. The
// membership answer is trusted as-is, one check per claim.
func (s *TaskService) ClaimChannelTask(ctx context.Context, telegramID int64, taskID string) (*model.User, model.Task, error) {
	task, err := s.FindTask(taskID)
	if err != nil {
		return nil, model.Task{}, err
	}
	if task.Kind != model.VerificationChannel {
		return nil, task, ErrWrongVerificationKind
	}

	done, err := s.ledger.HasCompleted(ctx, telegramID, task.ID)
	if err != nil {
		return nil, task, err
	}
	if done {
		return nil, task, ErrAlreadyCompleted
	}

	member, err := s.checker.IsMember(ctx, task.ChannelRef, telegramID)
	if err != nil {
		logger.Logger().Warn("membership check failed",
			zap.Int64("telegram_id", telegramID),
			zap.String("channel", task.ChannelRef),
			zap.Error(err))
		return nil, task, fmt.Errorf("%w: %v", ErrExternalCheckFailed, err)
	}
	if !member {
		return nil, task, ErrNotMember
	}

	user, err := s.ledger.CompleteTask(ctx, telegramID, task)
	if err != nil {
		return nil, task, err
	}

	return user, task, nil
}

// BeginManualClaim checks that a social task can be submitted for review.
func (s *TaskService) BeginManualClaim(ctx context.Context, telegramID int64, taskID string) (model.Task, error) {
	task, err := s.FindTask(taskID)
	if err != nil {
		return model.Task{}, err
	}
	if task.Kind != model.VerificationManual {
		return task, ErrWrongVerificationKind
	}

	done, err := s.ledger.HasCompleted(ctx, telegramID, task.ID)
	if err != nil {
		return task, err
	}
	if done {
		return task, ErrAlreadyCompleted
	}

	pending, err := s.reviews.HasPendingReview(ctx, telegramID, task.ID)
	if err != nil {
		return task, fmt.Errorf("failed to check pending review: %w", err)
	}
	if pending {
		return task, ErrReviewPending
	}

	return task, nil
}

// SubmitReview queues the handle for admin review. The completion and
// pending-review checks are repeated under the user's ledger lock so a
// claim approved meanwhile is not queued again.
func (s *TaskService) SubmitReview(ctx context.Context, telegramID int64, taskID, handle string) (*model.ManualReview, model.Task, error) {
	task, err := s.FindTask(taskID)
	if err != nil {
		return nil, model.Task{}, err
	}

	handle = NormalizeHandle(handle)
	if !ValidHandle(handle) {
		return nil, task, ErrMalformedInput
	}

	var review *model.ManualReview
	err = s.ledger.WithUserLock(telegramID, func() error {
		var err error
		review, err = s.reviews.CreateReview(ctx, telegramID, task.ID, handle)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrReviewPending):
			return nil, task, ErrReviewPending
		case errors.Is(err, repository.ErrAlreadyCompleted):
			return nil, task, ErrAlreadyCompleted
		default:
			return nil, task, fmt.Errorf("failed to create review: %w", err)
		}
	}

	logger.Logger().Info("manual review submitted",
		zap.Int64("telegram_id", telegramID),
		zap.String("task_id", task.ID),
		zap.String("review_id", review.ID))

	return review, task, nil
}

// Approve completes the task for the target user, credits the reward and
// closes the pending review in one step.
func (s *TaskService) Approve(ctx context.Context, telegramID int64, taskID string) (*model.User, model.Task, error) {
	task, err := s.FindTask(taskID)
	if err != nil {
		return nil, model.Task{}, err
	}

	if _, err := s.ledger.GetUser(ctx, telegramID); err != nil {
		return nil, task, err
	}

	user, err := s.ledger.CompleteTask(ctx, telegramID, task)
	if err != nil {
		return nil, task, err
	}

	return user, task, nil
}

// Reject drops the pending review, if any, without touching the balance.
// The task is returned when it is still in the catalog.
func (s *TaskService) Reject(ctx context.Context, telegramID int64, taskID string) (*model.Task, bool, error) {
	resolved, err := s.reviews.ResolveReview(ctx, telegramID, taskID, model.ReviewRejected)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reject review: %w", err)
	}

	var task *model.Task
	if t, ok := s.catalog.Find(taskID); ok {
		task = &t
	}

	return task, resolved, nil
}

func (s *TaskService) PendingReviews(ctx context.Context, limit int) ([]*model.ManualReview, error) {
	reviews, err := s.reviews.ListPendingReviews(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reviews: %w", err)
	}
	return reviews, nil
}

var handlePattern = regexp.MustCompile(`^@[A-Za-z0-9_]{1,15}$`)

// ValidHandle reports whether handle is an "@" followed by a valid X
// username.
func ValidHandle(handle string) bool {
	return handlePattern.MatchString(handle)
}

// NormalizeHandle trims the input and makes sure it starts with "@".
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	if strings.HasPrefix(handle, "@") {
		return handle
	}
	return "@" + handle
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
