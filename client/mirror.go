package client

import (
	"sort"
	"sync"
	"time"

	"github.com/lodhi7862/bringit-app/model"
)

// TaskMirror holds the client's local copy of the task list and merges
// authoritative server snapshots into it. The server's version of a task
// always wins per id; tasks the server does not know yet are kept.
//
// Reconcile is not meant to run concurrently with itself; callers keep a
// single snapshot fetch in flight at a time. The mutex still makes the
// mirror safe to read from other goroutines.
type TaskMirror struct {
	mu    sync.Mutex
	tasks map[int64]model.Task
	seen  map[string]map[int64]struct{}
}

// NewTaskMirror creates an empty mirror.
func NewTaskMirror() *TaskMirror {
	return &TaskMirror{
		tasks: make(map[int64]model.Task),
		seen:  make(map[string]map[int64]struct{}),
	}
}

// Reconcile merges a server snapshot and returns the tasks that
// transitioned from pending to completed since the last merge. The diff is
// taken before the overwrite, so each transition is reported exactly once:
// a repeat of the same snapshot finds the local copy already completed.
func (m *TaskMirror) Reconcile(serverTasks []model.Task) []model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var newlyCompleted []model.Task
	for _, st := range serverTasks {
		local, ok := m.tasks[st.ID]
		if ok && local.Status == model.TaskPending && st.Status == model.TaskCompleted {
			newlyCompleted = append(newlyCompleted, st)
		}
	}

	for _, st := range serverTasks {
		m.tasks[st.ID] = st
	}
	return newlyCompleted
}

// Apply upserts a single task, as carried by a new_task or task_completed
// event, into the mirror.
func (m *TaskMirror) Apply(t model.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = t
}

// Get returns the mirrored task with the given id.
func (m *TaskMirror) Get(id int64) (model.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t, ok
}

// PendingFor returns the pending tasks assigned to the user, newest first.
func (m *TaskMirror) PendingFor(userID string) []model.Task {
	return m.filter(func(t model.Task) bool {
		return t.AssignedToID == userID && t.Status == model.TaskPending
	})
}

// CompletedFor returns the completed tasks assigned to the user, newest
// first.
func (m *TaskMirror) CompletedFor(userID string) []model.Task {
	return m.filter(func(t model.Task) bool {
		return t.AssignedToID == userID && t.Status == model.TaskCompleted
	})
}

// AssignedBy returns the tasks the user handed out, newest first.
func (m *TaskMirror) AssignedBy(userID string) []model.Task {
	return m.filter(func(t model.Task) bool {
		return t.AssignedByID == userID
	})
}

func (m *TaskMirror) filter(keep func(model.Task) bool) []model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Task, 0)
	for _, t := range m.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// History groups the user's completed tasks by recency.
type History struct {
	Today     []model.Task `json:"today"`
	Yesterday []model.Task `json:"yesterday"`
	ThisWeek  []model.Task `json:"thisWeek"`
	Earlier   []model.Task `json:"earlier"`
}

// HistoryFor buckets the user's completed tasks by the local calendar day
// of their completion time, falling back to creation time. Buckets are
// relative to now: today, yesterday, the last seven days, and everything
// before.
func (m *TaskMirror) HistoryFor(userID string, now time.Time) History {
	completed := m.CompletedFor(userID)

	var h History
	today := startOfDay(now)
	yesterday := today.AddDate(0, 0, -1)
	weekAgo := today.AddDate(0, 0, -6)

	for _, t := range completed {
		at := t.CreatedAt
		if t.CompletedAt != nil {
			at = *t.CompletedAt
		}
		day := startOfDay(at.In(now.Location()))

		switch {
		case day.Equal(today):
			h.Today = append(h.Today, t)
		case day.Equal(yesterday):
			h.Yesterday = append(h.Yesterday, t)
		case !day.Before(weekAgo):
			h.ThisWeek = append(h.ThisWeek, t)
		default:
			h.Earlier = append(h.Earlier, t)
		}
	}
	return h
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// MarkSeen records the user's current pending tasks as observed. Called
// when the pending view gains focus, never automatically.
func (m *TaskMirror) MarkSeen(userID string) {
	pending := m.PendingFor(userID)

	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.seen[userID]
	if ids == nil {
		ids = make(map[int64]struct{})
		m.seen[userID] = ids
	}
	for _, t := range pending {
		ids[t.ID] = struct{}{}
	}
}

// UnseenPendingCount is the badge count: pending tasks assigned to the
// user that the user has not observed yet.
func (m *TaskMirror) UnseenPendingCount(userID string) int {
	pending := m.PendingFor(userID)

	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range pending {
		if _, ok := m.seen[userID][t.ID]; !ok {
			count++
		}
	}
	return count
}
