package db

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"

	"driving-school-admin/internal/model"
	"driving-school-admin/pkg/errors"
)

// MemoryStudentStore keeps students in process. It backs sandbox overlays
// and tests.
type MemoryStudentStore struct {
	mu       sync.RWMutex
	students map[int64]*model.Student
	nextKey  int64
}

func NewMemoryStudentStore() *MemoryStudentStore {
	return &MemoryStudentStore{students: make(map[int64]*model.Student)}
}

// Add stores a copy of s. A zero Key is assigned.
func (m *MemoryStudentStore) Add(s model.Student) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Key == 0 {
		m.nextKey++
		s.Key = m.nextKey
	} else if s.Key > m.nextKey {
		m.nextKey = s.Key
	}
	m.students[s.Key] = cloneStudent(&s)
	return s.Key
}

func (m *MemoryStudentStore) FindByIdentifier(ctx context.Context, identifier string) (*model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]int64, 0, len(m.students))
	for k := range m.students {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		if s := m.students[k]; s.Identifier != "" && s.Identifier == identifier {
			return cloneStudent(s), nil
		}
	}
	return nil, errors.ErrStudentNotFound
}

func (m *MemoryStudentStore) Get(ctx context.Context, key int64) (*model.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.students[key]
	if !ok {
		return nil, errors.ErrStudentNotFound
	}
	return cloneStudent(s), nil
}

func (m *MemoryStudentStore) SaveExamResults(ctx context.Context, key int64, results []model.ExamResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.students[key]
	if !ok {
		return errors.ErrStudentNotFound
	}
	s.ExamResults = append([]model.ExamResult(nil), results...)
	return nil
}

func (m *MemoryStudentStore) MarkCaseFiled(ctx context.Context, key int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.students[key]
	if !ok {
		return errors.ErrStudentNotFound
	}
	s.CaseFiled = true
	return nil
}

func (m *MemoryStudentStore) has(key int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.students[key]
	return ok
}

func cloneStudent(s *model.Student) *model.Student {
	c := *s
	c.ExamResults = append([]model.ExamResult(nil), s.ExamResults...)
	return &c
}

// Overlay reads through to a base store and keeps every write in memory,
// so a sandbox import sees its own writes without touching real records.
type Overlay struct {
	base    StudentStore
	changes *MemoryStudentStore
}

func NewOverlay(base StudentStore) *Overlay {
	return &Overlay{base: base, changes: NewMemoryStudentStore()}
}

func (o *Overlay) FindByIdentifier(ctx context.Context, identifier string) (*model.Student, error) {
	s, err := o.base.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if o.changes.has(s.Key) {
		return o.changes.Get(ctx, s.Key)
	}
	return s, nil
}

func (o *Overlay) Get(ctx context.Context, key int64) (*model.Student, error) {
	s, err := o.changes.Get(ctx, key)
	if err == nil {
		return s, nil
	}
	if !stderrors.Is(err, errors.ErrStudentNotFound) {
		return nil, err
	}
	return o.base.Get(ctx, key)
}

func (o *Overlay) SaveExamResults(ctx context.Context, key int64, results []model.ExamResult) error {
	if err := o.copyOnWrite(ctx, key); err != nil {
		return err
	}
	return o.changes.SaveExamResults(ctx, key, results)
}

func (o *Overlay) MarkCaseFiled(ctx context.Context, key int64) error {
	if err := o.copyOnWrite(ctx, key); err != nil {
		return err
	}
	return o.changes.MarkCaseFiled(ctx, key)
}

func (o *Overlay) copyOnWrite(ctx context.Context, key int64) error {
	if o.changes.has(key) {
		return nil
	}
	s, err := o.base.Get(ctx, key)
	if err != nil {
		return err
	}
	o.changes.Add(*s)
	return nil
}
