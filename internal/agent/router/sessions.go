package router

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/intakeflow/server/internal/agent/model"
	"github.com/intakeflow/server/internal/intake"
	logx "github.com/intakeflow/server/pkg/logger"
)

// Session serializes transitions of one pipeline: callers queue on mu, so at
// most one transition (and one agent call) is in flight per session.
type Session struct {
	mu      sync.Mutex
	state   *model.PipelineState
	cleared bool
}

// Sessions is the registry of live sessions. Snapshots are written to repo
// after every operation, including failed ones.
type Sessions struct {
	router *Router
	repo   model.SessionRepository
	newID  func() string

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessions(router *Router, repo model.SessionRepository) *Sessions {
	return &Sessions{
		router:   router,
		repo:     repo,
		newID:    uuid.NewString,
		sessions: make(map[string]*Session),
	}
}

// Start opens a new session for raw. On a malformed intake the FAILED state
// is still registered and returned with the error.
func (s *Sessions) Start(ctx context.Context, raw any) (*model.PipelineState, error) {
	id := s.newID()
	st, err := s.router.Start(ctx, id, raw)
	sess := &Session{state: st}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.save(ctx, st)
	return st.Clone(), err
}

func (s *Sessions) Answer(ctx context.Context, id string, path intake.FieldPath, text string) (*model.PipelineState, error) {
	return s.with(ctx, id, func(st *model.PipelineState) error {
		return s.router.Answer(ctx, st, path, text)
	})
}

func (s *Sessions) Confirm(ctx context.Context, id string, approval model.Approval) (*model.PipelineState, error) {
	return s.with(ctx, id, func(st *model.PipelineState) error {
		return s.router.Confirm(ctx, st, approval)
	})
}

func (s *Sessions) Run(ctx context.Context, id string) (*model.PipelineState, error) {
	return s.with(ctx, id, func(st *model.PipelineState) error {
		return s.router.Run(ctx, st)
	})
}

// Get returns a snapshot of the session state.
func (s *Sessions) Get(ctx context.Context, id string) (*model.PipelineState, error) {
	sess, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()
	return sess.state.Clone(), nil
}

// Output returns the validation boundary object of the session.
func (s *Sessions) Output(ctx context.Context, id string) (model.SupervisorOutput, error) {
	sess, err := s.lock(ctx, id)
	if err != nil {
		return model.SupervisorOutput{}, err
	}
	defer sess.mu.Unlock()
	return s.router.Output(sess.state), nil
}

// HistoryLen returns the number of dialogue messages recorded for the session.
func (s *Sessions) HistoryLen(ctx context.Context, id string) (int, error) {
	sess, err := s.lock(ctx, id)
	if err != nil {
		return 0, err
	}
	defer sess.mu.Unlock()
	return s.router.HistoryLen(ctx, id)
}

// Clear removes the session from the registry and the snapshot store and
// drops its dialogue. A transition in flight finishes first; operations
// queued behind it see ErrSessionNotFound.
func (s *Sessions) Clear(ctx context.Context, id string) error {
	sess, err := s.lock(ctx, id)
	if err != nil {
		return err
	}
	defer sess.mu.Unlock()

	sess.cleared = true
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
	}
	if err := s.router.Forget(ctx, id); err != nil {
		return err
	}
	logx.Info().Str("session_id", id).Str("stage", string(sess.state.Stage)).Msg("session cleared")
	return nil
}

func (s *Sessions) with(ctx context.Context, id string, op func(*model.PipelineState) error) (*model.PipelineState, error) {
	sess, err := s.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer sess.mu.Unlock()

	opErr := op(sess.state)
	s.save(ctx, sess.state)
	return sess.state.Clone(), opErr
}

// lock returns the live session with its mutex held.
func (s *Sessions) lock(ctx context.Context, id string) (*Session, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	if sess.cleared {
		sess.mu.Unlock()
		return nil, model.ErrSessionNotFound
	}
	return sess, nil
}

// session returns the live session, loading it from repo when needed.
func (s *Sessions) session(ctx context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	if s.repo == nil {
		return nil, model.ErrSessionNotFound
	}
	st, err := s.repo.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, model.ErrSessionNotFound) {
			logx.Error().Err(err).Str("session_id", id).Msg("failed to load session")
		}
		return nil, err
	}
	sess := &Session{state: st}
	s.sessions[id] = sess
	return sess, nil
}

func (s *Sessions) save(ctx context.Context, st *model.PipelineState) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(ctx, st); err != nil {
		logx.Warn().Err(err).Str("session_id", st.SessionID).Msg("failed to persist session snapshot")
	}
}
