package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datapilot-ai/datapilot-engine/pkg/apperrors"
	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

// fakeMemoryRepo is an in-memory MemoryRepository.
type fakeMemoryRepo struct {
	mu      sync.Mutex
	records []*models.MemoryRecord

	insertErr error
}

func (f *fakeMemoryRepo) Insert(ctx context.Context, rec *models.MemoryRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.QueryID == "" {
		rec.QueryID = uuid.NewString()
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeMemoryRepo) ListRecent(ctx context.Context, userID string, limit int) ([]*models.MemoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.MemoryRecord
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		if f.records[i].UserID == userID {
			out = append(out, f.records[i])
		}
	}
	return out, nil
}

func (f *fakeMemoryRepo) CountSimilar(ctx context.Context, userID, dbKey, patternLabel string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, rec := range f.records {
		if rec.UserID == userID && rec.DBKey == dbKey && rec.PatternLabel == patternLabel {
			n++
		}
	}
	return n, nil
}

func (f *fakeMemoryRepo) SetFeedback(ctx context.Context, userID, queryID, feedback string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.UserID == userID && rec.QueryID == queryID {
			rec.Feedback = feedback
			return nil
		}
	}
	return apperrors.Newf(apperrors.KindBadInput, "no memory record for query %s", queryID)
}

// fakeProfileRepo is an in-memory ProfileRepository.
type fakeProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*models.UserProfile

	getErr error
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[string]*models.UserProfile)}
}

func (f *fakeProfileRepo) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (f *fakeProfileRepo) Upsert(ctx context.Context, profile *models.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	profile.UpdatedAt = time.Now().UTC()
	copied := *profile
	f.profiles[profile.UserID] = &copied
	return nil
}

// fakeSessionRepo is an in-memory SessionRepository.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.Session

	sweepCutoff time.Time
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*models.Session)}
}

func (f *fakeSessionRepo) Create(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.CreatedAt = time.Now().UTC()
	session.LastActivity = session.CreatedAt
	session.Active = true
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessionRepo) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, apperrors.Newf(apperrors.KindSessionNotFound, "session %s not found", sessionID)
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessionRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Session
	for _, s := range f.sessions {
		if s.UserID == userID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) CountActive(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.sessions {
		if s.UserID == userID && s.Active {
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionRepo) RecordActivity(ctx context.Context, sessionID string, at time.Time, messageDelta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		s.LastActivity = at
		s.MessageCount += messageDelta
	}
	return nil
}

func (f *fakeSessionRepo) UpdateContext(ctx context.Context, sessionID string, sc models.SessionContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		s.Context = sc
	}
	return nil
}

func (f *fakeSessionRepo) MarkInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweepCutoff = cutoff
	var n int64
	for _, s := range f.sessions {
		if s.Active && s.LastActivity.Before(cutoff) {
			s.Active = false
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionRepo) Delete(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	return nil
}

// fakeMessageRepo is an in-memory MessageRepository.
type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*models.ChatMessage
}

func (f *fakeMessageRepo) Append(ctx context.Context, msg *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	copied := *msg
	f.messages = append(f.messages, &copied)
	return nil
}

func (f *fakeMessageRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.ChatMessage
	for _, m := range f.messages {
		if m.SessionID == sessionID {
			copied := *m
			out = append(out, &copied)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMessageRepo) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*models.ChatMessage
	var removed int64
	for _, m := range f.messages {
		if m.SessionID == sessionID {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	f.messages = kept
	return removed, nil
}

// fakeSchemaRepo is an in-memory SchemaRepository.
type fakeSchemaRepo struct {
	mu        sync.Mutex
	snapshots map[string]*models.SchemaSnapshot

	getErr error
}

func newFakeSchemaRepo() *fakeSchemaRepo {
	return &fakeSchemaRepo{snapshots: make(map[string]*models.SchemaSnapshot)}
}

func (f *fakeSchemaRepo) Get(ctx context.Context, dbKey string) (*models.SchemaSnapshot, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[dbKey]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSchemaRepo) Upsert(ctx context.Context, snapshot *models.SchemaSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *snapshot
	f.snapshots[snapshot.DBKey] = &copied
	return nil
}

func (f *fakeSchemaRepo) Delete(ctx context.Context, dbKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snapshots, dbKey)
	return nil
}

// fakeAgent is a canned AgentService for session manager tests.
type fakeAgent struct {
	mu       sync.Mutex
	requests []*models.AgentRequest

	response *models.AgentResponse
	err      error
}

func (f *fakeAgent) HandleQuery(ctx context.Context, req *models.AgentRequest) (*models.AgentResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.response != nil {
		return f.response, nil
	}
	return &models.AgentResponse{Success: true, Message: "done"}, nil
}

func (f *fakeAgent) Feedback(ctx context.Context, userID string, req *models.FeedbackRequest) error {
	return nil
}

func (f *fakeAgent) Status() *models.StatusResponse {
	return &models.StatusResponse{Version: "test"}
}

// stubSynthesizer returns a fixed query or error.
type stubSynthesizer struct {
	query *models.ExecutedQuery
	err   error
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, in SynthesisInput) (*models.ExecutedQuery, error) {
	if s.err != nil {
		return nil, s.err
	}
	copied := *s.query
	return &copied, nil
}
