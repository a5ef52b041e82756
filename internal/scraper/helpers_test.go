package scraper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wzxcff/APIScraperTG/internal/config"
	"github.com/wzxcff/APIScraperTG/internal/model"
	"github.com/wzxcff/APIScraperTG/internal/record"
	"github.com/wzxcff/APIScraperTG/internal/resilience"
	"github.com/wzxcff/APIScraperTG/internal/session"
	"github.com/wzxcff/APIScraperTG/internal/session/sessiontest"
)

// spyStore 记录所有写库调用
type spyStore struct {
	mu       sync.Mutex
	groups   []*record.Target
	batches  [][]record.Message
	pinned   [][]record.PinnedMessage
	started  int
	statuses []model.RunStatus
	lastID   int64
	previous *model.ScrapeRun
}

func (s *spyStore) Upsert(ctx context.Context, target *record.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, target)
	return nil
}

func (s *spyStore) InsertBatch(ctx context.Context, groupID int64, messages []record.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]record.Message(nil), messages...))
	return int64(len(messages)), nil
}

func (s *spyStore) InsertPinned(ctx context.Context, groupID int64, pinned []record.PinnedMessage) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinned = append(s.pinned, append([]record.PinnedMessage(nil), pinned...))
	return int64(len(pinned)), nil
}

func (s *spyStore) LastMessageID(ctx context.Context, groupID int64) (int64, bool, error) {
	return s.lastID, s.lastID != 0, nil
}

func (s *spyStore) Last(ctx context.Context, target string) (*model.ScrapeRun, error) {
	return s.previous, nil
}

func (s *spyStore) Start(ctx context.Context, target string, startedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	return int64(s.started), nil
}

func (s *spyStore) Finish(ctx context.Context, id int64, status model.RunStatus, messagesCount int, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *spyStore) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, 0, len(s.batches))
	for _, batch := range s.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func testConfig(t *testing.T) *config.Scraper {
	t.Helper()
	return &config.Scraper{
		Target:      "@group",
		OutputDir:   t.TempDir(),
		Limit:       100,
		MaxAttempts: 1,
		BatchSize:   100,
		PinnedLimit: 10,
		Phases:      append([]string(nil), config.DefaultPhases...),
	}
}

func newTestScraper(t *testing.T, sess session.Session, cfg *config.Scraper) (*Scraper, *spyStore, *Token) {
	t.Helper()
	store := &spyStore{}
	token := NewToken()
	caller := resilience.NewCaller(cfg.MaxAttempts)
	caller.Backoff = 0
	s := NewScraper(sess, caller, store, store, store, cfg, token)
	return s, store, token
}

func megagroup() *session.Entity {
	return &session.Entity{ID: -1001, Kind: session.KindMegagroup, Title: "Group", Username: "group"}
}

// messagesWithSenders 生成 ID 从 n 递减到 1 的消息，每条消息的发送者ID等于消息ID
func messagesWithSenders(n int64) ([]*session.Message, map[int64]*session.User) {
	messages := make([]*session.Message, 0, n)
	users := make(map[int64]*session.User, n)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for id := n; id >= 1; id-- {
		messages = append(messages, &session.Message{
			ID:       id,
			Text:     "text",
			Date:     base.Add(time.Duration(id) * time.Minute),
			SenderID: id,
		})
		users[id] = &session.User{ID: id, FirstName: "user"}
	}
	return messages, users
}

func newFake(entity *session.Entity) *sessiontest.Fake {
	return &sessiontest.Fake{Entity: entity, Users: map[int64]*session.User{}}
}
