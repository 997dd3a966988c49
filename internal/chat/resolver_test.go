package chat

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/chatman/internal/model"
	"github.com/hitoshi/chatman/internal/repository"
)

// --- モック定義 ---

type mockChatRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*model.Chat, error)
	findByUserIDsFn  func(ctx context.Context, userIDs []string) (*model.Chat, error)
	createIfAbsentFn func(ctx context.Context, chat *model.Chat) (*model.Chat, bool, error)
}

func (m *mockChatRepo) FindByID(ctx context.Context, id string) (*model.Chat, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockChatRepo) FindByUserIDs(ctx context.Context, userIDs []string) (*model.Chat, error) {
	if m.findByUserIDsFn != nil {
		return m.findByUserIDsFn(ctx, userIDs)
	}
	return nil, nil
}

func (m *mockChatRepo) CreateIfAbsent(ctx context.Context, chat *model.Chat) (*model.Chat, bool, error) {
	if m.createIfAbsentFn != nil {
		return m.createIfAbsentFn(ctx, chat)
	}
	return chat, true, nil
}

type mockUserRepo struct {
	findByIDFn  func(ctx context.Context, id string) (*model.User, error)
	findByIDsFn func(ctx context.Context, ids []string) ([]*model.User, error)
	listAllFn   func(ctx context.Context) ([]*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	if m.findByIDsFn != nil {
		return m.findByIDsFn(ctx, ids)
	}
	// デフォルト: 全IDが実在するユーザーとして返す
	users := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, &model.User{ID: id, Email: id + "@example.com", Name: id})
	}
	return users, nil
}

func (m *mockUserRepo) Create(_ context.Context, _ *model.User) error {
	return nil
}

func (m *mockUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

// countingRecorder はメトリクス呼び出し回数を記録するモック。
type countingRecorder struct {
	mu        sync.Mutex
	created   int
	reused    int
	conflicts int
	sent      int
}

func (r *countingRecorder) RecordChatCreated() {
	r.mu.Lock()
	r.created++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordChatReused() {
	r.mu.Lock()
	r.reused++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordResolveConflict() {
	r.mu.Lock()
	r.conflicts++
	r.mu.Unlock()
}

func (r *countingRecorder) RecordMessageSent(_ time.Duration) {
	r.mu.Lock()
	r.sent++
	r.mu.Unlock()
}

// --- compile-time interface checks ---
var _ repository.ChatRepository = (*mockChatRepo)(nil)
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ Recorder = (*countingRecorder)(nil)

// --- テスト ---

func TestResolve_ReturnsExistingChat(t *testing.T) {
	existing := &model.Chat{ID: "chat-1", UserIDs: []string{"alice", "bob"}}
	rec := &countingRecorder{}
	resolver := NewResolver(&mockChatRepo{
		findByUserIDsFn: func(_ context.Context, userIDs []string) (*model.Chat, error) {
			if reflect.DeepEqual(userIDs, []string{"alice", "bob"}) {
				return existing, nil
			}
			return nil, nil
		},
	}, &mockUserRepo{}, rec)

	got, err := resolver.Resolve(context.Background(), []string{"bob", "alice"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ID != "chat-1" {
		t.Errorf("Resolve() = %v, want existing chat-1", got.ID)
	}
	if rec.reused != 1 || rec.created != 0 {
		t.Errorf("recorder: reused=%d created=%d, want 1/0", rec.reused, rec.created)
	}
}

func TestResolve_CreatesNewChatWithSnapshots(t *testing.T) {
	var captured *model.Chat
	rec := &countingRecorder{}
	resolver := NewResolver(&mockChatRepo{
		createIfAbsentFn: func(_ context.Context, chat *model.Chat) (*model.Chat, bool, error) {
			captured = chat
			return chat, true, nil
		},
	}, &mockUserRepo{}, rec)

	got, err := resolver.Resolve(context.Background(), []string{"bob", "alice"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if captured == nil {
		t.Fatal("CreateIfAbsent should be called")
	}
	if got.ID == "" {
		t.Error("created chat should have an assigned ID")
	}
	// 正準キー: 昇順ソート済み
	if !reflect.DeepEqual(got.UserIDs, []string{"alice", "bob"}) {
		t.Errorf("UserIDs = %v, want sorted [alice bob]", got.UserIDs)
	}
	// 参加者スナップショットがキーと同数含まれること
	if len(got.Users) != 2 {
		t.Errorf("Users snapshot count = %d, want 2", len(got.Users))
	}
	if rec.created != 1 {
		t.Errorf("recorder.created = %d, want 1", rec.created)
	}
}

// Resolve({A,B})とResolve({B,A})が同じ会話に解決されること
func TestResolve_PermutationIdempotent(t *testing.T) {
	store := newFakeChatStore()
	resolver := NewResolver(store, &mockUserRepo{}, nil)

	first, err := resolver.Resolve(context.Background(), []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	second, err := resolver.Resolve(context.Background(), []string{"bob", "alice"})
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("permuted resolves should return the same chat: %s != %s", first.ID, second.ID)
	}
}

func TestResolve_TooFewParticipants(t *testing.T) {
	resolver := NewResolver(&mockChatRepo{}, &mockUserRepo{}, nil)

	// 自分自身とのペアは重複排除で1件になり、不正
	_, err := resolver.Resolve(context.Background(), []string{"alice", "alice"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidParticipants {
		t.Errorf("Resolve() error = %v, want INVALID_PARTICIPANTS", err)
	}
}

func TestResolve_MissingParticipant(t *testing.T) {
	resolver := NewResolver(&mockChatRepo{}, &mockUserRepo{
		findByIDsFn: func(_ context.Context, ids []string) ([]*model.User, error) {
			// aliceだけ実在する
			return []*model.User{{ID: "alice"}}, nil
		},
	}, nil)

	_, err := resolver.Resolve(context.Background(), []string{"alice", "ghost"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("Resolve() error = %v, want USER_NOT_FOUND", err)
	}
}

func TestResolve_ConflictReturnsWinner(t *testing.T) {
	winner := &model.Chat{ID: "winner", UserIDs: []string{"alice", "bob"}}
	rec := &countingRecorder{}
	resolver := NewResolver(&mockChatRepo{
		createIfAbsentFn: func(_ context.Context, _ *model.Chat) (*model.Chat, bool, error) {
			// 挿入に敗れ、同時解決の勝者が返ったケース
			return winner, false, nil
		},
	}, &mockUserRepo{}, rec)

	got, err := resolver.Resolve(context.Background(), []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ID != "winner" {
		t.Errorf("Resolve() = %v, want winner", got.ID)
	}
	if rec.conflicts != 1 || rec.created != 0 {
		t.Errorf("recorder: conflicts=%d created=%d, want 1/0", rec.conflicts, rec.created)
	}
}

// 同じペアを並行に解決しても会話レコードが1件に収束すること
func TestResolve_ConcurrentResolvesConvergeToOneChat(t *testing.T) {
	store := newFakeChatStore()
	resolver := NewResolver(store, &mockUserRepo{}, nil)

	const n = 16
	results := make([]*model.Chat, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// 引数の順序もばらけさせる
			ids := []string{"alice", "bob"}
			if i%2 == 1 {
				ids = []string{"bob", "alice"}
			}
			chat, err := resolver.Resolve(context.Background(), ids)
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
				return
			}
			results[i] = chat
		}(i)
	}
	wg.Wait()

	if store.count() != 1 {
		t.Errorf("store should hold exactly 1 chat, got %d", store.count())
	}
	for i := 1; i < n; i++ {
		if results[i] == nil || results[0] == nil {
			t.Fatal("all resolves should succeed")
		}
		if results[i].ID != results[0].ID {
			t.Errorf("resolve %d returned different chat: %s != %s", i, results[i].ID, results[0].ID)
		}
	}
}

func TestResolve_FindError(t *testing.T) {
	resolver := NewResolver(&mockChatRepo{
		findByUserIDsFn: func(_ context.Context, _ []string) (*model.Chat, error) {
			return nil, errors.New("db down")
		},
	}, &mockUserRepo{}, nil)

	_, err := resolver.Resolve(context.Background(), []string{"alice", "bob"})
	if err == nil {
		t.Fatal("Resolve() should propagate repository error")
	}
}

// --- インメモリフェイク ---

// fakeChatStore はpair_keyのUNIQUE制約を模したインメモリ実装。
// 並行Resolveの収束テストに使う。
type fakeChatStore struct {
	mu    sync.Mutex
	chats map[string]*model.Chat // pair_key -> chat
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{chats: make(map[string]*model.Chat)}
}

func (f *fakeChatStore) pairKey(userIDs []string) string {
	return strings.Join(userIDs, ":")
}

func (f *fakeChatStore) FindByID(_ context.Context, id string) (*model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chats {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeChatStore) FindByUserIDs(_ context.Context, userIDs []string) (*model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats[f.pairKey(userIDs)], nil
}

func (f *fakeChatStore) CreateIfAbsent(_ context.Context, chat *model.Chat) (*model.Chat, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.pairKey(chat.UserIDs)
	if existing, ok := f.chats[key]; ok {
		return existing, false, nil
	}
	f.chats[key] = chat
	return chat, true, nil
}

func (f *fakeChatStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chats)
}

var _ repository.ChatRepository = (*fakeChatStore)(nil)
