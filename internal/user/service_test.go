package user

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/hitoshi/pageinsights/internal/model"
	"github.com/hitoshi/pageinsights/internal/repository"
)

// fakeStore はユーザーとセッションの削除を1つの呼び出しログに記録する。
type fakeStore struct {
	user       *model.User
	findErr    error
	sessionIDs []string
	listErr    error
	deleteSErr error
	deleteUErr error
	calls      []string
}

// fakeUsers と fakeSessions の未使用メソッドは埋め込んだnilインターフェース経由でpanicする。
type fakeUsers struct {
	repository.UserRepository
	*fakeStore
}

type fakeSessions struct {
	repository.SessionRepository
	*fakeStore
}

func (f fakeUsers) FindByID(ctx context.Context, id string) (*model.User, error) {
	return f.user, f.findErr
}

func (f fakeUsers) DeleteByID(ctx context.Context, id string) error {
	f.calls = append(f.calls, "delete user "+id)
	return f.deleteUErr
}

func (f fakeSessions) ListIDsByUserID(ctx context.Context, userID string) ([]string, error) {
	return f.sessionIDs, f.listErr
}

func (f fakeSessions) DeleteByUserID(ctx context.Context, userID string) error {
	f.calls = append(f.calls, "delete sessions "+userID)
	return f.deleteSErr
}

type recordingEvictor struct {
	removed []string
}

func (e *recordingEvictor) Remove(sessionID string) {
	e.removed = append(e.removed, sessionID)
}

func newService(store *fakeStore, evictor *recordingEvictor) *Service {
	return NewService(fakeUsers{fakeStore: store}, fakeSessions{fakeStore: store}, evictor)
}

func TestService_Withdraw_RevokesSessionsBeforeUser(t *testing.T) {
	store := &fakeStore{
		user:       &model.User{ID: "u1", Name: "Test User"},
		sessionIDs: []string{"s1", "s2"},
	}
	evictor := &recordingEvictor{}

	if err := newService(store, evictor).Withdraw(context.Background(), "u1"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}

	want := []string{"delete sessions u1", "delete user u1"}
	if !slices.Equal(store.calls, want) {
		t.Errorf("calls = %v, want %v", store.calls, want)
	}
	if !slices.Equal(evictor.removed, []string{"s1", "s2"}) {
		t.Errorf("破棄されたコントローラー = %v, want [s1 s2]", evictor.removed)
	}
}

func TestService_Withdraw_Failures(t *testing.T) {
	dbErr := errors.New("db error")

	tests := []struct {
		name        string
		store       fakeStore
		wantCode    string
		wantCalls   int
		wantEvicted int
	}{
		{"ユーザーなし", fakeStore{}, model.ErrCodeUserNotFound, 0, 0},
		{"取得失敗", fakeStore{findErr: dbErr}, "", 0, 0},
		{"セッション一覧失敗", fakeStore{user: &model.User{ID: "u1"}, listErr: dbErr}, "", 0, 0},
		{"セッション削除失敗", fakeStore{user: &model.User{ID: "u1"}, sessionIDs: []string{"s1"}, deleteSErr: dbErr}, "", 1, 0},
		{"並行削除済み", fakeStore{user: &model.User{ID: "u1"}, sessionIDs: []string{"s1"}, deleteUErr: repository.ErrNotFound}, model.ErrCodeUserNotFound, 2, 1},
		{"ユーザー削除失敗", fakeStore{user: &model.User{ID: "u1"}, deleteUErr: dbErr}, "", 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.store
			evictor := &recordingEvictor{}

			err := newService(&store, evictor).Withdraw(context.Background(), "u1")
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var apiErr *model.APIError
			if tt.wantCode != "" {
				if !errors.As(err, &apiErr) || apiErr.Code != tt.wantCode {
					t.Errorf("err = %v, want code %s", err, tt.wantCode)
				}
			} else if !errors.Is(err, dbErr) {
				t.Errorf("err = %v, want wrapped db error", err)
			}
			if len(store.calls) != tt.wantCalls {
				t.Errorf("calls = %v, want %d", store.calls, tt.wantCalls)
			}
			if len(evictor.removed) != tt.wantEvicted {
				t.Errorf("evicted = %v, want %d", evictor.removed, tt.wantEvicted)
			}
		})
	}
}

func TestService_Withdraw_WithoutSessionStore(t *testing.T) {
	store := &fakeStore{user: &model.User{ID: "u1"}}
	svc := NewService(fakeUsers{fakeStore: store}, nil, nil)

	if err := svc.Withdraw(context.Background(), "u1"); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if !slices.Equal(store.calls, []string{"delete user u1"}) {
		t.Errorf("calls = %v", store.calls)
	}
}
