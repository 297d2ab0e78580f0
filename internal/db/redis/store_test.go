package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/treerag/internal/db"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForClient(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForClient(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestWaitForReady_Timeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(errors.New("connection refused"))).
		AnyTimes()

	s := NewStoreForClient(c)
	err := s.WaitForReady(context.Background(), 250*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewStore_RequiresAddrs(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error for empty addrs")
	}
}

// --- kv.go tests ---

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.Result(mock.RedisBlobString("value")))

	s := NewStoreForClient(c)
	data, err := s.Get(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "value" {
		t.Errorf("unexpected data: %s", data)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForClient(c)
	_, err := s.Get(context.Background(), "mykey")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestGet_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "mykey")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForClient(c)
	_, err := s.Get(context.Background(), "mykey")
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "mykey", "myvalue")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForClient(c)
	if err := s.Set(context.Background(), "mykey", []byte("myvalue")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetWithTTL_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SET" && cmd[1] == "mykey" && cmd[2] == "myvalue" && cmd[3] == "EX" && cmd[4] == "60"
		})).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForClient(c)
	if err := s.SetWithTTL(context.Background(), "mykey", []byte("myvalue"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSet_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SET"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForClient(c)
	err := s.Set(context.Background(), "mykey", []byte("v"))
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestDel(t *testing.T) {
	tests := []struct {
		name    string
		removed int64
		want    bool
	}{
		{"existing key", 1, true},
		{"missing key", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)

			c.EXPECT().
				Do(gomock.Any(), mock.Match("DEL", "mykey")).
				Return(mock.Result(mock.RedisInt64(tt.removed)))

			s := NewStoreForClient(c)
			got, err := s.Del(context.Background(), "mykey")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestExists_True(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "mykey")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForClient(c)
	exists, err := s.Exists(context.Background(), "mykey")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected true")
	}
}

func TestScan_SinglePage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	// SCAN returns [cursor, [elements...]]
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(0), // cursor=0 means done
			mock.RedisArray(mock.RedisString("key1"), mock.RedisString("key2")),
		)))

	s := NewStoreForClient(c)
	keys, err := s.Scan(context.Background(), "prefix:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

func TestScan_MultiPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	first := true
	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN"
		})).
		DoAndReturn(func(_ context.Context, _ rueidis.Completed) rueidis.RedisResult {
			if first {
				first = false
				return mock.Result(mock.RedisArray(
					mock.RedisInt64(42), // cursor=42 means more
					mock.RedisArray(mock.RedisString("key1")),
				))
			}
			return mock.Result(mock.RedisArray(
				mock.RedisInt64(0),
				mock.RedisArray(mock.RedisString("key2")),
			))
		}).Times(2)

	s := NewStoreForClient(c)
	keys, err := s.Scan(context.Background(), "prefix:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

// --- helpers ---

// isDBError is a test helper for checking wrapped db.Error.
func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}
