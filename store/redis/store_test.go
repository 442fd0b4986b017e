package redis_test

import (
	"context"
	"os"
	"testing"

	"github.com/xraph/iap/id"
	"github.com/xraph/iap/store"
	iapredis "github.com/xraph/iap/store/redis"
	"github.com/xraph/iap/store/storetest"
)

// Set IAP_TEST_REDIS_URL (for example redis://localhost:6379/15) to run.
func TestConformance(t *testing.T) {
	url := os.Getenv("IAP_TEST_REDIS_URL")
	if url == "" {
		t.Skip("IAP_TEST_REDIS_URL not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		// A unique prefix per subtest keeps runs isolated.
		s, err := iapredis.Open(url, iapredis.WithPrefix(id.NewEventID().String()+":"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := s.Ping(context.Background()); err != nil {
			t.Skipf("redis unreachable: %v", err)
		}
		return s
	})
}

func TestOpenBadURL(t *testing.T) {
	if _, err := iapredis.Open("not-a-url"); err == nil {
		t.Fatal("expected parse error")
	}
}
