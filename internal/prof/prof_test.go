package prof

import (
	"context"
	"strings"
	"testing"

	"github.com/keithlinneman/glue-artifact-store/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	stop, err := Start(context.Background(), Options{Enabled: false})
	if err != nil {
		t.Fatalf("Start disabled: %v", err)
	}
	if stop == nil {
		t.Fatal("stop func is nil")
	}
	stop()
	stop() // safe to call multiple times
}

func TestStart_Disabled_IgnoresOptions(t *testing.T) {
	stop, err := Start(context.Background(), Options{
		Enabled:              false,
		ServerAddress:        "",
		AuthToken:            "secret",
		TenantID:             "tenant",
		Tags:                 map[string]string{"artifact": "my-etl"},
		ProfileMutexFraction: 999,
		BlockProfileRate:     999,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop()
}

func TestStart_Enabled_EmptyServerAddress(t *testing.T) {
	stop, err := Start(context.Background(), Options{
		Enabled:       true,
		ServerAddress: "",
		AppName:       "glue-artifact",
	})
	if err == nil {
		t.Fatal("expected error for empty server address")
	}
	if !strings.Contains(err.Error(), "invalid server address") {
		t.Fatalf("error = %q, want 'invalid server address'", err.Error())
	}

	// stop must be usable even on error
	if stop == nil {
		t.Fatal("stop func should be non-nil even on error")
	}
	stop()
	stop()
}

func TestStart_Enabled_UnreachableServer(t *testing.T) {
	// pyroscope.Start may connect lazily; assert only the contract that a
	// usable stop func comes back.
	stop, err := Start(context.Background(), Options{
		Enabled:       true,
		ServerAddress: "http://localhost:0/nonexistent",
		AppName:       "glue-artifact",
	})
	if stop == nil {
		t.Fatal("stop func should always be non-nil")
	}
	stop()
	_ = err
}

func TestStart_WithContextLogger(t *testing.T) {
	ctx := log.WithContext(context.Background(), log.Nop())

	stop, err := Start(ctx, Options{Enabled: false})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop()

	stop, err = Start(ctx, Options{Enabled: true, ServerAddress: ""})
	if err == nil {
		t.Fatal("expected error")
	}
	stop()
}
