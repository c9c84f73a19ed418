package connect

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/fleet/internal/logger"
)

func fastOptions() RetryOptions {
	return RetryOptions{
		ConnectTimeout: 500 * time.Millisecond,
		RetryInterval:  5 * time.Millisecond,
		MaxWait:        20 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
		WarnThreshold:  2,
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	ping := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	if err := Do("test", "127.0.0.1:0", fastOptions(), ping, logger.Nop()); err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("Do() attempts = %d, want 3", attempts)
	}
}

func TestDoTimesOut(t *testing.T) {
	opts := fastOptions()
	opts.ConnectTimeout = 60 * time.Millisecond

	err := Do("test", "127.0.0.1:0", opts, func(ctx context.Context) error {
		return errors.New("connection refused")
	}, logger.Nop())

	if err == nil {
		t.Fatal("Do() should fail once the timeout is exhausted")
	}
	if !strings.Contains(err.Error(), "test unavailable at 127.0.0.1:0") {
		t.Errorf("Do() error = %v, want backend name and address", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *RetryOptions)
	}{
		{name: "zero connect timeout", mutate: func(o *RetryOptions) { o.ConnectTimeout = 0 }},
		{name: "zero retry interval", mutate: func(o *RetryOptions) { o.RetryInterval = 0 }},
		{name: "zero max wait", mutate: func(o *RetryOptions) { o.MaxWait = 0 }},
		{name: "zero ping timeout", mutate: func(o *RetryOptions) { o.PingTimeout = 0 }},
		{name: "negative warn threshold", mutate: func(o *RetryOptions) { o.WarnThreshold = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := fastOptions()
			tt.mutate(&opts)
			if err := opts.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error")
			}
		})
	}

	if err := fastOptions().Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
