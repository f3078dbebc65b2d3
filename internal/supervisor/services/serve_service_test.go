// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package services

import (
	"context"
	"errors"
	"testing"

	"github.com/thejerf/suture/v4"
)

type blockingServer struct {
	started chan struct{}
}

func (s *blockingServer) Serve(ctx context.Context) error {
	close(s.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestServeServiceInterface(t *testing.T) {
	var _ suture.Service = (*ServeService)(nil)
	var _ suture.Service = (*FuncService)(nil)
}

func TestServeServiceDelegates(t *testing.T) {
	server := &blockingServer{started: make(chan struct{})}
	svc := NewServeService("dispatcher", server)

	if svc.String() != "dispatcher" {
		t.Errorf("name = %q, want dispatcher", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	<-server.started
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
}

func TestFuncServiceDelegates(t *testing.T) {
	want := errors.New("gc failed")
	svc := NewFuncService("store-gc", func(ctx context.Context) error {
		return want
	})

	if svc.String() != "store-gc" {
		t.Errorf("name = %q, want store-gc", svc.String())
	}
	if err := svc.Serve(context.Background()); !errors.Is(err, want) {
		t.Errorf("Serve returned %v, want %v", err, want)
	}
}
