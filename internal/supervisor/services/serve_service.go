// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package services

import (
	"context"
)

// Server is any component with a context-aware serve loop. Satisfied by the
// event consumer, dispatcher, sweeper, digest scheduler, and WebSocket hub.
type Server interface {
	Serve(ctx context.Context) error
}

// ServeService names a Server for the supervisor tree.
type ServeService struct {
	server Server
	name   string
}

// NewServeService wraps a Server under the given name.
func NewServeService(name string, server Server) *ServeService {
	return &ServeService{server: server, name: name}
}

// Serve implements suture.Service.
func (s *ServeService) Serve(ctx context.Context) error {
	return s.server.Serve(ctx)
}

// String implements fmt.Stringer for suture's log messages.
func (s *ServeService) String() string {
	return s.name
}

// FuncService adapts a plain function to suture.Service. Used for loops that
// are functions rather than types, like the Badger value log GC.
type FuncService struct {
	fn   func(ctx context.Context) error
	name string
}

// NewFuncService wraps fn under the given name.
func NewFuncService(name string, fn func(ctx context.Context) error) *FuncService {
	return &FuncService{fn: fn, name: name}
}

// Serve implements suture.Service.
func (s *FuncService) Serve(ctx context.Context) error {
	return s.fn(ctx)
}

// String implements fmt.Stringer for suture's log messages.
func (s *FuncService) String() string {
	return s.name
}
