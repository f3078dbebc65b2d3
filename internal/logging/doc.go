// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

// Package logging provides centralized zerolog-based structured logging
// for Herald.
//
// The package provides:
//   - Zero-allocation structured logging via zerolog
//   - JSON output format for production (machine-parseable)
//   - Console output format for development (human-readable)
//   - Context-aware logging with correlation ID propagation
//   - slog adapter for suture v4 integration via sutureslog
//
// Initialize once from main with logging.Init, then log through the
// package-level functions or component loggers from WithComponent.
package logging
