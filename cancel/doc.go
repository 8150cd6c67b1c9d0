// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package cancel provides the cooperative cancellation token shared by
// blocking and reactor-completed stream operations.
//
// A token is monotonic: once Cancel is called it stays cancelled. Besides the
// flag, a token can expose a wait descriptor that turns readable on
// cancellation, so a single poll(2) or epoll registration can wait on I/O
// readiness and cancellation together.
package cancel
