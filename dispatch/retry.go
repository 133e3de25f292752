// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package dispatch

import (
	"context"
	"log/slog"
	"time"
)

// Backoff retries an operation, doubling Delay after every failed attempt.
type Backoff struct {
	Attempts int           // Total attempts, must be positive
	Delay    time.Duration // Wait before the second attempt
	Logger   *slog.Logger  // Nil uses slog.Default()
}

// Do runs op until it succeeds or Attempts are used up, and returns the last
// error. It returns ctx.Err() as soon as ctx ends, even mid-wait.
func (b Backoff) Do(ctx context.Context, op func() error) error {
	if b.Attempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var err error
	for attempt := range b.Attempts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = op(); err == nil {
			if attempt > 0 {
				logger.Debug("retry succeeded", "attempt", attempt+1)
			}
			return nil
		}
		if attempt == b.Attempts-1 {
			break
		}

		wait := b.Delay << attempt
		logger.Debug("attempt failed, retrying", "attempt", attempt+1, "of", b.Attempts, "wait", wait, "err", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
