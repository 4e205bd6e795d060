// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package walker

import "context"

// TaskFunc is the body of a background task launched with Context.Go.
// It receives the spawn's context and returns a value through Task.Wait.
type TaskFunc func(ctx context.Context) (any, error)

// Task is a handle to one background task. Tasks parallelize work within
// a single ability invocation; the engine joins every outstanding task
// when the invocation ends, so a task never outlives its handler.
type Task struct {
	done chan struct{}
	val  any
	err  error
}

// Wait blocks until the task finishes and returns its value and error.
// Safe to call from the owning handler or not at all; unjoined tasks are
// joined by the engine and a task error aborts the walk as the ability's
// error.
func (t *Task) Wait() (any, error) {
	<-t.done
	return t.val, t.err
}
