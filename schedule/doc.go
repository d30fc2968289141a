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


// Package schedule provides a rate-limited task scheduler for outbound calls.
//
// A Scheduler bounds the number of tasks executing at once and enforces a
// minimum spacing between task starts. Both limits are global to the
// Scheduler value, so every component that issues outbound calls during a
// sync run should share one instance.
//
// Tasks start in FIFO submission order. A task's failure or panic is
// delivered through its Future and never affects other tasks. The scheduler
// does not retry; retry policy belongs to the caller.
//
// Example:
//
//	s, err := schedule.New(schedule.WithMaxConcurrent(30), schedule.WithMinInterval(50*time.Millisecond))
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	f := schedule.Schedule(s, ctx, func(ctx context.Context) (*catalog.Item, error) {
//		return client.FetchItem(ctx, id)
//	})
//	item, err := f.Await(ctx)
package schedule
