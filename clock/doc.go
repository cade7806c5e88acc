// Package clock abstracts wall time and one-shot timers so the session
// lifecycle can be driven deterministically in tests.
//
// # Architecture boundaries
//
// [Real] delegates to the time package. [Fake] keeps a virtual "now" and fires
// timers only when [Fake.Advance] or [Fake.Set] moves time past their deadline.
//
// # What this package must NOT do
//
//   - Import goAuthClient or any sibling package.
//   - Start goroutines from [Fake]; fake timers run on the advancing goroutine.
package clock
