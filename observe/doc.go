// Package observe provides small observable values.
//
// A Value holds the latest state of something the call engine publishes
// (who declined, whether a call is pending) or consumes (device toggles
// owned by the host). Subscribers run synchronously after each change,
// outside the value's lock, so a subscriber may read or write the same
// Value without deadlocking.
//
//	muted := observe.NewComparable(false)
//	cancel := muted.Subscribe(func(v bool) { fmt.Println("muted:", v) })
//	defer cancel()
//	muted.Set(true)
package observe
