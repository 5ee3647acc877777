// Package event provides typed fire-and-forget notifications.
//
// An Emitter broadcasts values of one type to every subscriber, in
// subscription order, on the goroutine that calls Fire:
//
//	reloads := event.NewEmitter[struct{}]()
//	sub := reloads.Subscribe(func(struct{}) { fmt.Println("reloading") })
//	defer sub.Cancel()
//	reloads.Fire(struct{}{})
//
// Disposables gathers cancel functions (subscriptions, host callback
// registrations) so an owner can release all of them on teardown.
package event
