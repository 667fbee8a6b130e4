// Package callbacks defines the observer hooks a chain fires while a model
// call is in flight: start, one notification per generated token, and exactly
// one of end or error.
//
// Handlers are plain observers. They run synchronously on the goroutine that
// drives the model call and must return quickly; a handler that blocks stalls
// token generation for every other handler registered on the same call.
package callbacks
