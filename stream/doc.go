// Package stream bridges callback driven token generation into an ordered,
// pull based sequence.
//
// A Streamer runs a Chain on a background goroutine with a Sink registered as
// callback handler. The Sink turns every callback into an Event on the
// session's own Channel and the returned Stream pops those events on the
// caller's goroutine:
//
//	s, err := streamer.Stream(ctx, map[string]any{"content": "tell me a joke"})
//	if err != nil {
//	    return err // *StartupError
//	}
//	for tok, err := range s.All() {
//	    if err != nil {
//	        return err // *UpstreamError
//	    }
//	    fmt.Print(tok)
//	}
//
// Every call to Streamer.Stream creates a fresh Channel and Sink, so
// concurrent sessions never share queue state. A session delivers zero or
// more TokenEvents followed by exactly one EndEvent or ErrorEvent; anything
// the producer emits after that is dropped.
package stream
