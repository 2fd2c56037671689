// Package sf provides a generic single-flight mechanism for deduplicating
// concurrent function calls with the same key.
//
// If multiple goroutines call [Singleflight.Do] with the same key
// concurrently, only the first executes the function; the others block
// until it completes and receive the same result. The projector uses this to
// collapse concurrent catch-up reads of one stream into a single read.
//
//	group := sf.New[[]Envelope]()
//	envs, _, err := group.DoContext(ctx, "patient-42", func() ([]Envelope, error) {
//	    return store.Read(ctx, "patient-42", es.ReadAll())
//	})
package sf
