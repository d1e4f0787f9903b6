// Package engine is the embedding boundary of threadforge. An Engine ties
// together the priority pool, the pipeline registry, and the optional
// history log behind a small string-oriented API: descriptors and payloads
// go in as JSON, serialized task results come out.
//
// Typical use:
//
//	eng := engine.New(engine.Config{Workers: 4})
//	defer eng.Shutdown()
//
//	out, err := eng.Submit(ctx, "job-1", 2,
//	    `{"type":"HEAVY_LOOP","iterations":500000}`, "")
//
// Submit blocks until the task finishes and returns its result JSON.
// Boundary failures (malformed descriptors, rejected submissions) surface
// as errors; anything that ran returns a well-formed result, including
// cancellations and panics.
package engine
