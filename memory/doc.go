// Package memory implements the three-layer learning substrate: an
// append-only store of episodic traces and reflexion critiques, a skill
// layer mutated only through promotion and consolidation, and similarity
// retrieval with a blended similarity × recency × success-rate score.
//
// The InMemoryStore is the reference implementation with exact scoring and
// deterministic ordering; ChromemStore backs the episodic and reflexion
// layers with an embedded persistent vector database for larger corpora.
package memory
