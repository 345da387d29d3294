// Package harness runs conformance scenarios against the persistence
// Facade.
//
// A scenario is a YAML file listing Facade operations with expected
// outcomes, followed by assertions on the resulting trace and on the
// final state. Every scenario runs in a fresh Facade backed by in-memory
// slots and a deterministic clock, once per backend kind. Both backends
// must produce the same trace, which is compared against a single golden
// file per scenario:
//
//	result, err := harness.Run(scenario, store.KindFallback)
//	harness.RunWithGolden(t, scenario, store.KindRelational)
//
// Steps can name the id they return with "as" and later steps refer to
// it as "$name":
//
//	flow:
//	  - op: create_user
//	    as: alice
//	    args: {name: Alice, email: alice@example.com, credential: "99162322"}
//	  - op: create_post
//	    as: hello
//	    args: {author: $alice, title: Hello, description: First post}
//	  - op: toggle_like
//	    args: {post: $hello, user: $alice}
//	    expect: {liked: true, likes_count: 1}
//
// Golden files live in testdata/golden and are regenerated with
//
//	go test ./internal/harness -update
package harness
