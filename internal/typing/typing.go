package typing

// Unit is the empty result of pipelines that only carry success or failure.
type Unit = struct{}
