package weave

// Void is the "no useful result" type for Task[Void]/AsyncTask[Void]/
// SyncTask[Void], for callers who want the ref-counted or blocking-Get
// lifetime of those families without returning anything meaningful —
// akin to the teacher's own void/none pair, generalized to a type any
// of the task families can be instantiated with instead of a
// package-private sentinel.
type Void = struct{}

// none is the single Void value, handed back by a Void task's fn on
// success.
var none = Void{}
