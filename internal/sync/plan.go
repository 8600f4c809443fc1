package sync

// Plan lists the files a run will push, in order
type Plan struct {
	Ops []PushOp
}

// PushOp pairs a repository file with the remote object it updates
type PushOp struct {
	Path string // relative path in the checkout
	Name string // remote object name
}

// Report summarizes a run
type Report struct {
	Pushed  []string // files written to the JSS, or that would be in dry-run
	Skipped []string // files skipped in push-all mode
	DryRun  bool
}
