package resource

// Job is a unit of parse/hash work for one path. File, Snapshot and Metadata
// are optional hints; the executor fills in whatever is missing.
type Job struct {
	Path     string
	Domain   Domain
	File     *FileDescriptor
	Snapshot *Snapshot
	Metadata *Metadata
	URIs     []string
	Icons    []string
	// Cancelled, when set, is consulted before every write. A job whose owner
	// has gone away still runs to completion but its results are discarded.
	Cancelled func() bool
}

// Key identifies jobs that may be merged while queued.
func (j *Job) Key() string { return j.Path }

// IsCancelled reports whether the job's owner has been disposed.
func (j *Job) IsCancelled() bool {
	return j.Cancelled != nil && j.Cancelled()
}

// MergeJobs folds newer into older for the same path. Uri and icon lists are
// unioned, metadata hints are merged with newer fields winning, and a non-nil
// file or snapshot from newer replaces the older one.
func MergeJobs(older, newer *Job) *Job {
	out := *older
	out.URIs = union(older.URIs, newer.URIs)
	out.Icons = union(older.Icons, newer.Icons)
	if newer.File != nil {
		out.File = newer.File
	}
	if newer.Snapshot != nil {
		out.Snapshot = newer.Snapshot
	}
	if newer.Domain != "" {
		out.Domain = newer.Domain
	}
	switch {
	case older.Metadata == nil:
		out.Metadata = newer.Metadata
	case newer.Metadata != nil:
		m := Merge(*older.Metadata, *newer.Metadata)
		out.Metadata = &m
	}
	// A job stays live as long as either requester is still interested.
	switch {
	case older.Cancelled == nil || newer.Cancelled == nil:
		out.Cancelled = nil
	default:
		a, b := older.Cancelled, newer.Cancelled
		out.Cancelled = func() bool { return a() && b() }
	}
	return &out
}

func union(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
