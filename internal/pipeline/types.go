package pipeline

import (
	"time"

	"urlwatch/internal/fetch"
	"urlwatch/internal/notifier"
)

// ResourceSpec identifies one watched resource. Index is 1-based and doubles
// as the storage key, so it must stay stable across runs.
type ResourceSpec struct {
	Index   int
	Locator string
}

// Specs numbers locators in configured order.
func Specs(locators []string) []ResourceSpec {
	out := make([]ResourceSpec, len(locators))
	for i, l := range locators {
		out[i] = ResourceSpec{Index: i + 1, Locator: l}
	}
	return out
}

func (s ResourceSpec) ref() notifier.ResourceRef {
	return notifier.ResourceRef{Index: s.Index, Locator: s.Locator}
}

// Observation is the working state of one resource during one run.
//
// PriorDigest is set by the load phase and never touched again.
// CurrentDigest and CurrentContent are set only when Fetch succeeded.
type Observation struct {
	Spec ResourceSpec

	PriorDigest string
	HadPrior    bool

	CurrentDigest  string
	CurrentContent []byte

	Fetch   fetch.Result
	Changed bool
}

// Succeeded reports whether this run fetched new content for the resource.
func (o *Observation) Succeeded() bool { return o.Fetch.OK() }

// RunResult summarizes a completed run. It is not persisted.
type RunResult struct {
	RunID      string
	AnyChanged bool

	// Changed and SoftFailures list resources in configured order.
	Changed      []ResourceSpec
	SoftFailures []ResourceSpec

	// Notified is true when an alert was delivered.
	Notified bool
	Took     time.Duration
}

// Config configures a Pipeline.
type Config struct {
	Resources []ResourceSpec
	// Workers > 1 fans the fetch/persist phase out over that many goroutines.
	Workers int
	// Location is quoted in the alert so readers know where the content lives.
	Location string
	// NotifyTimeout bounds the alert call; 0 means 10s.
	NotifyTimeout time.Duration
}
