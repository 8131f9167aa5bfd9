// Package merge combines function calls produced by different execution
// tiers into one final result. Calls keep their provenance so the merged
// result can report which tier answered each intent.
package merge

import (
	"sort"

	"github.com/tandem-ai/tandem/internal/fncall"
)

// Tier identifies where a call was produced.
type Tier string

const (
	TierLocal  Tier = "on-device"
	TierRemote Tier = "cloud"
)

// SourceNone labels a merge where no tier produced a surviving call, so no
// provenance can be claimed.
const SourceNone = "none"

// Attributed is a call tagged with its producing tier and the index of the
// sub-request it answered.
type Attributed struct {
	Call   fncall.Call
	Tier   Tier
	Intent int
}

// Result is the merged output of a routing run.
type Result struct {
	Calls []Attributed
	// Source summarizes the provenance mix: "on-device", "cloud",
	// "hybrid", or SourceNone when no calls survived.
	Source string
}

// LocalCount returns how many merged calls came from the local tier.
func (r Result) LocalCount() int {
	n := 0
	for _, a := range r.Calls {
		if a.Tier == TierLocal {
			n++
		}
	}
	return n
}

// Plain strips attribution, returning the calls in merged order.
func (r Result) Plain() []fncall.Call {
	calls := make([]fncall.Call, 0, len(r.Calls))
	for _, a := range r.Calls {
		calls = append(calls, a.Call)
	}
	return calls
}

// Merge combines local and remote calls. Rules, in order:
//
//   - duplicate calls (same tool, semantically equal arguments) collapse to
//     one, keeping the first occurrence's tier,
//   - when both tiers answered the same intent index, the local call wins
//     and the remote one is dropped,
//   - surviving calls are ordered by intent index, local before remote
//     within an index, preserving input order within a tier.
//
// Merging is idempotent: merging a merged result with nothing changes
// nothing.
func Merge(local, remote []Attributed) Result {
	localIntents := make(map[int]bool, len(local))
	for _, a := range local {
		localIntents[a.Intent] = true
	}

	seen := make(map[string]bool)
	merged := make([]Attributed, 0, len(local)+len(remote))
	keep := func(a Attributed) {
		key := a.Call.Key()
		if seen[key] {
			return
		}
		seen[key] = true
		merged = append(merged, a)
	}

	for _, a := range local {
		a.Tier = TierLocal
		keep(a)
	}
	for _, a := range remote {
		a.Tier = TierRemote
		if localIntents[a.Intent] {
			continue
		}
		keep(a)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Intent != merged[j].Intent {
			return merged[i].Intent < merged[j].Intent
		}
		return merged[i].Tier == TierLocal && merged[j].Tier == TierRemote
	})

	return Result{Calls: merged, Source: sourceOf(merged)}
}

func sourceOf(calls []Attributed) string {
	hasLocal, hasRemote := false, false
	for _, a := range calls {
		switch a.Tier {
		case TierLocal:
			hasLocal = true
		case TierRemote:
			hasRemote = true
		}
	}
	switch {
	case hasLocal && hasRemote:
		return "hybrid"
	case hasRemote:
		return string(TierRemote)
	case hasLocal:
		return string(TierLocal)
	default:
		return SourceNone
	}
}
