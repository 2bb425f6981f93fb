package scene

// Reconcile merges a remote element snapshot into the local one using
// last-writer-wins on (Version, VersionNonce). For every remote element the
// local copy is replaced when the remote version is strictly newer, or when
// versions are equal and the remote nonce is higher. Neither input slice is
// mutated; the result preserves local order with unseen remote elements
// appended.
//
// The merge is commutative across delivery order and idempotent, which is
// what keeps peers converging when the relay interleaves broadcasts from
// different senders.
func Reconcile(local, remote []Element) []Element {
	merged := make([]Element, len(local))
	copy(merged, local)

	index := make(map[string]int, len(local))
	for i, el := range local {
		index[el.ID] = i
	}

	for _, remoteEl := range remote {
		i, ok := index[remoteEl.ID]
		if !ok {
			index[remoteEl.ID] = len(merged)
			merged = append(merged, remoteEl)
			continue
		}

		if supersedes(remoteEl, merged[i]) {
			merged[i] = remoteEl
		}
	}

	return merged
}

func supersedes(remote, local Element) bool {
	if remote.Version != local.Version {
		return remote.Version > local.Version
	}

	return remote.VersionNonce > local.VersionNonce
}
