package zab

// selectSyncStrategy decides, given the leader's initial history (the log
// of the follower with the greatest (f.a, lastZxid)) and one follower's
// reported (ackEpoch, lastZxid), how to bring that follower's log in line.
//
//   - follower.lastZxid <= initial.lastZxid and the prefix matches (the
//     follower's lastZxid is present in the leader's log): DIFF from it.
//   - follower.lastZxid > initial.lastZxid, or a follower zxid is absent
//     from the leader's log: TRUNCATE to the greatest common ancestor, then
//     DIFF.
//   - the needed range has fallen out of the retained log window: SNAPSHOT.
func selectSyncStrategy(leaderLog Log, initialLastZxid Zxid, followerLastZxid Zxid) (SyncMode, Zxid) {
	if followerLastZxid.LessOrEqual(initialLastZxid) {
		if followerLastZxid.IsNull() || leaderLog.Entry(followerLastZxid) != nil {
			return SyncDiff, followerLastZxid
		}
		// The follower's last entry isn't even in our log: its whole
		// suffix past the common ancestor must go.
		if ancestor, ok := greatestCommonAncestor(leaderLog, followerLastZxid); ok {
			return SyncTruncate, ancestor
		}
		return SyncSnapshot, ZxidNull
	}

	// Follower claims to be ahead of our initial history: its tail past
	// what we have is divergent and must be cut.
	if ancestor, ok := greatestCommonAncestor(leaderLog, followerLastZxid); ok {
		return SyncTruncate, ancestor
	}
	return SyncSnapshot, ZxidNull
}

// greatestCommonAncestor walks backward from candidate looking for the
// newest zxid also present in the leader's log. Returns ok=false when even
// ZxidNull can't be used as the ancestor because the leader has compacted
// away everything up to and including its retention floor, and candidate
// falls at or before that floor: the true common ancestor may have existed
// once, but the leader no longer has it on disk to diff or truncate from.
func greatestCommonAncestor(leaderLog Log, candidate Zxid) (Zxid, bool) {
	it := leaderLog.Iterate(ZxidNull)
	var last Zxid
	found := false
	for it.Next() {
		z := it.Transaction().Zxid
		if z.Greater(candidate) {
			break
		}
		last = z
		found = true
	}
	if found {
		return last, true
	}
	if !leaderLog.Floor().IsNull() {
		// Some prefix of the leader's history has been compacted away, and
		// none of what remains precedes candidate; ZxidNull can no longer
		// be trusted as a valid ancestor.
		return ZxidNull, false
	}
	// The leader's log has never been compacted, so ZxidNull (empty prefix)
	// is still a valid ancestor even though nothing in it precedes candidate.
	return ZxidNull, true
}
