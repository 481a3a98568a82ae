package zab

import "testing"

func buildLeaderLog(t *testing.T, entries ...Zxid) *fileLog {
	t.Helper()
	l := mustOpenLog(t)
	for _, z := range entries {
		if err := l.Append(&Transaction{Zxid: z, Body: []byte("x")}); err != nil {
			t.Fatalf("seed append %s: %v", z, err)
		}
	}
	return l
}

func TestSelectSyncStrategyDiffWhenFollowerBehindAndPrefixMatches(t *testing.T) {
	l := buildLeaderLog(t, Zxid{1, 1}, Zxid{1, 2}, Zxid{1, 3})
	mode, from := selectSyncStrategy(l, Zxid{1, 3}, Zxid{1, 1})
	if mode != SyncDiff {
		t.Fatalf("mode = %v, want SyncDiff", mode)
	}
	if from != (Zxid{1, 1}) {
		t.Fatalf("from = %s, want (1,1)", from)
	}
}

func TestSelectSyncStrategyDiffFromNullWhenFollowerEmpty(t *testing.T) {
	l := buildLeaderLog(t, Zxid{1, 1})
	mode, from := selectSyncStrategy(l, Zxid{1, 1}, ZxidNull)
	if mode != SyncDiff || from != ZxidNull {
		t.Fatalf("mode,from = %v,%s, want SyncDiff,ZxidNull", mode, from)
	}
}

func TestSelectSyncStrategyTruncateWhenFollowerAhead(t *testing.T) {
	l := buildLeaderLog(t, Zxid{3, 1})
	mode, from := selectSyncStrategy(l, Zxid{3, 1}, Zxid{3, 2})
	if mode != SyncTruncate {
		t.Fatalf("mode = %v, want SyncTruncate", mode)
	}
	if from != (Zxid{3, 1}) {
		t.Fatalf("ancestor = %s, want (3,1)", from)
	}
}

func TestSelectSyncStrategyTruncateWhenFollowerDivergesMidLog(t *testing.T) {
	// Follower claims lastZxid (4,1), which the leader's log does not contain
	// at all (leader jumped straight from epoch 3 to (4,2)); the greatest
	// common ancestor is the leader's last entry <= (4,1), i.e. (3,2).
	l := buildLeaderLog(t, Zxid{3, 1}, Zxid{3, 2}, Zxid{4, 2})
	mode, from := selectSyncStrategy(l, Zxid{4, 2}, Zxid{4, 1})
	if mode != SyncTruncate {
		t.Fatalf("mode = %v, want SyncTruncate", mode)
	}
	if from != (Zxid{3, 2}) {
		t.Fatalf("ancestor = %s, want (3,2)", from)
	}
}

func TestSelectSyncStrategyTruncateToNullWhenLeaderNeverCompacted(t *testing.T) {
	l := mustOpenLog(t)
	// Leader's log is empty and has never been compacted, so ZxidNull is
	// still a trustworthy ancestor even though the follower's claimed
	// history shares nothing with it.
	mode, from := selectSyncStrategy(l, ZxidNull, Zxid{5, 5})
	if mode != SyncTruncate {
		t.Fatalf("mode = %v, want SyncTruncate", mode)
	}
	if from != ZxidNull {
		t.Fatalf("ancestor = %s, want ZxidNull", from)
	}
}

func TestSelectSyncStrategySnapshotWhenNeededRangeIsCompactedAway(t *testing.T) {
	l := buildLeaderLog(t, Zxid{1, 1}, Zxid{1, 2}, Zxid{1, 3}, Zxid{1, 4})
	if err := l.Compact(Zxid{1, 3}); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if l.Floor() != (Zxid{1, 3}) {
		t.Fatalf("Floor() = %s, want (1,3)", l.Floor())
	}
	// The follower's claimed history (1,1) no longer has any surviving
	// entry at or before it once the log has been compacted through (1,3):
	// the leader can no longer diff or truncate it into line.
	mode, from := selectSyncStrategy(l, Zxid{1, 4}, Zxid{1, 1})
	if mode != SyncSnapshot {
		t.Fatalf("mode = %v, want SyncSnapshot", mode)
	}
	if from != ZxidNull {
		t.Fatalf("from = %s, want ZxidNull", from)
	}
}
