package zab

import "fmt"

// Zxid is the total order transaction id used throughout the ensemble: a
// monotonically increasing counter scoped to an epoch. ZxidNull precedes all
// real transaction ids and marks an empty log or an unestablished epoch.
type Zxid struct {
	Epoch   uint32
	Counter uint64
}

// ZxidNull is the sentinel that precedes every real zxid.
var ZxidNull = Zxid{}

// Less reports whether z sorts strictly before o in the (epoch, counter)
// lexicographic order.
func (z Zxid) Less(o Zxid) bool {
	if z.Epoch != o.Epoch {
		return z.Epoch < o.Epoch
	}
	return z.Counter < o.Counter
}

// LessOrEqual reports whether z sorts at or before o.
func (z Zxid) LessOrEqual(o Zxid) bool {
	return z == o || z.Less(o)
}

// Greater reports whether z sorts strictly after o.
func (z Zxid) Greater(o Zxid) bool {
	return o.Less(z)
}

// GreaterOrEqual reports whether z sorts at or after o.
func (z Zxid) GreaterOrEqual(o Zxid) bool {
	return z == o || o.Less(z)
}

// IsNull reports whether z is the ZxidNull sentinel.
func (z Zxid) IsNull() bool {
	return z == ZxidNull
}

func (z Zxid) String() string {
	return fmt.Sprintf("(%d,%d)", z.Epoch, z.Counter)
}

// Next returns the zxid that immediately follows z within the same epoch.
func (z Zxid) Next() Zxid {
	return Zxid{Epoch: z.Epoch, Counter: z.Counter + 1}
}
