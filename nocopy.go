package zab

// noCopy is embedded in structs that hold channels and must never be copied
// after construction; `go vet` flags accidental copies via the Lock/Unlock
// methods below.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
