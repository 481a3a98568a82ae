package main

import (
	"context"
	"sort"

	"github.com/kzab/zab"
)

// staticOracle is the simplest possible zab.ElectionOracle: the
// lowest-sorting server id in the configuration always wins. Real
// deployments plug in a quorum-backed oracle, e.g. a lease held in an
// external coordination service, whose expiry drives Changes(); this one
// exists so the demo binary has something to drive Participant.Serve with.
type staticOracle struct{}

func (staticOracle) Elect(ctx context.Context, cfg zab.ClusterConfig) (string, error) {
	ids := make([]string, 0, len(cfg.Peers))
	for _, p := range cfg.Peers {
		ids = append(ids, p.Id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return "", zab.ErrJoinFailure
	}
	return ids[0], nil
}

// Changes never fires: the lowest-id rule never changes its mind about who
// should lead a given configuration, so there is nothing to restart for.
func (staticOracle) Changes() <-chan struct{} { return nil }
