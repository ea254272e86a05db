package p2pstore

import (
	"golang.org/x/sync/errgroup"

	"github.com/trasherdk/haveno/internal/readygate"
)

// Bootstrap runs each store's initial load concurrently and invokes
// onReady exactly once when the last of them completes. Callers pass the
// protected-entry restore (Storage.Load) plus each append-only store's
// Load, and only register for ingress once onReady has fired, so no
// message ever races a partially restored store. A load error aborts the
// wait and onReady never fires.
func Bootstrap(onReady func(), loads ...func() error) error {
	gate := readygate.New(len(loads), onReady)
	var eg errgroup.Group
	for _, load := range loads {
		load := load
		eg.Go(func() error {
			if err := load(); err != nil {
				return err
			}
			gate.Done()
			return nil
		})
	}
	return eg.Wait()
}
