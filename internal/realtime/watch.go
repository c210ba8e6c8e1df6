package realtime

import (
	"context"

	"devconnect/internal/devtypes"
)

// ProfileWatch keeps an open profile view fresh while the viewer has
// it on screen. It subscribes to the subject's profile record plus the
// viewer/subject pair's request and connection rows, and invokes the
// refresh callback on every matching change. The callback is expected
// to re-fetch the full view state rather than patch it from the event
// payload, so out-of-order or dropped events cannot leave the view
// stale past the next event.
type ProfileWatch struct {
	sub  *Subscription
	done chan struct{}
}

// WatchProfilePair opens a watch for viewerID looking at subjectID's
// profile. refresh runs on the watch's own goroutine; it must be safe
// to call repeatedly. Close the watch when the view goes away.
func WatchProfilePair(hub *Hub, viewerID, subjectID uint, refresh func(ctx context.Context)) *ProfileWatch {
	sub := hub.Subscribe(
		devtypes.EventFilter{Table: devtypes.TableProfiles, ProfileID: subjectID},
		devtypes.EventFilter{Table: devtypes.TableConnectionRequests, PairA: viewerID, PairB: subjectID},
		devtypes.EventFilter{Table: devtypes.TableConnections, PairA: viewerID, PairB: subjectID},
	)

	w := &ProfileWatch{
		sub:  sub,
		done: make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		for range sub.C {
			refresh(context.Background())
		}
	}()

	return w
}

// Close tears down the watch and waits for the refresh goroutine to
// exit, so no refresh runs after Close returns.
func (w *ProfileWatch) Close() {
	w.sub.Close()
	<-w.done
}
