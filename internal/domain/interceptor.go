package domain

import (
	"sync"

	"github.com/StartiOne/upstream-proxy/internal/httpmsg"
)

// Transform is a user-supplied, synchronous, non-blocking mutation
// over a parsed message. It may mutate headers, method/URL (request
// side), status (response side), or the Upgrade field in place.
// Transforms are supplied by the embedding program; this package only
// supplies the ordered-registration pipeline that invokes them.
type Transform func(msg *httpmsg.Message)

// InterceptorList is an append-only, ordered sequence of Transforms
// for one direction (request or response). Apply invokes every
// registered transform, in registration order, exactly once per
// message. Registration may race with an in-flight Apply; it is only
// guaranteed to affect subsequently applied messages.
type InterceptorList struct {
	mu         sync.RWMutex
	transforms []Transform
}

// Append registers t as the next transform to run, after any already
// registered.
func (l *InterceptorList) Append(t Transform) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transforms = append(l.transforms, t)
}

// Apply runs every registered transform, in order, against msg.
func (l *InterceptorList) Apply(msg *httpmsg.Message) {
	l.mu.RLock()
	transforms := l.transforms
	l.mu.RUnlock()
	for _, t := range transforms {
		t(msg)
	}
}

// Len reports how many transforms are currently registered.
func (l *InterceptorList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.transforms)
}

// InterceptorPipeline holds the two ordered sequences of transforms,
// one for the request side and one for the response side.
type InterceptorPipeline struct {
	Request  InterceptorList
	Response InterceptorList
}
