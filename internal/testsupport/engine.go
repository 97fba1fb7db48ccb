package testsupport

import (
	"context"
	"fmt"
	"sync"

	"podium/internal/artifact"
	"podium/internal/render"
	"podium/internal/services"
)

// FakeEngine is a scriptable render.Engine for tests. Each job handle carries
// a queue of observations consumed one per JobState call; the last observation
// repeats once the queue drains. Safe for concurrent use.
type FakeEngine struct {
	mu sync.Mutex

	nextJob      int
	observations map[render.JobHandle][]artifact.Observation
	links        map[string]render.Links
	omittedJobs  map[int64]bool

	AudioErr error
	BooksErr error
	LinksErr error

	AudioRequests []render.AudioRequest
	BookRequests  []render.BookRequest
	StatePolls    map[render.JobHandle]int
}

// NewFakeEngine returns an empty engine; script jobs with ScriptJob and link
// sets with SetLinks before use.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		observations: make(map[render.JobHandle][]artifact.Observation),
		links:        make(map[string]render.Links),
		StatePolls:   make(map[render.JobHandle]int),
	}
}

// ScriptJob registers the observation sequence returned for a handle.
func (f *FakeEngine) ScriptJob(handle render.JobHandle, observations ...artifact.Observation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observations[handle] = observations
}

// OmitJob makes RenderPartBooks skip the given part identity, simulating an
// engine that accepts a batch but drops one of its parts.
func (f *FakeEngine) OmitJob(identityID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.omittedJobs == nil {
		f.omittedJobs = make(map[int64]bool)
	}
	f.omittedJobs[identityID] = true
}

// SetLinks registers the link set returned for an artifact key.
func (f *FakeEngine) SetLinks(key string, links render.Links) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[key] = links
}

// RenderAudio records the request and hands back a sequential handle.
func (f *FakeEngine) RenderAudio(_ context.Context, req render.AudioRequest) (render.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AudioErr != nil {
		return "", f.AudioErr
	}
	f.AudioRequests = append(f.AudioRequests, req)
	return f.newHandle(), nil
}

// RenderPartBooks records the request and hands back one handle per part.
func (f *FakeEngine) RenderPartBooks(_ context.Context, req render.BookRequest) ([]render.BookJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BooksErr != nil {
		return nil, f.BooksErr
	}
	f.BookRequests = append(f.BookRequests, req)
	jobs := make([]render.BookJob, 0, len(req.PartIdentityIDs))
	for _, identityID := range req.PartIdentityIDs {
		if f.omittedJobs[identityID] {
			continue
		}
		jobs = append(jobs, render.BookJob{PartIdentityID: identityID, Handle: f.newHandle()})
	}
	return jobs, nil
}

// JobState consumes the next scripted observation for the handle.
func (f *FakeEngine) JobState(_ context.Context, handle render.JobHandle) (artifact.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StatePolls[handle]++
	queue, ok := f.observations[handle]
	if !ok || len(queue) == 0 {
		return artifact.Observation{}, services.Wrap(services.ErrNotFound, "testsupport", "job state",
			fmt.Sprintf("no script for handle %s", handle), nil)
	}
	obs := queue[0]
	if len(queue) > 1 {
		f.observations[handle] = queue[1:]
	}
	return obs, nil
}

// ArtifactLinks returns the scripted link set for a key.
func (f *FakeEngine) ArtifactLinks(_ context.Context, key string) (render.Links, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LinksErr != nil {
		return render.Links{}, f.LinksErr
	}
	links, ok := f.links[key]
	if !ok {
		return render.Links{}, services.Wrap(services.ErrNotFound, "testsupport", "artifact links",
			fmt.Sprintf("no links for key %s", key), nil)
	}
	return links, nil
}

func (f *FakeEngine) newHandle() render.JobHandle {
	f.nextJob++
	return render.JobHandle(fmt.Sprintf("job-%d", f.nextJob))
}

var _ render.Engine = (*FakeEngine)(nil)
