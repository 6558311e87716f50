package buildpipeline

import "time"

// Stage describes a high-level pipeline phase.
type Stage string

const (
	// StageResolve loads the manifest targets into a dependency graph.
	StageResolve Stage = "resolve"
	// StageGenerate expands library templates into concrete sources.
	StageGenerate Stage = "generate"
	// StageCompile compiles generated sources into objects.
	StageCompile Stage = "compile"
	// StageArchive packs library objects into static archives.
	StageArchive Stage = "archive"
	// StageLink links the library archives into the consumer.
	StageLink Stage = "link"
)

// Stages returns the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StageResolve, StageGenerate, StageCompile, StageArchive, StageLink}
}

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the target is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the target is currently being processed.
	StatusWorking Status = "working"
	// StatusDone indicates the target is done.
	StatusDone Status = "done"
	// StatusError indicates the target encountered an error.
	StatusError Status = "error"
)

// Event reports progress for a target (or for the overall pipeline when
// Target is empty).
type Event struct {
	Target  string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds stage durations.
type Timings struct {
	stages map[Stage]time.Duration
}

func (t *Timings) ensure() {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] = dur
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	if t.stages == nil {
		return false
	}
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	return t.stages[stage]
}

// Sum returns the sum of durations across the provided stages.
func (t Timings) Sum(stages ...Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	var total time.Duration
	for _, stage := range stages {
		total += t.stages[stage]
	}
	return total
}

// Total returns the sum across all pipeline stages.
func (t Timings) Total() time.Duration {
	return t.Sum(Stages()...)
}
