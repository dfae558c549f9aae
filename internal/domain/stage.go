package domain

// Stage represents the current phase of a Task in the pipeline.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageDownloading  Stage = "downloading"
	StageTranscribing Stage = "transcribing"
	StageSummarizing  Stage = "summarizing"
	StageExporting    Stage = "exporting"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// PipelineStages lists the working stages in execution order.
var PipelineStages = []Stage{
	StageDownloading,
	StageTranscribing,
	StageSummarizing,
	StageExporting,
}

var stageOrder = map[Stage]int{
	StageQueued:       0,
	StageDownloading:  1,
	StageTranscribing: 2,
	StageSummarizing:  3,
	StageExporting:    4,
	StageCompleted:    5,
}

// IsTerminal reports whether the stage permits no further transitions.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanAdvanceTo reports whether a task currently in stage s may move to next.
// Forward moves along the pipeline and the jump to failed are allowed;
// backward moves are not.
func (s Stage) CanAdvanceTo(next Stage) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	to, ok := stageOrder[next]
	if !ok {
		return false
	}
	return to >= from
}
