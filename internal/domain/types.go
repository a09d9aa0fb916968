package domain

// RunStatus represents the lifecycle state of a scraping run
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// ExecutionPhase is a human-readable status label emitted while a run executes
type ExecutionPhase string

// Phase labels in emission order
const (
	PhaseInitializing ExecutionPhase = "Initializing scraping environment..."
	PhaseAnalyzing    ExecutionPhase = "Analyzing prompt and generating script..."
	PhaseAutomation   ExecutionPhase = "Setting up browser automation..."
	PhaseProcessing   ExecutionPhase = "Processing..."
)

// Phases returns the fixed, ordered phase list. The slice is a copy.
func Phases() []ExecutionPhase {
	return []ExecutionPhase{
		PhaseInitializing,
		PhaseAnalyzing,
		PhaseAutomation,
		PhaseProcessing,
	}
}

// PhaseKind classifies a log line by the phase keyword it contains.
// Used by the presenters to colour log output.
type PhaseKind int

const (
	KindOther PhaseKind = iota
	KindInitializing
	KindAnalyzing
	KindAutomation
	KindProcessing
)
