package invoices

import "fmt"

// Rank orders statuses along the workflow. Unknown statuses rank lowest.
func (s Status) Rank() int {
	switch s {
	case StatusDraft:
		return 1
	case StatusDC:
		return 2
	case StatusTransport:
		return 3
	case StatusFinalized:
		return 4
	default:
		return 0
	}
}

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	return s.Rank() > 0
}

// Advance returns the later of s and to. Status never moves backwards.
func (s Status) Advance(to Status) Status {
	if to.Rank() > s.Rank() {
		return to
	}
	return s
}

// AfterChallanSaved moves a draft to DC.
func AfterChallanSaved(s Status) Status { return s.Advance(StatusDC) }

// AfterTransportSaved moves a draft or DC invoice to TRANSPORT.
func AfterTransportSaved(s Status) Status { return s.Advance(StatusTransport) }

// AfterBundleWritten marks the invoice finalized.
func AfterBundleWritten(s Status) Status { return s.Advance(StatusFinalized) }

// Stage is a step of the interactive workflow.
type Stage string

const (
	StageInvoice      Stage = "invoice"
	StageChallan      Stage = "dc"
	StageTransport    Stage = "transport"
	StageConfirmation Stage = "confirmation"
)

// StageUnreachableError reports that a stage cannot be entered yet. Callers
// redirect to Fallback; nothing has been changed.
type StageUnreachableError struct {
	Stage    Stage
	Status   Status
	Fallback Stage
	Message  string
}

func (e *StageUnreachableError) Error() string {
	return fmt.Sprintf("stage %s unreachable from %s: %s", e.Stage, e.Status, e.Message)
}

// Gate checks whether stage may be entered with status s.
func Gate(stage Stage, s Status) error {
	switch stage {
	case StageTransport:
		if s.Rank() < StatusDC.Rank() {
			return &StageUnreachableError{
				Stage:    stage,
				Status:   s,
				Fallback: StageChallan,
				Message:  "You must complete the Delivery Challan first.",
			}
		}
	case StageConfirmation:
		if s.Rank() < StatusTransport.Rank() {
			return &StageUnreachableError{
				Stage:    stage,
				Status:   s,
				Fallback: StageTransport,
				Message:  "Cannot access Confirmation Document yet. Please log Transport Charges first.",
			}
		}
	}
	return nil
}
