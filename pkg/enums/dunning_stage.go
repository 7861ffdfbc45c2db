package enums

import "fmt"

// DunningStage names one step of the overdue-invoice workflow, in order.
type DunningStage string

const (
	DunningStagePaymentRequest DunningStage = "payment_request"
	DunningStageFirstReminder  DunningStage = "first_reminder"
	DunningStageSecondReminder DunningStage = "second_reminder"
	DunningStageFinalReminder  DunningStage = "final_reminder"
)

// DunningStages lists the stages in the order they must be sent.
var DunningStages = []DunningStage{
	DunningStagePaymentRequest,
	DunningStageFirstReminder,
	DunningStageSecondReminder,
	DunningStageFinalReminder,
}

func (d DunningStage) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DunningStage.
func (d DunningStage) IsValid() bool {
	for _, candidate := range DunningStages {
		if candidate == d {
			return true
		}
	}
	return false
}

// Ordinal returns the zero-based position of the stage, or -1 when unknown.
func (d DunningStage) Ordinal() int {
	for i, candidate := range DunningStages {
		if candidate == d {
			return i
		}
	}
	return -1
}

// ParseDunningStage converts raw input into a DunningStage.
func ParseDunningStage(value string) (DunningStage, error) {
	for _, candidate := range DunningStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dunning stage %q", value)
}
