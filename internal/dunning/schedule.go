package dunning

import (
	"time"

	"github.com/aklauser/marktplatz-backend/pkg/db/models"
	"github.com/aklauser/marktplatz-backend/pkg/enums"
)

// Day offsets, measured from the invoice creation date, at which each stage
// becomes due.
var stageOffsets = map[enums.DunningStage]int{
	enums.DunningStagePaymentRequest: 14,
	enums.DunningStageFirstReminder:  30,
	enums.DunningStageSecondReminder: 44,
	enums.DunningStageFinalReminder:  58,
}

// StageOffsetDays exposes the day offset for a stage, -1 when unknown.
func StageOffsetDays(stage enums.DunningStage) int {
	offset, ok := stageOffsets[stage]
	if !ok {
		return -1
	}
	return offset
}

// NextDueStage returns the next unsent stage that is due for the invoice at
// the given time. Stages are walked in order, so a later stage can never come
// back before an earlier one; at most one stage is returned per call, which
// also means per sweep run. An invoice created long ago therefore catches up
// one stage per sweep rather than receiving four reminders at once.
func NextDueStage(invoice *models.Invoice, now time.Time) (enums.DunningStage, bool) {
	if invoice == nil || !invoice.Status.IsOpen() {
		return "", false
	}
	age := invoice.AgeDays(now)
	for _, stage := range enums.DunningStages {
		if invoice.StageSentAt(stage) != nil {
			continue
		}
		if age >= stageOffsets[stage] {
			return stage, true
		}
		return "", false
	}
	return "", false
}
