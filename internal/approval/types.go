package approval

import (
	"github.com/mautops/approval-chain/internal/model"
)

// Outcome 审批结果
type Outcome string

// 审批结果
const (
	OutcomeApproved Outcome = model.RecordStatusApproved
	OutcomeRejected Outcome = model.RecordStatusRejected
)

// Valid 是否为合法的审批结果
func (o Outcome) Valid() bool {
	return o == OutcomeApproved || o == OutcomeRejected
}

// DecisionResult 决定结果
type DecisionResult struct {
	Record           *model.ApprovalRecordModel `json:"record"`
	Final            bool                       `json:"final"` // 是否完成了整个审批链
	ChangesRequested bool                       `json:"changes_requested"`
	NextRecord       *model.ApprovalRecordModel `json:"next_record,omitempty"`
	ItemStatus       string                     `json:"item_status"`
}
