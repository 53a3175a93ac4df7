// Package event 审批事件的发件箱写入与投递
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/approval-chain/internal/model"
)

// Payload 审批事件内容
type Payload struct {
	EventID          string    `json:"event_id"`
	EventType        string    `json:"event_type"`
	RecordID         string    `json:"record_id"`
	ItemID           string    `json:"item_id"`
	WorkspaceID      string    `json:"workspace_id"`
	BoardID          string    `json:"board_id"`
	Level            int       `json:"level"`
	Cycle            int       `json:"cycle"`
	Revision         int       `json:"revision"`
	ActorID          string    `json:"actor_id"`
	ActorName        string    `json:"actor_name,omitempty"`
	Comment          string    `json:"comment,omitempty"`
	ChangesRequested bool      `json:"changes_requested,omitempty"`
	ItemName         string    `json:"item_name,omitempty"`
	BoardName        string    `json:"board_name,omitempty"`
	WorkspaceName    string    `json:"workspace_name,omitempty"`
	Recipients       []string  `json:"recipients"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewPayload 根据审批记录和事项构建事件内容
func NewPayload(eventType string, record *model.ApprovalRecordModel, item *model.ItemModel, actorID string, at time.Time) *Payload {
	p := &Payload{
		EventID:          uuid.New().String(),
		EventType:        eventType,
		RecordID:         record.ID,
		ItemID:           record.ItemID,
		WorkspaceID:      record.WorkspaceID,
		BoardID:          record.BoardID,
		Level:            record.Level,
		Cycle:            record.Cycle,
		Revision:         record.Revision,
		ActorID:          actorID,
		ChangesRequested: record.ChangesRequested,
		ItemName:         item.Name,
		BoardName:        item.BoardName,
		WorkspaceName:    item.WorkspaceName,
		Recipients:       []string{},
		Timestamp:        at,
	}
	if record.Comments != nil {
		p.Comment = *record.Comments
	}
	return p
}

// ToModel 序列化为发件箱记录
func (p *Payload) ToModel() (*model.ApprovalEventModel, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &model.ApprovalEventModel{
		ID:        p.EventID,
		RecordID:  p.RecordID,
		ItemID:    p.ItemID,
		Type:      p.EventType,
		Payload:   data,
		EmittedAt: p.Timestamp,
	}, nil
}

// DecodePayload 从发件箱记录解析事件内容
func DecodePayload(ev *model.ApprovalEventModel) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
	}
	return &p, nil
}
