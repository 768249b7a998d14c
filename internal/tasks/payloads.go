package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeRecommendJob       = "recommend:job"
	TypeRecommendCandidate = "recommend:candidate"
	TypeSavedSearchRun     = "savedsearch:run"

	QueueRecommendations = "recommendations"
)

// SubjectKind 标识推荐列表的主体类型。
type SubjectKind string

const (
	// SubjectJob 的推荐列表是候选人。
	SubjectJob SubjectKind = "job"
	// SubjectCandidate 的推荐列表是职位。
	SubjectCandidate SubjectKind = "candidate"
)

// TaskType 返回主体对应的任务类型。
func (k SubjectKind) TaskType() string {
	if k == SubjectJob {
		return TypeRecommendJob
	}
	return TypeRecommendCandidate
}

// Valid 报告是否为已知主体类型。
func (k SubjectKind) Valid() bool {
	return k == SubjectJob || k == SubjectCandidate
}

// SubjectKey 是主体的串行化键，例如 "job:12"。
func SubjectKey(kind SubjectKind, id uint) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// RegeneratePayload 描述一次推荐重算。Generation 为入队时的代数，用于合并重复任务。
type RegeneratePayload struct {
	Kind          SubjectKind `json:"kind"`
	SubjectID     uint        `json:"subject_id"`
	Generation    int64       `json:"generation"`
	CorrelationID string      `json:"correlation_id"`
}

// SavedSearchPayload 描述一次保存搜索的执行。
type SavedSearchPayload struct {
	SearchID      uint   `json:"search_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewRegenerateTask 构造推荐重算任务。
func NewRegenerateTask(p RegeneratePayload) (*asynq.Task, error) {
	if !p.Kind.Valid() {
		return nil, fmt.Errorf("unknown subject kind %q", p.Kind)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(p.Kind.TaskType(), payload), nil
}

// NewSavedSearchTask 构造保存搜索执行任务。
func NewSavedSearchTask(searchID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(SavedSearchPayload{
		SearchID:      searchID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSavedSearchRun, payload), nil
}

// ParseRegeneratePayload 解析并校验推荐重算任务。
func ParseRegeneratePayload(t *asynq.Task) (RegeneratePayload, error) {
	var p RegeneratePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("unmarshal regenerate payload: %w", err)
	}
	if !p.Kind.Valid() || p.SubjectID == 0 {
		return p, fmt.Errorf("invalid regenerate payload: kind=%q subject=%d", p.Kind, p.SubjectID)
	}
	if p.Kind.TaskType() != t.Type() {
		return p, fmt.Errorf("payload kind %q does not match task type %q", p.Kind, t.Type())
	}
	return p, nil
}

// ParseSavedSearchPayload 解析保存搜索任务。
func ParseSavedSearchPayload(t *asynq.Task) (SavedSearchPayload, error) {
	var p SavedSearchPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("unmarshal saved search payload: %w", err)
	}
	if p.SearchID == 0 {
		return p, fmt.Errorf("invalid saved search payload: missing search id")
	}
	return p, nil
}
