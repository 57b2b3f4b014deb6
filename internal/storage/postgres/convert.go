package postgres

import (
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/cartrita/cartrita/internal/domain"
)

// jsonbOr returns the raw bytes or a fallback literal for empty values, so
// jsonb NOT NULL defaults hold on insert.
func jsonbOr(b []byte, fallback string) JSONB {
	if len(b) == 0 {
		return JSONB(fallback)
	}
	return JSONB(b)
}

func marshalJSONB(v any, fallback string) JSONB {
	if v == nil {
		return JSONB(fallback)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return JSONB(fallback)
	}
	return JSONB(b)
}

// --- User ---

func toUserModel(u *domain.User) UserModel {
	return UserModel{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func toUserDomain(m *UserModel) *domain.User {
	return &domain.User{
		ID:          m.ID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// --- Role ---

func toRoleModel(r *domain.Role) RoleModel {
	return RoleModel{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: marshalJSONB(r.Permissions, "[]"),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toRoleDomain(m *RoleModel) *domain.Role {
	var perms []string
	if len(m.Permissions) > 0 {
		_ = json.Unmarshal(m.Permissions, &perms)
	}
	return &domain.Role{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Permissions: perms,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// --- Session ---

func toSessionModel(s *domain.Session) SessionModel {
	return SessionModel{
		ID:        s.ID,
		UserID:    s.UserID,
		TokenID:   s.TokenID,
		UserAgent: s.UserAgent,
		IPAddress: s.IPAddress,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		RevokedAt: s.RevokedAt,
	}
}

func toSessionDomain(m *SessionModel) *domain.Session {
	return &domain.Session{
		ID:        m.ID,
		UserID:    m.UserID,
		TokenID:   m.TokenID,
		UserAgent: m.UserAgent,
		IPAddress: m.IPAddress,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
		RevokedAt: m.RevokedAt,
	}
}

// --- Workflow ---

func toWorkflowModel(wf *domain.Workflow) WorkflowModel {
	return WorkflowModel{
		ID:           wf.ID,
		UserID:       wf.UserID,
		Name:         wf.Name,
		Description:  wf.Description,
		WorkflowData: jsonbOr(wf.WorkflowData, "{}"),
		IsActive:     wf.IsActive,
		CreatedAt:    wf.CreatedAt,
		UpdatedAt:    wf.UpdatedAt,
	}
}

func toWorkflowDomain(m *WorkflowModel) *domain.Workflow {
	return &domain.Workflow{
		ID:           m.ID,
		UserID:       m.UserID,
		Name:         m.Name,
		Description:  m.Description,
		WorkflowData: []byte(m.WorkflowData),
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func toExecutionModel(ex *domain.WorkflowExecution) WorkflowExecutionModel {
	return WorkflowExecutionModel{
		ID:          ex.ID,
		OldID:       ex.OldID,
		WorkflowID:  ex.WorkflowID,
		UserID:      ex.UserID,
		Status:      string(ex.Status),
		TriggeredBy: ex.TriggeredBy,
		Input:       jsonbOr(ex.Input, "null"),
		Output:      jsonbOr(ex.Output, "null"),
		Error:       ex.Error,
		StartedAt:   ex.StartedAt,
		CompletedAt: ex.CompletedAt,
		DurationMS:  ex.DurationMS,
		CreatedAt:   ex.CreatedAt,
		UpdatedAt:   ex.UpdatedAt,
	}
}

func toExecutionDomain(m *WorkflowExecutionModel) *domain.WorkflowExecution {
	return &domain.WorkflowExecution{
		ID:          m.ID,
		OldID:       m.OldID,
		WorkflowID:  m.WorkflowID,
		UserID:      m.UserID,
		Status:      domain.ExecutionStatus(m.Status),
		TriggeredBy: m.TriggeredBy,
		Input:       []byte(m.Input),
		Output:      []byte(m.Output),
		Error:       m.Error,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		DurationMS:  m.DurationMS,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// --- Schedule ---

func toScheduleModel(s *domain.WorkflowSchedule) WorkflowScheduleModel {
	return WorkflowScheduleModel{
		ID:             s.ID,
		WorkflowID:     s.WorkflowID,
		UserID:         s.UserID,
		Name:           s.Name,
		ScheduleType:   string(s.ScheduleType),
		CronExpression: s.CronExpression,
		IntervalS:      int64(s.Interval / time.Second),
		RunAt:          s.RunAt,
		Priority:       s.Priority,
		Enabled:        s.Enabled,
		NextRunAt:      s.NextRunAt,
		LastRunAt:      s.LastRunAt,
		LastStatus:     string(s.LastStatus),
		LastError:      s.LastError,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func toScheduleDomain(m *WorkflowScheduleModel) *domain.WorkflowSchedule {
	return &domain.WorkflowSchedule{
		ID:             m.ID,
		WorkflowID:     m.WorkflowID,
		UserID:         m.UserID,
		Name:           m.Name,
		ScheduleType:   domain.ScheduleType(m.ScheduleType),
		CronExpression: m.CronExpression,
		Interval:       time.Duration(m.IntervalS) * time.Second,
		RunAt:          m.RunAt,
		Priority:       m.Priority,
		Enabled:        m.Enabled,
		NextRunAt:      m.NextRunAt,
		LastRunAt:      m.LastRunAt,
		LastStatus:     domain.ExecutionStatus(m.LastStatus),
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toQueueModel(item *domain.ScheduleQueueItem) ScheduleQueueModel {
	return ScheduleQueueModel{
		ID:          item.ID,
		ScheduleID:  item.ScheduleID,
		WorkflowID:  item.WorkflowID,
		UserID:      item.UserID,
		Priority:    item.Priority,
		Status:      string(item.Status),
		ClaimedBy:   item.ClaimedBy,
		ClaimedAt:   item.ClaimedAt,
		EnqueuedAt:  item.EnqueuedAt,
		CompletedAt: item.CompletedAt,
	}
}

func toQueueDomain(m *ScheduleQueueModel) domain.ScheduleQueueItem {
	return domain.ScheduleQueueItem{
		ID:          m.ID,
		ScheduleID:  m.ScheduleID,
		WorkflowID:  m.WorkflowID,
		UserID:      m.UserID,
		Priority:    m.Priority,
		Status:      domain.ExecutionStatus(m.Status),
		ClaimedBy:   m.ClaimedBy,
		ClaimedAt:   m.ClaimedAt,
		EnqueuedAt:  m.EnqueuedAt,
		CompletedAt: m.CompletedAt,
	}
}

func toScheduleExecutionModel(ex *domain.ScheduleExecution) ScheduleExecutionModel {
	return ScheduleExecutionModel{
		ID:          ex.ID,
		ScheduleID:  ex.ScheduleID,
		ExecutionID: ex.ExecutionID,
		Status:      string(ex.Status),
		Error:       ex.Error,
		StartedAt:   ex.StartedAt,
		CompletedAt: ex.CompletedAt,
		DurationMS:  ex.DurationMS,
	}
}

func toScheduleExecutionDomain(m *ScheduleExecutionModel) domain.ScheduleExecution {
	return domain.ScheduleExecution{
		ID:          m.ID,
		ScheduleID:  m.ScheduleID,
		ExecutionID: m.ExecutionID,
		Status:      domain.ExecutionStatus(m.Status),
		Error:       m.Error,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		DurationMS:  m.DurationMS,
	}
}

// --- Integration ---

func toIntegrationModel(in *domain.Integration) IntegrationModel {
	return IntegrationModel{
		ID:          in.ID,
		UserID:      in.UserID,
		ServiceName: in.ServiceName,
		DisplayName: in.DisplayName,
		Config:      jsonbOr(in.Config, "{}"),
		Enabled:     in.Enabled,
		CreatedAt:   in.CreatedAt,
		UpdatedAt:   in.UpdatedAt,
	}
}

func toIntegrationDomain(m *IntegrationModel) *domain.Integration {
	return &domain.Integration{
		ID:          m.ID,
		UserID:      m.UserID,
		ServiceName: m.ServiceName,
		DisplayName: m.DisplayName,
		Config:      []byte(m.Config),
		Enabled:     m.Enabled,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toWebhookModel(wh *domain.Webhook) WebhookModel {
	return WebhookModel{
		ID:            wh.ID,
		IntegrationID: wh.IntegrationID,
		URL:           wh.URL,
		Secret:        wh.Secret,
		EventTypes:    marshalJSONB(wh.EventTypes, "[]"),
		Enabled:       wh.Enabled,
		CreatedAt:     wh.CreatedAt,
		UpdatedAt:     wh.UpdatedAt,
	}
}

func toWebhookDomain(m *WebhookModel) *domain.Webhook {
	var events []string
	if len(m.EventTypes) > 0 {
		_ = json.Unmarshal(m.EventTypes, &events)
	}
	return &domain.Webhook{
		ID:            m.ID,
		IntegrationID: m.IntegrationID,
		URL:           m.URL,
		Secret:        m.Secret,
		EventTypes:    events,
		Enabled:       m.Enabled,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// --- Knowledge ---

func toChunkModel(c *domain.KnowledgeChunk) KnowledgeChunkModel {
	return KnowledgeChunkModel{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		ChunkIndex: c.ChunkIndex,
		Content:    c.Content,
		Embedding:  pgvector.NewVector(c.Embedding),
		TokenCount: c.TokenCount,
		CreatedAt:  c.CreatedAt,
	}
}

func toChunkDomain(m *KnowledgeChunkModel) domain.KnowledgeChunk {
	return domain.KnowledgeChunk{
		ID:         m.ID,
		DocumentID: m.DocumentID,
		ChunkIndex: m.ChunkIndex,
		Content:    m.Content,
		Embedding:  m.Embedding.Slice(),
		TokenCount: m.TokenCount,
		CreatedAt:  m.CreatedAt,
	}
}

// --- Schedule statistics ---

func toStatisticsModel(st *domain.ScheduleStatistics) ScheduleStatisticsModel {
	return ScheduleStatisticsModel{
		ScheduleID:    st.ScheduleID,
		TotalRuns:     st.TotalRuns,
		SuccessRuns:   st.SuccessRuns,
		FailedRuns:    st.FailedRuns,
		AvgDurationMS: st.AvgDurationMS,
		LastRunAt:     st.LastRunAt,
		UpdatedAt:     st.UpdatedAt,
	}
}

func toStatisticsDomain(m *ScheduleStatisticsModel) *domain.ScheduleStatistics {
	return &domain.ScheduleStatistics{
		ScheduleID:    m.ScheduleID,
		TotalRuns:     m.TotalRuns,
		SuccessRuns:   m.SuccessRuns,
		FailedRuns:    m.FailedRuns,
		AvgDurationMS: m.AvgDurationMS,
		LastRunAt:     m.LastRunAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// --- Integration executions, tokens, rate limits ---

func toIntegrationExecutionModel(ex *domain.IntegrationExecution) IntegrationExecutionModel {
	return IntegrationExecutionModel{
		ID:            ex.ID,
		IntegrationID: ex.IntegrationID,
		Operation:     ex.Operation,
		Status:        string(ex.Status),
		DurationMS:    ex.DurationMS,
		Error:         ex.Error,
		CreatedAt:     ex.CreatedAt,
	}
}

func toIntegrationExecutionDomain(m *IntegrationExecutionModel) domain.IntegrationExecution {
	return domain.IntegrationExecution{
		ID:            m.ID,
		IntegrationID: m.IntegrationID,
		Operation:     m.Operation,
		Status:        domain.ExecutionStatus(m.Status),
		DurationMS:    m.DurationMS,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}

func toAuthTokenModel(tok *domain.IntegrationAuthToken) IntegrationAuthTokenModel {
	return IntegrationAuthTokenModel{
		ID:            tok.ID,
		IntegrationID: tok.IntegrationID,
		TokenType:     tok.TokenType,
		AccessToken:   tok.AccessToken,
		RefreshToken:  tok.RefreshToken,
		ExpiresAt:     tok.ExpiresAt,
		CreatedAt:     tok.CreatedAt,
		UpdatedAt:     tok.UpdatedAt,
	}
}

func toAuthTokenDomain(m *IntegrationAuthTokenModel) *domain.IntegrationAuthToken {
	return &domain.IntegrationAuthToken{
		ID:            m.ID,
		IntegrationID: m.IntegrationID,
		TokenType:     m.TokenType,
		AccessToken:   m.AccessToken,
		RefreshToken:  m.RefreshToken,
		ExpiresAt:     m.ExpiresAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toRateLimitModel(rl *domain.IntegrationRateLimit) IntegrationRateLimitModel {
	return IntegrationRateLimitModel{
		IntegrationID:     rl.IntegrationID,
		RequestsPerMinute: rl.RequestsPerMinute,
		BurstSize:         rl.BurstSize,
		UpdatedAt:         rl.UpdatedAt,
	}
}

func toRateLimitDomain(m *IntegrationRateLimitModel) domain.IntegrationRateLimit {
	return domain.IntegrationRateLimit{
		IntegrationID:     m.IntegrationID,
		RequestsPerMinute: m.RequestsPerMinute,
		BurstSize:         m.BurstSize,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toWebhookEventModel(ev *domain.WebhookEvent) WebhookEventModel {
	return WebhookEventModel{
		ID:          ev.ID,
		WebhookID:   ev.WebhookID,
		EventType:   ev.EventType,
		Payload:     jsonbOr(ev.Payload, "null"),
		Status:      string(ev.Status),
		AttemptedAt: ev.AttemptedAt,
		RetryCount:  ev.RetryCount,
		Error:       ev.Error,
	}
}

func toWebhookEventDomain(m *WebhookEventModel) domain.WebhookEvent {
	return domain.WebhookEvent{
		ID:          m.ID,
		WebhookID:   m.WebhookID,
		EventType:   m.EventType,
		Payload:     []byte(m.Payload),
		Status:      domain.ExecutionStatus(m.Status),
		AttemptedAt: m.AttemptedAt,
		RetryCount:  m.RetryCount,
		Error:       m.Error,
	}
}

// --- Knowledge documents, queries, relationships ---

func toDocumentModel(doc *domain.KnowledgeDocument) KnowledgeDocumentModel {
	return KnowledgeDocumentModel{
		ID:          doc.ID,
		UserID:      doc.UserID,
		Title:       doc.Title,
		SourceType:  doc.SourceType,
		SourceRef:   doc.SourceRef,
		ContentHash: doc.ContentHash,
		ChunkCount:  doc.ChunkCount,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func toDocumentDomain(m *KnowledgeDocumentModel) *domain.KnowledgeDocument {
	return &domain.KnowledgeDocument{
		ID:          m.ID,
		UserID:      m.UserID,
		Title:       m.Title,
		SourceType:  m.SourceType,
		SourceRef:   m.SourceRef,
		ContentHash: m.ContentHash,
		ChunkCount:  m.ChunkCount,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toQueryModel(q *domain.KnowledgeQuery) KnowledgeQueryModel {
	return KnowledgeQueryModel{
		ID:          q.ID,
		UserID:      q.UserID,
		QueryText:   q.QueryText,
		ResultCount: q.ResultCount,
		LatencyMS:   q.LatencyMS,
		CreatedAt:   q.CreatedAt,
	}
}

func toRelationshipModel(rel *domain.KnowledgeRelationship) KnowledgeRelationshipModel {
	return KnowledgeRelationshipModel{
		ID:           rel.ID,
		SourceDocID:  rel.SourceDocID,
		TargetDocID:  rel.TargetDocID,
		RelationType: rel.RelationType,
		Weight:       rel.Weight,
		CreatedAt:    rel.CreatedAt,
	}
}

func toRelationshipDomain(m *KnowledgeRelationshipModel) domain.KnowledgeRelationship {
	return domain.KnowledgeRelationship{
		ID:           m.ID,
		SourceDocID:  m.SourceDocID,
		TargetDocID:  m.TargetDocID,
		RelationType: m.RelationType,
		Weight:       m.Weight,
		CreatedAt:    m.CreatedAt,
	}
}

// --- Chat ---

func toChatSessionModel(s *domain.ChatSession) ChatSessionModel {
	return ChatSessionModel{
		ID:           s.ID,
		UserID:       s.UserID,
		Title:        s.Title,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func toChatSessionDomain(m *ChatSessionModel) *domain.ChatSession {
	return &domain.ChatSession{
		ID:           m.ID,
		UserID:       m.UserID,
		Title:        m.Title,
		MessageCount: m.MessageCount,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func toChatMessageModel(msg *domain.ChatMessage) ChatMessageModel {
	return ChatMessageModel{
		ID:            msg.ID,
		SessionID:     msg.SessionID,
		SeqNum:        msg.SeqNum,
		Role:          msg.Role,
		Content:       msg.Content,
		TokenEstimate: msg.TokenEstimate,
		CreatedAt:     msg.CreatedAt,
	}
}

func toChatMessageDomain(m *ChatMessageModel) domain.ChatMessage {
	return domain.ChatMessage{
		ID:            m.ID,
		SessionID:     m.SessionID,
		SeqNum:        m.SeqNum,
		Role:          m.Role,
		Content:       m.Content,
		TokenEstimate: m.TokenEstimate,
		CreatedAt:     m.CreatedAt,
	}
}

// --- Security test runs ---

func toTestRunModel(run *domain.SecurityTestRun) SecurityTestRunModel {
	return SecurityTestRunModel{
		ID:          run.ID,
		TriggeredBy: run.TriggeredBy,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		CreatedAt:   run.CreatedAt,
	}
}

func toTestRunDomain(m *SecurityTestRunModel) *domain.SecurityTestRun {
	return &domain.SecurityTestRun{
		ID:          m.ID,
		TriggeredBy: m.TriggeredBy,
		Status:      domain.ExecutionStatus(m.Status),
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		CreatedAt:   m.CreatedAt,
	}
}

func toTestResultModel(res *domain.SecurityTestResult) SecurityTestResultModel {
	return SecurityTestResultModel{
		ID:         res.ID,
		RunID:      res.RunID,
		TestName:   res.TestName,
		Passed:     res.Passed,
		Message:    res.Message,
		DurationMS: res.Duration.Milliseconds(),
	}
}

func toTestResultDomain(m *SecurityTestResultModel) domain.SecurityTestResult {
	return domain.SecurityTestResult{
		ID:       m.ID,
		RunID:    m.RunID,
		TestName: m.TestName,
		Passed:   m.Passed,
		Message:  m.Message,
		Duration: time.Duration(m.DurationMS) * time.Millisecond,
	}
}

func toVulnerabilityModel(v *domain.SecurityVulnerability) SecurityVulnerabilityModel {
	return SecurityVulnerabilityModel{
		ID:          v.ID,
		ResultID:    v.ResultID,
		Severity:    string(v.Severity),
		Title:       v.Title,
		Description: v.Description,
		Remediation: v.Remediation,
		CreatedAt:   v.CreatedAt,
	}
}

func toVulnerabilityDomain(m *SecurityVulnerabilityModel) domain.SecurityVulnerability {
	return domain.SecurityVulnerability{
		ID:          m.ID,
		ResultID:    m.ResultID,
		Severity:    domain.Severity(m.Severity),
		Title:       m.Title,
		Description: m.Description,
		Remediation: m.Remediation,
		CreatedAt:   m.CreatedAt,
	}
}

// --- Masking rules ---

func toMaskingRuleModel(r *domain.MaskingRule) MaskingRuleModel {
	return MaskingRuleModel{
		ID:         r.ID,
		TableName_: r.TableName,
		ColumnName: r.Column,
		Strategy:   r.Strategy,
		Enabled:    r.Enabled,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func toMaskingRuleDomain(m *MaskingRuleModel) domain.MaskingRule {
	return domain.MaskingRule{
		ID:        m.ID,
		TableName: m.TableName_,
		Column:    m.ColumnName,
		Strategy:  m.Strategy,
		Enabled:   m.Enabled,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// --- Audit ---

func toAuditModel(ev *domain.AuditEvent) AuditEventModel {
	return AuditEventModel{
		ID:            ev.ID,
		CorrelationID: ev.CorrelationID,
		UserID:        ev.UserID,
		Action:        ev.Action,
		Resource:      ev.Resource,
		Parameters:    marshalJSONB(ev.Parameters, "{}"),
		Result:        ev.Result,
		Severity:      string(ev.Severity),
		IPAddress:     ev.IPAddress,
		Error:         ev.Error,
		CreatedAt:     ev.CreatedAt,
	}
}

func toAuditDomain(m *AuditEventModel) domain.AuditEvent {
	var params map[string]any
	if len(m.Parameters) > 0 {
		_ = json.Unmarshal(m.Parameters, &params)
	}
	return domain.AuditEvent{
		ID:            m.ID,
		CorrelationID: m.CorrelationID,
		UserID:        m.UserID,
		Action:        m.Action,
		Resource:      m.Resource,
		Parameters:    params,
		Result:        m.Result,
		Severity:      domain.Severity(m.Severity),
		IPAddress:     m.IPAddress,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}
