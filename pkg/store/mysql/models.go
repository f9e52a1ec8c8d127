package mysql

import "termpool/pkg/store/mysql/model"

type (
	// Database models
	AuditEventRecord = model.AuditEvent
	EscalationRecord = model.EscalationRecord

	// Custom JSON types
	JSONMap         = model.JSONMap
	JSONStringArray = model.JSONStringArray
	JSONArray       = model.JSONArray
)
