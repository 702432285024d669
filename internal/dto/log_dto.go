package dto

type LogListRequest struct {
	Level  string `query:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=500"`
	Offset int    `query:"offset" validate:"omitempty,min=0"`
}

type LogEntryResponse struct {
	Level     string                 `json:"level"`
	Timestamp string                 `json:"timestamp"`
	Module    string                 `json:"module"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}
