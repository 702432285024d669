package dto

type TelemetryRowDTO struct {
	Timestamp   string  `json:"timestamp"`
	ProcessID   int     `json:"process_id"`
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryMB    float64 `json:"memory_mb"`
	NetworkKBps float64 `json:"network_kbps"`
}

type TelemetryResponse struct {
	Header  string            `json:"header"`
	Rows    []TelemetryRowDTO `json:"rows"`
	MaxRows int               `json:"max_rows"`
	Text    string            `json:"text"`
}

type ProcessResponse struct {
	Id                 int      `json:"id"`
	OsProcessId        int      `json:"os_process_id"`
	Type               string   `json:"type"`
	Name               string   `json:"name"`
	CPUPercent         float64  `json:"cpu_percent"`
	PrivateMemoryBytes int64    `json:"private_memory_bytes"`
	NetworkKBps        float64  `json:"network_kbps"`
	Tasks              []string `json:"tasks"`
}

type TerminateProcessResponse struct {
	Id         int  `json:"id"`
	Terminated bool `json:"terminated"`
}
