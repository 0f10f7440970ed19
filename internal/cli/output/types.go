package output

import "time"

// ProjectInfo is one project in `list` output.
type ProjectInfo struct {
	Name      string   `json:"name"`
	Dir       string   `json:"dir"`
	Kind      string   `json:"kind"` // command, script or none
	DependsOn []string `json:"depends_on"`
	UsedBy    []string `json:"used_by"`
}

// ListOutput is the JSON shape of `list`.
type ListOutput struct {
	Name     string        `json:"name"`
	BuildDir string        `json:"build_dir"`
	Projects []ProjectInfo `json:"projects"`
}

// DAGNode is one project within a level.
type DAGNode struct {
	Name      string   `json:"name"`
	DependsOn []string `json:"depends_on"`
	UsedBy    []string `json:"used_by"`
}

// DAGLevel groups projects whose dependencies are all in earlier levels.
type DAGLevel struct {
	Level    int       `json:"level"`
	Projects []DAGNode `json:"projects"`
}

// DAGOutput is the JSON shape of `dag`.
type DAGOutput struct {
	Levels        []DAGLevel `json:"levels"`
	TotalProjects int        `json:"total_projects"`
	TotalEdges    int        `json:"total_edges"`
}

// OrderOutput is the JSON shape of `order`.
type OrderOutput struct {
	Order []string `json:"order"`
}

// PathEntry is one project output directory.
type PathEntry struct {
	Name string `json:"name"`
	Dir  string `json:"dir"`
}

// PathsOutput is the JSON shape of `paths`.
type PathsOutput struct {
	BuildDir string      `json:"build_dir"`
	Paths    []PathEntry `json:"paths"`
}

// ProjectRunInfo is one evaluated project within a run.
type ProjectRunInfo struct {
	Project    string `json:"project"`
	Status     string `json:"status"`
	OutputDir  string `json:"output_dir"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// RunOutput is the JSON shape of one evaluation run.
type RunOutput struct {
	ID          string           `json:"id"`
	Environment string           `json:"environment"`
	Status      string           `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       string           `json:"error,omitempty"`
	Projects    []ProjectRunInfo `json:"projects,omitempty"`
}

// HistoryOutput is the JSON shape of `history`.
type HistoryOutput struct {
	Runs []RunOutput `json:"runs"`
}
