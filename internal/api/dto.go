package api

// StartRunRequest is the request body for starting a run.
type StartRunRequest struct {
	Path   string `json:"path" example:"2023/holiday"`
	DryRun bool   `json:"dry_run" example:"false"`
}
