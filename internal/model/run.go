package model

import "time"

// RunStatus tracks the lifecycle of a model fit run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one persisted model fit.
type Run struct {
	ID        string      `json:"id"`
	Dataset   string      `json:"dataset"`
	Model     string      `json:"model"` // unconstrained | production | attraction | doubly
	Status    RunStatus   `json:"status"`
	Summary   *FitSummary `json:"summary,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// FitSummary captures everything reported about a fitted model.
type FitSummary struct {
	Model        string             `json:"model"`
	Deterrence   string             `json:"deterrence"`
	Coefficients map[string]float64 `json:"coefficients"`
	StdErrors    map[string]float64 `json:"std_errors,omitempty"`
	Deviance     float64            `json:"deviance"`
	NullDeviance float64            `json:"null_deviance"`
	AIC          float64            `json:"aic"`
	R2           float64            `json:"r2"`
	RMSE         float64            `json:"rmse"`
	NObs         int                `json:"n_obs"`
	Iterations   int                `json:"iterations"`
	Converged    bool               `json:"converged"`
}
