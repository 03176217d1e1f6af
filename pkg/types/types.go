package types

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a schedule block.
// Blocks are created externally with StatusPending and advanced by the
// pipeline stages as they complete or fail.
type Status int

const (
	// StatusTimeout is a synthetic code for provider requests that never
	// returned an HTTP status.
	StatusTimeout Status = -1

	// StatusPending marks a block that has not been extracted yet.
	StatusPending Status = 0

	// StatusExtracted marks a block whose raw payload is in the object store.
	StatusExtracted Status = 2

	// StatusSynced marks a block whose trips all reached the warehouse.
	StatusSynced Status = 5

	// StatusSyncedPartial marks a block where some trips failed validation
	// or insertion.
	StatusSyncedPartial Status = 6

	// StatusSyncAllFailed is reserved and currently never set.
	StatusSyncAllFailed Status = -5

	// StatusSyncFailed marks a block where every trip insert failed.
	StatusSyncFailed Status = -6

	// StatusEmpty marks a block whose payload contained no trips.
	StatusEmpty Status = 7

	// StatusPublished marks a block whose trips were upserted to the
	// open-data platform without errors.
	StatusPublished Status = 8

	// StatusPublishFailed marks a block whose open-data upsert reported
	// errors.
	StatusPublishFailed Status = -8
)

// String returns a human-readable name for the status code.
func (s Status) String() string {
	switch s {
	case StatusTimeout:
		return "timeout"
	case StatusPending:
		return "pending"
	case StatusExtracted:
		return "extracted"
	case StatusSynced:
		return "synced"
	case StatusSyncedPartial:
		return "synced-partial"
	case StatusSyncAllFailed:
		return "sync-all-failed"
	case StatusSyncFailed:
		return "sync-failed"
	case StatusEmpty:
		return "empty"
	case StatusPublished:
		return "published"
	case StatusPublishFailed:
		return "publish-failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the status ends a block's lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusSynced, StatusSyncedPartial, StatusSyncAllFailed, StatusSyncFailed,
		StatusEmpty, StatusPublished, StatusPublishFailed:
		return true
	}
	return false
}

// StatusOp selects the comparison operator for schedule status predicates.
type StatusOp string

const (
	StatusOpEq  StatusOp = "_eq"
	StatusOpLt  StatusOp = "_lt"
	StatusOpLte StatusOp = "_lte"
)

// Stage identifies one of the three pipeline stages for a block.
type Stage string

const (
	StageExtract     Stage = "extract"
	StageSyncDB      Stage = "sync_db"
	StageSyncSocrata Stage = "sync_socrata"
)

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StageExtract, StageSyncDB, StageSyncSocrata}
}

// RunMode selects which deployment's configuration and key space to use.
type RunMode string

const (
	RunModeStaging    RunMode = "STAGING"
	RunModeProduction RunMode = "PRODUCTION"
)

// ScheduleBlock is one (provider, hour) unit of work. Blocks are created
// by an external scheduler; the pipeline only reads and updates them.
type ScheduleBlock struct {
	ScheduleID        int    `json:"schedule_id"`
	ProviderID        int    `json:"provider_id"`
	ProviderName      string `json:"provider_name,omitempty"`
	Year              int    `json:"year"`
	Month             int    `json:"month"`
	Day               int    `json:"day"`
	Hour              int    `json:"hour"`
	StatusID          Status `json:"status_id"`
	Payload           string `json:"payload,omitempty"`
	Message           string `json:"message,omitempty"`
	RecordsProcessed  int    `json:"records_processed,omitempty"`
	RecordsTotal      int    `json:"records_total,omitempty"`
	RecordsErrorCount int    `json:"records_error_count,omitempty"`
	RerunFlag         bool   `json:"rerun_flag,omitempty"`
	ErrorPayload      string `json:"error_payload,omitempty"`
}

// Tag returns the block's hour in "yyyy-m-d-h" form without zero padding.
func (b ScheduleBlock) Tag() string {
	return fmt.Sprintf("%d-%d-%d-%d", b.Year, b.Month, b.Day, b.Hour)
}

// Civil returns the block's wall-clock hour in the given location.
func (b ScheduleBlock) Civil(loc *time.Location) time.Time {
	return time.Date(b.Year, time.Month(b.Month), b.Day, b.Hour, 0, 0, 0, loc)
}

// MDSVersion selects the provider API dialect.
type MDSVersion string

const (
	V020 MDSVersion = "0.2.0"
	V030 MDSVersion = "0.3.0"
	V040 MDSVersion = "0.4.0"
)

// Short returns the two-component version used in the Accept header.
func (v MDSVersion) Short() string {
	if len(v) < 3 {
		return string(v)
	}
	return string(v)[:3]
}

// AuthType selects how the provider client authenticates.
type AuthType string

const (
	AuthOAuth  AuthType = "oauth"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthCustom AuthType = "custom"
)

// ProviderProfile holds the per-provider connection settings loaded from
// the providers document. Profiles are immutable for the length of a run.
type ProviderProfile struct {
	Name          string            `json:"provider_name" validate:"required"`
	ProviderID    int               `json:"provider_id" validate:"required,gt=0"`
	Version       MDSVersion        `json:"mds_version" validate:"required,oneof=0.2.0 0.3.0 0.4.0"`
	APIBaseURL    string            `json:"mds_api_url" validate:"required,url"`
	AuthType      AuthType          `json:"auth_type" validate:"required,oneof=oauth bearer basic custom"`
	Token         string            `json:"token,omitempty"`
	Username      string            `json:"username,omitempty"`
	Password      string            `json:"password,omitempty"`
	TokenURL      string            `json:"token_url,omitempty"`
	ClientID      string            `json:"client_id,omitempty"`
	ClientSecret  string            `json:"client_secret,omitempty"`
	Audience      string            `json:"audience,omitempty"`
	Scope         string            `json:"scope,omitempty"`
	ParamOverride map[string]string `json:"mds_param_override,omitempty"`
	Paging        bool              `json:"paging"`
	DelaySeconds  int               `json:"delay" validate:"gte=0"`
	Timeout       int               `json:"timeout" validate:"gte=0"`
	MaxAttempts   int               `json:"max_attempts" validate:"gte=0"`
	MaxPages      int               `json:"max_pages,omitempty" validate:"gte=0"`
}

// StageResult describes the outcome of one stage run against one block.
type StageResult struct {
	Stage      Stage
	ScheduleID int
	Status     Status
	Message    string
	Total      int
	Success    int
	Errors     int
	Duration   time.Duration
	Err        error
}

// Failed reports whether the stage failed outright (as opposed to
// finishing with per-trip errors).
func (r StageResult) Failed() bool {
	return r.Err != nil
}

// RunReport aggregates outcomes across every block of an orchestrator run.
type RunReport struct {
	Provider    string
	Blocks      int
	Succeeded   int
	Failed      int
	Skipped     int
	TripsTotal  int
	TripsSynced int
	TripsFailed int
	StartedAt   time.Time
	FinishedAt  time.Time
	Results     []StageResult
}

// Elapsed returns the wall-clock duration of the run.
func (r RunReport) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
