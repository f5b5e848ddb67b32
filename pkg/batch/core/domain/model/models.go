package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

// JobStatus represents the state of a job or step execution.
type JobStatus string

const (
	BatchStatusStarting       JobStatus = "STARTING"
	BatchStatusStarted        JobStatus = "STARTED"
	BatchStatusStopping       JobStatus = "STOPPING"
	BatchStatusStopped        JobStatus = "STOPPED"
	BatchStatusCompleted      JobStatus = "COMPLETED"
	BatchStatusFailed         JobStatus = "FAILED"
	BatchStatusAbandoned      JobStatus = "ABANDONED"
	BatchStatusStoppingFailed JobStatus = "STOPPING_FAILED"
	BatchStatusUnknown        JobStatus = "UNKNOWN"
)

// String returns the string representation of the JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsFinished checks if the JobStatus represents a finished state.
func (s JobStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned:
		return true
	default:
		return false
	}
}

// ToExitStatus converts the JobStatus to its corresponding ExitStatus.
func (s JobStatus) ToExitStatus() ExitStatus {
	switch s {
	case BatchStatusCompleted:
		return ExitStatusCompleted
	case BatchStatusFailed:
		return ExitStatusFailed
	case BatchStatusStopped:
		return ExitStatusStopped
	case BatchStatusAbandoned:
		return ExitStatusAbandoned
	default:
		return ExitStatusUnknown
	}
}

// ExitStatus represents the detailed status upon job/step completion.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
	ExitStatusAbandoned ExitStatus = "ABANDONED"
	ExitStatusNoOp      ExitStatus = "NO_OP"
)

// String returns the ExitStatus as a string.
func (s ExitStatus) String() string {
	return string(s)
}

// ExecutionContext is a key-value store for sharing state across job and step executions.
type ExecutionContext map[string]interface{}

// NewExecutionContext creates a new empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put sets a value in the ExecutionContext with the specified key and value.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get retrieves the value for the specified key. Returns nil and false if the value does not exist.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	val, ok := ec[key]
	return val, ok
}

// GetString retrieves the value for the specified key as a string.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	val, ok := ec[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetInt retrieves the value for the specified key as an int.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	val, ok := ec[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// GetBool retrieves the value for the specified key as a bool.
func (ec ExecutionContext) GetBool(key string) (bool, bool) {
	val, ok := ec[key]
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// Copy creates a shallow copy of the ExecutionContext.
func (ec ExecutionContext) Copy() ExecutionContext {
	newEC := make(ExecutionContext, len(ec))
	for k, v := range ec {
		newEC[k] = v
	}
	return newEC
}

// Remove removes the specified key from the ExecutionContext.
func (ec ExecutionContext) Remove(key string) {
	delete(ec, key)
}

// JobParameters is a structure holding parameters for job execution.
type JobParameters struct {
	Params map[string]interface{}
}

// NewJobParameters creates a new instance of JobParameters.
func NewJobParameters() JobParameters {
	return JobParameters{
		Params: make(map[string]interface{}),
	}
}

// Put sets a value in JobParameters with the specified key and value.
func (jp JobParameters) Put(key string, value interface{}) {
	jp.Params[key] = value
}

// Get retrieves the value for the specified key. Returns nil if the value does not exist.
func (jp JobParameters) Get(key string) interface{} {
	return jp.Params[key]
}

// GetString retrieves the value for the specified key as a string.
func (jp JobParameters) GetString(key string) (string, bool) {
	val, ok := jp.Params[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetBool retrieves the value for the specified key as a bool.
func (jp JobParameters) GetBool(key string) (bool, bool) {
	val, ok := jp.Params[key]
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// Equal compares if two JobParameters are equal.
func (jp JobParameters) Equal(other JobParameters) bool {
	return reflect.DeepEqual(jp.Params, other.Params)
}

// Contains reports whether jp holds every key and value of partialParams.
func (jp JobParameters) Contains(partialParams JobParameters) bool {
	for key, partialValue := range partialParams.Params {
		actualValue, ok := jp.Params[key]
		if !ok || !reflect.DeepEqual(actualValue, partialValue) {
			return false
		}
	}
	return true
}

// Hash returns a stable SHA-256 of the parameters, independent of key order.
func (jp JobParameters) Hash() (string, error) {
	keys := make([]string, 0, len(jp.Params))
	for k := range jp.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		v, err := json.Marshal(jp.Params[k])
		if err != nil {
			return "", exception.NewBatchError("job_parameters", "failed to marshal JobParameters for hash calculation", err, false, false)
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.Write(v)
		sb.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:]), nil
}

// String returns the parameters as JSON.
func (jp JobParameters) String() string {
	data, err := json.Marshal(jp.Params)
	if err != nil {
		return fmt.Sprintf("{[ERROR: %v]}", err)
	}
	return string(data)
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// FailureList holds a list of error messages.
type FailureList []string

// JobInstance is a structure representing the logical execution unit of a job.
type JobInstance struct {
	ID             string
	JobName        string
	Parameters     JobParameters
	CreateTime     time.Time
	Version        int
	ParametersHash string
}

// NewJobInstance creates a new instance of JobInstance.
func NewJobInstance(jobName string, params JobParameters) *JobInstance {
	hash, err := params.Hash()
	if err != nil {
		logger.Errorf("Failed to calculate JobParameters hash: %v", err)
	}
	return &JobInstance{
		ID:             NewID(),
		JobName:        jobName,
		Parameters:     params,
		CreateTime:     time.Now(),
		ParametersHash: hash,
	}
}

// JobExecution is a structure representing a single execution instance of a job.
// Partitions append step executions and failures concurrently, so those go through methods.
type JobExecution struct {
	ID               string
	JobInstanceID    string
	JobName          string
	Parameters       JobParameters
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	Version          int
	CreateTime       time.Time
	LastUpdated      time.Time
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext
	CurrentStepName  string
	CancelFunc       context.CancelFunc

	mu sync.Mutex
}

// NewJobExecution creates a new instance of JobExecution.
func NewJobExecution(jobInstanceID string, jobName string, params JobParameters) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:               NewID(),
		JobInstanceID:    jobInstanceID,
		JobName:          jobName,
		Parameters:       params,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		CreateTime:       now,
		LastUpdated:      now,
		Failures:         make(FailureList, 0),
		StepExecutions:   make([]*StepExecution, 0),
		ExecutionContext: NewExecutionContext(),
	}
}

func isValidJobTransition(current, next JobStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusStarted:
		return next == BatchStatusStopping || next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusAbandoned
	case BatchStatusStopping:
		return next == BatchStatusStopped || next == BatchStatusStoppingFailed || next == BatchStatusFailed || next == BatchStatusAbandoned
	case BatchStatusStopped, BatchStatusFailed:
		return next == BatchStatusAbandoned
	default:
		return false
	}
}

// TransitionTo safely transitions the state of JobExecution.
func (je *JobExecution) TransitionTo(newStatus JobStatus) error {
	je.mu.Lock()
	defer je.mu.Unlock()
	if !isValidJobTransition(je.Status, newStatus) {
		return fmt.Errorf("JobExecution (ID: %s): invalid state transition: %s -> %s", je.ID, je.Status, newStatus)
	}
	je.Status = newStatus
	je.LastUpdated = time.Now()
	return nil
}

// CurrentStatus returns the status under the execution's lock.
func (je *JobExecution) CurrentStatus() JobStatus {
	je.mu.Lock()
	defer je.mu.Unlock()
	return je.Status
}

func (je *JobExecution) finish(status JobStatus, exit ExitStatus) {
	if err := je.TransitionTo(status); err != nil {
		logger.Warnf("Could not update JobExecution (ID: %s) status to %s: %v", je.ID, status, err)
		je.mu.Lock()
		je.Status = status
		je.mu.Unlock()
	}
	je.mu.Lock()
	defer je.mu.Unlock()
	je.ExitStatus = exit
	if status.IsFinished() {
		now := time.Now()
		je.EndTime = &now
	}
}

// MarkAsStarted updates the JobExecution status to STARTED.
func (je *JobExecution) MarkAsStarted() {
	je.finish(BatchStatusStarted, ExitStatusUnknown)
}

// MarkAsCompleted updates the JobExecution status to COMPLETED.
func (je *JobExecution) MarkAsCompleted() {
	je.finish(BatchStatusCompleted, ExitStatusCompleted)
}

// MarkAsFailed updates the JobExecution status to FAILED and records err.
func (je *JobExecution) MarkAsFailed(err error) {
	je.finish(BatchStatusFailed, ExitStatusFailed)
	je.AddFailureException(err)
}

// MarkAsStopped updates the JobExecution status to STOPPED.
func (je *JobExecution) MarkAsStopped() {
	je.finish(BatchStatusStopped, ExitStatusStopped)
}

// MarkAsAbandoned updates the JobExecution status to ABANDONED.
func (je *JobExecution) MarkAsAbandoned() {
	je.finish(BatchStatusAbandoned, ExitStatusAbandoned)
}

// AddFailureException records err's message once.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	je.mu.Lock()
	defer je.mu.Unlock()
	je.Failures = appendUnique(je.Failures, exception.ExtractErrorMessage(err))
	je.LastUpdated = time.Now()
}

// AddStepExecution adds a StepExecution to JobExecution.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.StepExecutions = append(je.StepExecutions, se)
}

// Steps returns a snapshot of the step executions.
func (je *JobExecution) Steps() []*StepExecution {
	je.mu.Lock()
	defer je.mu.Unlock()
	out := make([]*StepExecution, len(je.StepExecutions))
	copy(out, je.StepExecutions)
	return out
}

// FailureMessages returns a snapshot of the recorded failures.
func (je *JobExecution) FailureMessages() []string {
	je.mu.Lock()
	defer je.mu.Unlock()
	out := make([]string, len(je.Failures))
	copy(out, je.Failures)
	return out
}

// ExecutionState is a point-in-time copy of an execution's status fields.
type ExecutionState struct {
	Status      JobStatus
	ExitStatus  ExitStatus
	EndTime     *time.Time
	LastUpdated time.Time
	Failures    []string
}

// State returns the status fields under the execution's lock.
func (je *JobExecution) State() ExecutionState {
	je.mu.Lock()
	defer je.mu.Unlock()
	return ExecutionState{
		Status:      je.Status,
		ExitStatus:  je.ExitStatus,
		EndTime:     je.EndTime,
		LastUpdated: je.LastUpdated,
		Failures:    append([]string(nil), je.Failures...),
	}
}

func appendUnique(list FailureList, msg string) FailureList {
	for _, existing := range list {
		if existing == msg {
			return list
		}
	}
	return append(list, msg)
}

// StepExecution is a structure representing a single execution instance of a step.
// Counters are updated from several chunk goroutines and must go through the Add methods.
type StepExecution struct {
	ID               string
	StepName         string
	JobExecution     *JobExecution
	JobExecutionID   string
	StartTime        time.Time
	EndTime          *time.Time
	Status           JobStatus
	ExitStatus       ExitStatus
	Failures         FailureList
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	SkipReadCount    int
	SkipProcessCount int
	SkipWriteCount   int
	ExecutionContext ExecutionContext
	LastUpdated      time.Time
	Version          int

	mu sync.Mutex
}

// NewStepExecution creates a new instance of StepExecution.
func NewStepExecution(id string, jobExecution *JobExecution, stepName string) *StepExecution {
	now := time.Now()
	se := &StepExecution{
		ID:               id,
		StepName:         stepName,
		JobExecution:     jobExecution,
		StartTime:        now,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		Failures:         make(FailureList, 0),
		ExecutionContext: NewExecutionContext(),
		LastUpdated:      now,
	}
	if jobExecution != nil {
		se.JobExecutionID = jobExecution.ID
	}
	return se
}

// StepCounts is a point-in-time copy of a step's counters.
type StepCounts struct {
	Read, Write, Commit, Rollback, Filter int
	SkipRead, SkipProcess, SkipWrite     int
}

// Skips returns the total number of skipped items.
func (c StepCounts) Skips() int {
	return c.SkipRead + c.SkipProcess + c.SkipWrite
}

// AddCounts adds delta to the step's counters.
func (se *StepExecution) AddCounts(delta StepCounts) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.ReadCount += delta.Read
	se.WriteCount += delta.Write
	se.CommitCount += delta.Commit
	se.RollbackCount += delta.Rollback
	se.FilterCount += delta.Filter
	se.SkipReadCount += delta.SkipRead
	se.SkipProcessCount += delta.SkipProcess
	se.SkipWriteCount += delta.SkipWrite
	se.LastUpdated = time.Now()
}

// Counts returns a snapshot of the step's counters.
func (se *StepExecution) Counts() StepCounts {
	se.mu.Lock()
	defer se.mu.Unlock()
	return StepCounts{
		Read: se.ReadCount, Write: se.WriteCount, Commit: se.CommitCount, Rollback: se.RollbackCount,
		Filter: se.FilterCount, SkipRead: se.SkipReadCount, SkipProcess: se.SkipProcessCount, SkipWrite: se.SkipWriteCount,
	}
}

// State returns the status fields under the step's lock.
func (se *StepExecution) State() ExecutionState {
	se.mu.Lock()
	defer se.mu.Unlock()
	return ExecutionState{
		Status:      se.Status,
		ExitStatus:  se.ExitStatus,
		EndTime:     se.EndTime,
		LastUpdated: se.LastUpdated,
		Failures:    append([]string(nil), se.Failures...),
	}
}

func isValidStepTransition(current, next JobStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	case BatchStatusStarted:
		return next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusStopped || next == BatchStatusAbandoned
	default:
		return false
	}
}

// TransitionTo safely transitions the state of StepExecution.
func (se *StepExecution) TransitionTo(newStatus JobStatus) error {
	se.mu.Lock()
	defer se.mu.Unlock()
	if !isValidStepTransition(se.Status, newStatus) {
		return fmt.Errorf("StepExecution (ID: %s): invalid state transition: %s -> %s", se.ID, se.Status, newStatus)
	}
	se.Status = newStatus
	se.LastUpdated = time.Now()
	return nil
}

func (se *StepExecution) finish(status JobStatus, exit ExitStatus) {
	if err := se.TransitionTo(status); err != nil {
		logger.Warnf("Could not update StepExecution (ID: %s) status to %s: %v", se.ID, status, err)
		se.mu.Lock()
		se.Status = status
		se.mu.Unlock()
	}
	se.mu.Lock()
	defer se.mu.Unlock()
	se.ExitStatus = exit
	if status.IsFinished() {
		now := time.Now()
		se.EndTime = &now
	}
}

// MarkAsStarted updates the StepExecution status to STARTED.
func (se *StepExecution) MarkAsStarted() {
	se.finish(BatchStatusStarted, ExitStatusUnknown)
}

// MarkAsCompleted updates the StepExecution status to COMPLETED.
func (se *StepExecution) MarkAsCompleted() {
	se.finish(BatchStatusCompleted, ExitStatusCompleted)
}

// MarkAsNoOp completes the step with a NO_OP exit status.
func (se *StepExecution) MarkAsNoOp() {
	se.finish(BatchStatusCompleted, ExitStatusNoOp)
}

// MarkAsFailed updates the StepExecution status to FAILED and records err.
func (se *StepExecution) MarkAsFailed(err error) {
	se.finish(BatchStatusFailed, ExitStatusFailed)
	se.AddFailureException(err)
}

// MarkAsStopped updates the StepExecution status to STOPPED.
func (se *StepExecution) MarkAsStopped() {
	se.finish(BatchStatusStopped, ExitStatusStopped)
}

// AddFailureException records err's message once.
func (se *StepExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	se.mu.Lock()
	defer se.mu.Unlock()
	se.Failures = appendUnique(se.Failures, exception.ExtractErrorMessage(err))
	se.LastUpdated = time.Now()
}

// PartitionName generates a standard partition step name.
func PartitionName(stepName, key string) string {
	return fmt.Sprintf("%s:partition%s", stepName, key)
}
