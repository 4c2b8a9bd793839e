package redash

import (
	"encoding/json"
	"strconv"
)

// JobStatus is the Redash job state code.
type JobStatus int

const (
	JobPending   JobStatus = 1
	JobStarted   JobStatus = 2
	JobSuccess   JobStatus = 3
	JobFailure   JobStatus = 4
	JobCancelled JobStatus = 5
)

// String implements fmt.Stringer.
func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobStarted:
		return "started"
	case JobSuccess:
		return "success"
	case JobFailure:
		return "failure"
	case JobCancelled:
		return "cancelled"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Job is a queued query execution.
type Job struct {
	ID            string    `json:"id"`
	Status        JobStatus `json:"status"`
	Error         string    `json:"error"`
	QueryResultID int       `json:"query_result_id"`
}

// Column describes one result column.
type Column struct {
	Name         string `json:"name"`
	FriendlyName string `json:"friendly_name"`
	Type         string `json:"type"`
}

// QueryResult is a stored query execution result.
type QueryResult struct {
	ID          int     `json:"id"`
	QueryHash   string  `json:"query_hash"`
	RetrievedAt string  `json:"retrieved_at"`
	Runtime     float64 `json:"runtime"`
	Data        struct {
		Columns []Column         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	} `json:"data"`
}

type resultsRequest struct {
	Parameters map[string]string `json:"parameters"`
	MaxAge     int               `json:"max_age"`
}

// resultsResponse is returned by POST /api/queries/{id}/results.
// Exactly one of Job and QueryResult is set by a well-behaved server.
type resultsResponse struct {
	Job         *Job         `json:"job"`
	QueryResult *QueryResult `json:"query_result"`
}

type jobResponse struct {
	Job Job `json:"job"`
}

type queryResultResponse struct {
	QueryResult *QueryResult `json:"query_result"`
}

// UnmarshalJSON accepts numeric and string job IDs.
func (j *Job) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID            json.RawMessage `json:"id"`
		Status        JobStatus       `json:"status"`
		Error         string          `json:"error"`
		QueryResultID *int            `json:"query_result_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	j.Status = raw.Status
	j.Error = raw.Error
	j.QueryResultID = 0
	if raw.QueryResultID != nil {
		j.QueryResultID = *raw.QueryResultID
	}
	j.ID = ""
	if len(raw.ID) > 0 && string(raw.ID) != "null" {
		var s string
		if err := json.Unmarshal(raw.ID, &s); err == nil {
			j.ID = s
		} else {
			j.ID = string(raw.ID)
		}
	}
	return nil
}
