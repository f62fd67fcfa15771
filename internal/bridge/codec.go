package bridge

import (
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/delegate/internal/agent"
)

// Operations accepted on the request stream.
const (
	OpSpawn         = "spawn"
	OpCancel        = "cancel"
	OpCancelAll     = "cancelAll"
	OpGet           = "get"
	OpList          = "list"
	OpSummary       = "summary"
	OpClearFinished = "clearFinished"
	OpClearAll      = "clearAll"
)

// Message types on the output stream.
const (
	TypeResponse = "response"
	TypeTask     = "task"
)

// request is a decoded request line.
type request struct {
	ID           string
	Op           string
	Instructions string
	Input        string
	Timeout      time.Duration
	TaskID       string
	Status       string
}

// decodeRequest parses one request line.
func decodeRequest(line []byte) (request, error) {
	if !gjson.ValidBytes(line) {
		return request{}, ErrMalformedRequest
	}
	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		return request{}, ErrMalformedRequest
	}

	req := request{
		ID:           root.Get("id").String(),
		Op:           root.Get("op").String(),
		Instructions: root.Get("instructions").String(),
		Input:        root.Get("input").String(),
		TaskID:       root.Get("taskId").String(),
		Status:       root.Get("status").String(),
	}
	if ms := root.Get("timeoutMs"); ms.Exists() {
		req.Timeout = time.Duration(ms.Int()) * time.Millisecond
	}
	if req.Op == "" {
		return req, ErrMissingOp
	}
	return req, nil
}

// encodeTask renders a task snapshot. Unset optional fields are omitted.
func encodeTask(task agent.Task) []byte {
	buf := []byte(`{}`)
	buf, _ = sjson.SetBytes(buf, "id", task.ID)
	buf, _ = sjson.SetBytes(buf, "instructions", task.Instructions)
	if task.Input != "" {
		buf, _ = sjson.SetBytes(buf, "input", task.Input)
	}
	buf, _ = sjson.SetBytes(buf, "status", string(task.Status))
	buf, _ = sjson.SetBytes(buf, "timeoutMs", task.Timeout.Milliseconds())
	buf, _ = sjson.SetBytes(buf, "createdAt", formatTime(task.CreatedAt))
	if !task.StartedAt.IsZero() {
		buf, _ = sjson.SetBytes(buf, "startedAt", formatTime(task.StartedAt))
	}
	if !task.CompletedAt.IsZero() {
		buf, _ = sjson.SetBytes(buf, "completedAt", formatTime(task.CompletedAt))
	}
	if task.Result != "" {
		buf, _ = sjson.SetBytes(buf, "result", task.Result)
	}
	if task.Error != "" {
		buf, _ = sjson.SetBytes(buf, "error", task.Error)
	}
	return buf
}

// encodeResult renders a spawn result.
func encodeResult(res agent.Result) []byte {
	buf := []byte(`{}`)
	buf, _ = sjson.SetBytes(buf, "success", res.Success)
	if res.TaskID != "" {
		buf, _ = sjson.SetBytes(buf, "taskId", res.TaskID)
	}
	if res.Status != "" {
		buf, _ = sjson.SetBytes(buf, "status", string(res.Status))
	}
	if res.Result != "" {
		buf, _ = sjson.SetBytes(buf, "result", res.Result)
	}
	if res.Error != "" {
		buf, _ = sjson.SetBytes(buf, "error", res.Error)
	}
	if res.TimedOut {
		buf, _ = sjson.SetBytes(buf, "timedOut", true)
	}
	if res.Code != "" {
		buf, _ = sjson.SetBytes(buf, "code", string(res.Code))
	}
	return buf
}

// encodeSummary renders per-status counts.
func encodeSummary(s agent.Summary) []byte {
	buf := []byte(`{}`)
	for _, status := range agent.AllStatuses {
		buf, _ = sjson.SetBytes(buf, string(status), s.Count(status))
	}
	buf, _ = sjson.SetBytes(buf, "total", s.Total)
	return buf
}

// encodeTasks renders a task list as a JSON array.
func encodeTasks(tasks []agent.Task) []byte {
	buf := []byte(`[]`)
	for _, task := range tasks {
		buf, _ = sjson.SetRawBytes(buf, "-1", encodeTask(task))
	}
	return buf
}

// response starts a response envelope for request id.
func response(id string, ok bool) []byte {
	buf := []byte(`{}`)
	buf, _ = sjson.SetBytes(buf, "type", TypeResponse)
	if id != "" {
		buf, _ = sjson.SetBytes(buf, "id", id)
	}
	buf, _ = sjson.SetBytes(buf, "ok", ok)
	return buf
}

// errorResponse renders a failed request.
func errorResponse(id string, code agent.ErrorCode, err error) []byte {
	buf := response(id, false)
	buf, _ = sjson.SetBytes(buf, "error", err.Error())
	if code != "" {
		buf, _ = sjson.SetBytes(buf, "code", string(code))
	}
	return buf
}

// taskMessage renders a broadcast line.
func taskMessage(task agent.Task) []byte {
	buf := []byte(`{}`)
	buf, _ = sjson.SetBytes(buf, "type", TypeTask)
	buf, _ = sjson.SetRawBytes(buf, "task", encodeTask(task))
	return buf
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
