package records

import (
	"encoding/json"

	"supabasemcp/storage"
)

// Envelope is the uniform result of every tool call. A successful envelope
// carries Data and Count == len(Data); a failed one carries only Error.
type Envelope struct {
	Success bool
	Table   string
	Data    []storage.Row
	Count   int
	Error   string
	Warning string // capped resolution notice on a successful mutation
}

// Succeed wraps rows into a successful envelope.
func Succeed(table string, rows []storage.Row) Envelope {
	if rows == nil {
		rows = []storage.Row{}
	}
	return Envelope{
		Success: true,
		Table:   table,
		Data:    rows,
		Count:   len(rows),
	}
}

// Fail wraps err into a failed envelope.
func Fail(table string, err error) Envelope {
	return Envelope{
		Success: false,
		Table:   table,
		Error:   err.Error(),
	}
}

type successJSON struct {
	Success bool          `json:"success"`
	Data    []storage.Row `json:"data"`
	Count   int           `json:"count"`
	Table   string        `json:"table"`
	Warning string        `json:"warning,omitempty"`
}

type failureJSON struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Table   string `json:"table"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Success {
		data := e.Data
		if data == nil {
			data = []storage.Row{}
		}
		return json.Marshal(successJSON{
			Success: true,
			Data:    data,
			Count:   len(data),
			Table:   e.Table,
			Warning: e.Warning,
		})
	}
	return json.Marshal(failureJSON{
		Success: false,
		Error:   e.Error,
		Table:   e.Table,
	})
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var raw struct {
		Success bool          `json:"success"`
		Table   string        `json:"table"`
		Data    []storage.Row `json:"data"`
		Count   int           `json:"count"`
		Error   string        `json:"error"`
		Warning string        `json:"warning"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = Envelope(raw)
	return nil
}
