package audit

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"
)

// WriteCSV writes rows with the meta object serialised as JSON.
func WriteCSV(w io.Writer, rows []TimelineRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"at", "actor_id", "action", "entity", "entity_id", "meta"}); err != nil {
		return err
	}
	for _, row := range rows {
		meta := ""
		if len(row.Meta) > 0 {
			raw, err := json.Marshal(row.Meta)
			if err != nil {
				return err
			}
			meta = string(raw)
		}
		if err := cw.Write([]string{
			row.At.UTC().Format(time.RFC3339),
			strconv.FormatInt(row.ActorID, 10),
			row.Action,
			row.Entity,
			row.EntityID,
			meta,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
