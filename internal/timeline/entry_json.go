package timeline

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON flattens Entry to whichever variant is set, so the
// on-disk shape matches the sum type described for "entry": either a
// TimelineItem object or a commit_group object, distinguished by
// "type".
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.CommitGroup != nil {
		return json.Marshal(e.CommitGroup)
	}
	if e.Item != nil {
		return json.Marshal(e.Item)
	}
	return nil, fmt.Errorf("timeline: empty entry has neither item nor commit group")
}

// UnmarshalJSON dispatches on "type" to decide which variant to
// populate.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Type == "commit_group" {
		var g CommitGroup
		if err := json.Unmarshal(data, &g); err != nil {
			return err
		}
		e.CommitGroup = &g
		e.Item = nil
		return nil
	}
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return err
	}
	e.Item = &it
	e.CommitGroup = nil
	return nil
}
