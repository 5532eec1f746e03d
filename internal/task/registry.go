package task

import (
	"encoding/json"
	"fmt"
)

// constructor builds a Task from one verb's raw data map.
type constructor func(data map[string]any) (Task, error)

var registry = map[Name]constructor{
	NameSay:        newSay,
	NamePlay:       newPlay,
	NameGather:     newGather,
	NameDial:       newDial,
	NameRecord:     newRecord,
	NameTranscribe: newTranscribe,
	NameHangup:     newHangup,
	NameRedirect:   newRedirect,
	NamePause:      newPause,
	NameConfig:     newConfig,
}

// ParseTasks decodes a JSON array of verb nodes — each `{"<verb>": {...}}`
// — into a task list, in order, using the registry to construct each one.
func ParseTasks(nodes []any) ([]Task, error) {
	tasks := make([]Task, 0, len(nodes))
	for i, n := range nodes {
		raw, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("task[%d]: %w", i, err)
		}
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, fmt.Errorf("task[%d]: not an object: %w", i, err)
		}
		if len(wrapper) != 1 {
			return nil, fmt.Errorf("task[%d]: expected exactly one verb key, got %d", i, len(wrapper))
		}
		for verb, dataRaw := range wrapper {
			ctor, ok := registry[Name(verb)]
			if !ok {
				return nil, fmt.Errorf("task[%d]: unknown verb %q", i, verb)
			}
			var data map[string]any
			if len(dataRaw) > 0 {
				if err := json.Unmarshal(dataRaw, &data); err != nil {
					return nil, fmt.Errorf("task[%d] (%s): %w", i, verb, err)
				}
			}
			if data == nil {
				data = map[string]any{}
			}
			t, err := ctor(data)
			if err != nil {
				return nil, fmt.Errorf("task[%d] (%s): %w", i, verb, err)
			}
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}
