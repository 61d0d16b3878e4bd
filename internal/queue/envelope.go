package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const envelopeVersion = 1

var errUnknownVersion = errors.New("unknown envelope version")

type entriesEnvelope struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

type idsEnvelope struct {
	Version int      `json:"version"`
	IDs     []string `json:"ids"`
}

type timeEnvelope struct {
	Version int       `json:"version"`
	At      time.Time `json:"at"`
}

func encodeEntries(entries []Entry) (string, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entriesEnvelope{Version: envelopeVersion, Entries: entries})
	return string(data), err
}

func encodeIDs(set IDSet) (string, error) {
	data, err := json.Marshal(idsEnvelope{Version: envelopeVersion, IDs: set.Sorted()})
	return string(data), err
}

func encodeTime(at time.Time) (string, error) {
	data, err := json.Marshal(timeEnvelope{Version: envelopeVersion, At: at.UTC()})
	return string(data), err
}

// decodeEntries parses a stored entry list. legacy is true when the raw value
// predates the envelope and should be rewritten.
func decodeEntries(raw string) (entries []Entry, legacy bool, err error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return nil, false, nil
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, false, fmt.Errorf("decode legacy entries: %w", err)
		}
		return entries, true, nil
	}
	var env entriesEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, false, fmt.Errorf("decode entries: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, false, fmt.Errorf("%w: %d", errUnknownVersion, env.Version)
	}
	return env.Entries, false, nil
}

// decodeIDs accepts the envelope or a legacy bare array of strings or numbers.
func decodeIDs(raw string) (ids []string, legacy bool, err error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return nil, false, nil
	}
	if trimmed[0] == '[' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var generic []any
		if err := dec.Decode(&generic); err != nil {
			return nil, false, fmt.Errorf("decode legacy ids: %w", err)
		}
		for _, value := range generic {
			switch v := value.(type) {
			case string:
				ids = append(ids, v)
			case json.Number:
				ids = append(ids, v.String())
			}
		}
		return ids, true, nil
	}
	var env idsEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, false, fmt.Errorf("decode ids: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, false, fmt.Errorf("%w: %d", errUnknownVersion, env.Version)
	}
	return env.IDs, false, nil
}

// decodeTime accepts the envelope or a legacy millisecond epoch number.
func decodeTime(raw string) (at time.Time, legacy bool, err error) {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return time.Time{}, false, nil
	}
	if trimmed[0] != '{' {
		ms, err := strconv.ParseInt(string(bytes.Trim(trimmed, `"`)), 10, 64)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("decode legacy timestamp: %w", err)
		}
		return time.UnixMilli(ms).UTC(), true, nil
	}
	var env timeEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return time.Time{}, false, fmt.Errorf("decode timestamp: %w", err)
	}
	if env.Version != envelopeVersion {
		return time.Time{}, false, fmt.Errorf("%w: %d", errUnknownVersion, env.Version)
	}
	return env.At, false, nil
}
