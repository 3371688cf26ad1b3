package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalDeviceState serializes DeviceState to JSON bytes.
func MarshalDeviceState(ds *DeviceState) ([]byte, error) {
	if ds == nil {
		return nil, fmt.Errorf("cannot marshal nil DeviceState")
	}

	return json.Marshal(ds)
}

// UnmarshalDeviceState deserializes DeviceState from JSON bytes.
func UnmarshalDeviceState(data []byte) (*DeviceState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var ds DeviceState
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to DeviceState: %w", err)
	}

	return &ds, nil
}

// MarshalPairedSignerRecord serializes a PairedSignerRecord to JSON bytes.
func MarshalPairedSignerRecord(r *PairedSignerRecord) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("cannot marshal nil PairedSignerRecord")
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal PairedSignerRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalPairedSignerRecord deserializes a PairedSignerRecord from JSON bytes.
func UnmarshalPairedSignerRecord(data []byte) (*PairedSignerRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var r PairedSignerRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to PairedSignerRecord: %w", err)
	}

	return &r, nil
}

// MarshalProcessedRequest serializes a ProcessedRequest to JSON bytes.
func MarshalProcessedRequest(pr *ProcessedRequest) ([]byte, error) {
	if pr == nil {
		return nil, fmt.Errorf("cannot marshal nil ProcessedRequest")
	}

	return json.Marshal(pr)
}

// UnmarshalProcessedRequest deserializes a ProcessedRequest from JSON bytes.
func UnmarshalProcessedRequest(data []byte) (*ProcessedRequest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var pr ProcessedRequest
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to ProcessedRequest: %w", err)
	}

	return &pr, nil
}
