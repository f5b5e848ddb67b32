// Package serialization converts job parameters, execution contexts and failure lists to and from JSON
// for the persistent job repository.
package serialization

import (
	"encoding/json"

	"github.com/tigerroll/loancob/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/loancob/pkg/batch/support/util/logger"
)

const module = "serialization"

// MarshalExecutionContext serializes an ExecutionContext map. A nil map becomes an empty object.
// Values without exported fields, such as the excluded-id set, serialize as {}.
func MarshalExecutionContext(ctx map[string]interface{}) ([]byte, error) {
	if ctx == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		logger.Errorf("Failed to serialize ExecutionContext: %v", err)
		return nil, exception.NewBatchError(module, "Failed to serialize ExecutionContext", err, false, false)
	}
	return data, nil
}

// UnmarshalExecutionContext deserializes data into a new map. Structured values come back as
// nested maps.
func UnmarshalExecutionContext(data []byte) (map[string]interface{}, error) {
	ctx := make(map[string]interface{})
	if isEmpty(data) {
		return ctx, nil
	}
	if err := json.Unmarshal(data, &ctx); err != nil {
		logger.Errorf("Failed to deserialize ExecutionContext: %v", err)
		return nil, exception.NewBatchError(module, "Failed to deserialize ExecutionContext", err, false, false)
	}
	return ctx, nil
}

// MarshalJobParameters serializes a JobParameters map.
func MarshalJobParameters(params map[string]interface{}) ([]byte, error) {
	if len(params) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		logger.Errorf("Failed to serialize JobParameters: %v", err)
		return nil, exception.NewBatchError(module, "Failed to serialize JobParameters", err, false, false)
	}
	return data, nil
}

// UnmarshalJobParameters deserializes data into a new parameter map.
func UnmarshalJobParameters(data []byte) (map[string]interface{}, error) {
	params := make(map[string]interface{})
	if isEmpty(data) {
		return params, nil
	}
	if err := json.Unmarshal(data, &params); err != nil {
		logger.Errorf("Failed to deserialize JobParameters: %v", err)
		return nil, exception.NewBatchError(module, "Failed to deserialize JobParameters", err, false, false)
	}
	return params, nil
}

// NormalizeJobParameters returns params as they read back after a JSON round trip, so that
// numbers compare as float64 against stored parameters.
func NormalizeJobParameters(params map[string]interface{}) (map[string]interface{}, error) {
	data, err := MarshalJobParameters(params)
	if err != nil {
		return nil, err
	}
	return UnmarshalJobParameters(data)
}

// MarshalFailures serializes failure messages. A nil slice becomes an empty array.
func MarshalFailures(failures []string) ([]byte, error) {
	if failures == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		logger.Errorf("Failed to serialize Failures: %v", err)
		return nil, exception.NewBatchError(module, "Failed to serialize Failures", err, false, false)
	}
	return data, nil
}

// UnmarshalFailures deserializes failure messages.
func UnmarshalFailures(data []byte) ([]string, error) {
	msgs := []string{}
	if isEmpty(data) {
		return msgs, nil
	}
	if err := json.Unmarshal(data, &msgs); err != nil {
		logger.Errorf("Failed to deserialize Failures: %v", err)
		return nil, exception.NewBatchError(module, "Failed to deserialize Failures", err, false, false)
	}
	return msgs, nil
}

func isEmpty(data []byte) bool {
	return len(data) == 0 || string(data) == "null"
}
