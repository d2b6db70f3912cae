package depmodel

import (
	"encoding/json"
	"fmt"
	"os"
)

// SaveModel serializes the model to JSON.
func SaveModel(model *Model, path string) error {
	data, err := MarshalModel(model)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadModel deserializes a model from JSON.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	model, err := UnmarshalModel(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}

// MarshalModel serializes the model to indented JSON bytes.
func MarshalModel(model *Model) ([]byte, error) {
	return json.MarshalIndent(model, "", "  ")
}

// UnmarshalModel deserializes and validates a model from JSON bytes.
func UnmarshalModel(data []byte) (*Model, error) {
	var model Model
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	return &model, nil
}
