package spec

import "encoding/json"

// Marshal serializes a ServiceSpec for storage in the ConfigStore.
func Marshal(s ServiceSpec) ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal deserializes a ServiceSpec previously written by Marshal.
func Unmarshal(b []byte) (ServiceSpec, error) {
	var s ServiceSpec
	if err := json.Unmarshal(b, &s); err != nil {
		return ServiceSpec{}, err
	}
	return s, nil
}
