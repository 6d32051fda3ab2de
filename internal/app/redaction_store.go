package app

import (
	"encoding/json"
	"os"

	"logvault/pkg/types"

	apperrors "logvault/pkg/errors"
)

// loadRedactionConfig reads the redaction configuration file, returning
// an empty configuration (no groups defined) if it does not yet exist.
func loadRedactionConfig(path string) (types.RedactionConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return types.RedactionConfig{}, nil
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeFileIO, "app", "loadRedactionConfig", "failed to read redaction config")
	}

	var cfg types.RedactionConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "app", "loadRedactionConfig", "failed to parse redaction config")
	}
	return cfg, nil
}

// saveRedactionConfig persists cfg to path, overwriting any prior
// content atomically via a temp-file rename.
func saveRedactionConfig(path string, cfg types.RedactionConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "app", "saveRedactionConfig", "failed to encode redaction config")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeFileIO, "app", "saveRedactionConfig", "failed to write redaction config")
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeFileIO, "app", "saveRedactionConfig", "failed to rename redaction config")
	}
	return nil
}
