package snapconfig

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/devrig/snapkeep/policy"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and the rules tags can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	if len(cfg.Subvolumes) == 0 {
		return fmt.Errorf("subvolumes: at least one subvolume must be configured")
	}
	if cfg.Store.Type == "btrfs" && cfg.Store.SnapshotRoot == "" {
		return fmt.Errorf("store.snapshot_root: required for the btrfs store")
	}
	for _, name := range cfg.SubvolumeNames() {
		if _, err := policy.Decode(name, cfg.Subvolumes[name].Policy); err != nil {
			return fmt.Errorf("subvolumes[%s].policy: %w", name, err)
		}
	}
	for i, e := range cfg.Schedule {
		if _, ok := cfg.Subvolumes[e.Subvolume]; !ok {
			return fmt.Errorf("schedule[%d]: unknown subvolume %q", i, e.Subvolume)
		}
		if e.Cron == "" {
			continue
		}
		if _, err := cron.ParseStandard(e.Cron); err != nil {
			return fmt.Errorf("schedule[%d]: invalid cron %q: %v", i, e.Cron, err)
		}
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
