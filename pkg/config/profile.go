package config

import (
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/hmaster20/winsync/pkg/errors"
	"github.com/hmaster20/winsync/pkg/plan"
	"github.com/hmaster20/winsync/pkg/retry"
)

const (
	// DefaultConfigPath is the default path to the winsync config.
	DefaultConfigPath = "~/.winsync.yaml"

	// InitialConfigVersion is the first version of the winsync config.
	// Config files that do not specify a version will default to this
	// version.
	InitialConfigVersion = "v1alpha1"

	// SupportedConfigVersion is the supported version of the winsync
	// config of the current winsync binary.
	SupportedConfigVersion = "v1alpha1"
)

// Config is the winsync configuration file. It holds named sync profiles so
// that recurring jobs don't have to repeat their flags on every invocation.
type Config struct {
	Version  string    `json:"version,omitempty"`
	Profiles []Profile `json:"profiles,omitempty"`
}

func (c Config) getVersion() string {
	return c.Version
}

// Profile is a named, reusable set of sync options.
type Profile struct {
	Name          string   `json:"name"` // Required.
	Source        string   `json:"source"`
	Dest          string   `json:"dest"`
	Mode          string   `json:"mode,omitempty"`
	Exclude       []string `json:"exclude,omitempty"`
	Threads       int      `json:"threads,omitempty"`
	Verify        bool     `json:"verify,omitempty"`
	Retries       uint     `json:"retries,omitempty"`
	RetryDelay    string   `json:"retryDelay,omitempty"`
	BackoffFactor float64  `json:"backoffFactor,omitempty"`
	Tolerance     string   `json:"tolerance,omitempty"`
	TrashDir      string   `json:"trashDir,omitempty"`

	// Only populated and consumed by winsync. Never set by the user.
	retryDelay time.Duration
	tolerance  time.Duration
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// GetConfigPath returns the path to the user's winsync configuration. The
// path is expanded, so it can be directly passed to file operations.
func GetConfigPath() (string, error) {
	return homedirExpand(DefaultConfigPath)
}

// Parse reads and validates the config file at `path`. An empty path means
// the default location.
func Parse(path string) (Config, error) {
	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return Config{}, errors.WithContext(err, "expand config path")
		}
	}

	config := Config{Version: InitialConfigVersion}
	if err := parseConfig(path, &config, SupportedConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Config{}, errors.NewFriendlyError("The winsync config "+
				"file doesn't exist at %q. Create it, or pass the sync "+
				"options as flags instead of using --profile.", path)
		}
		return Config{}, errors.WithContext(err, "parse")
	}

	seen := map[string]bool{}
	for i := range config.Profiles {
		profile := &config.Profiles[i]
		if err := normalizeProfile(profile, path); err != nil {
			return Config{}, err
		}
		if seen[profile.Name] {
			return Config{}, errors.NewFriendlyError(
				"The profile %q is defined more than once in %q.",
				profile.Name, path)
		}
		seen[profile.Name] = true
	}
	return config, nil
}

// Lookup returns the profile with the given name.
func (c Config) Lookup(name string) (Profile, bool) {
	for _, profile := range c.Profiles {
		if profile.Name == name {
			return profile, true
		}
	}
	return Profile{}, false
}

// RetryPolicy returns the profile's retry settings, falling back to the
// defaults for any unset field.
func (p Profile) RetryPolicy() retry.Policy {
	policy := retry.Default()
	if p.Retries != 0 {
		policy.MaxAttempts = p.Retries
	}
	if p.retryDelay != 0 {
		policy.InitialDelay = p.retryDelay
	}
	if p.BackoffFactor != 0 {
		policy.BackoffFactor = p.BackoffFactor
	}
	return policy
}

// ModTimeTolerance returns the profile's modification time tolerance, or the
// default when unset.
func (p Profile) ModTimeTolerance() time.Duration {
	if p.tolerance != 0 {
		return p.tolerance
	}
	return plan.DefaultModTimeTolerance
}

func normalizeProfile(profile *Profile, configPath string) error {
	if profile.Name == "" {
		return errors.NewFriendlyError(
			"A profile in %q does not have a name set.\n"+
				"The name field is required so the profile can be "+
				"selected with --profile.", configPath)
	}
	if profile.Source == "" {
		return profileFieldError(profile.Name, "source")
	}
	if profile.Dest == "" {
		return profileFieldError(profile.Name, "dest")
	}

	if profile.Mode == "" {
		profile.Mode = string(plan.Update)
	}
	if _, err := plan.ParseMode(profile.Mode); err != nil {
		return errors.WithContext(err, "profile "+profile.Name)
	}

	for _, field := range []struct {
		value  string
		parsed *time.Duration
		name   string
	}{
		{profile.RetryDelay, &profile.retryDelay, "retryDelay"},
		{profile.Tolerance, &profile.tolerance, "tolerance"},
	} {
		if field.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(field.value)
		if err != nil {
			return errors.NewFriendlyError(
				"The %s %q in profile %q is not a valid duration. "+
					"Use a value like \"500ms\" or \"2s\".",
				field.name, field.value, profile.Name)
		}
		*field.parsed = parsed
	}

	// Expand ~'s and evaluate relative paths relative to the config file.
	for _, path := range []*string{&profile.Source, &profile.Dest, &profile.TrashDir} {
		if *path == "" {
			continue
		}
		expanded, err := homedirExpand(*path)
		if err != nil {
			return errors.WithContext(err, "expand path")
		}
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Join(filepath.Dir(configPath), expanded)
		}
		*path = filepath.Clean(expanded)
	}
	return nil
}

func profileFieldError(profile, field string) error {
	return errors.NewFriendlyError(
		"The profile %q does not set %q.\n"+
			"Both source and dest are required.", profile, field)
}
