package session

import "github.com/matheus3301/roomchat/internal/config"

const DefaultProfileName = "main"

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. config.toml default_profile
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultProfileName
}

// SetDefault records name as default_profile in the global config.
func SetDefault(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	cfg, err := config.Load(ConfigPath())
	if err != nil {
		cfg = &config.Config{}
	}
	cfg.DefaultProfile = name
	return config.Save(ConfigPath(), cfg)
}
