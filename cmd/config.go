package cmd

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/eshiol/j3-rest-api/pkg/access"
	"github.com/eshiol/j3-rest-api/pkg/access/rbac"
	"github.com/eshiol/j3-rest-api/pkg/api"
	"github.com/eshiol/j3-rest-api/pkg/content"
	"github.com/google/uuid"
	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"

	servicesKey      = "services"
	policiesKey      = "policies"
	defaultEffectKey = "default-effect"
)

// loadConfigFile reads path, or config.yaml from the working directory when
// path is empty. A missing default config file is not an error.
func loadConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return errors.Wrap(err, "[cmd] - read config")
	}
	return nil
}

// serviceDefinitions returns the configured services and the file system their
// map paths are relative to. Without configured services the built-in
// definitions are served.
func serviceDefinitions(v *viper.Viper) ([]api.Definition, fs.FS, error) {
	var defs []api.Definition
	if err := v.UnmarshalKey(servicesKey, &defs); err != nil {
		return nil, nil, errors.Wrap(err, "[cmd] - parse services")
	}
	if len(defs) == 0 {
		return content.Builtin(), content.Schemas, nil
	}
	dir := "."
	if used := v.ConfigFileUsed(); used != "" {
		dir = filepath.Dir(used)
	}
	return defs, os.DirFS(dir), nil
}

type policyConfig struct {
	Subject string   `mapstructure:"subject"`
	Object  string   `mapstructure:"object"`
	Actions []string `mapstructure:"actions"`
	Effect  string   `mapstructure:"effect"`
}

// policies returns the configured access policies.
func policies(v *viper.Viper) ([]rbac.Policy, error) {
	var cfgs []policyConfig
	if err := v.UnmarshalKey(policiesKey, &cfgs); err != nil {
		return nil, errors.Wrap(err, "[cmd] - parse policies")
	}
	out := make([]rbac.Policy, 0, len(cfgs))
	for i, c := range cfgs {
		subject, err := uuid.Parse(c.Subject)
		if err != nil {
			return nil, errors.Wrapf(err, "[cmd] - policy %d subject", i)
		}
		effect, err := parseEffect(c.Effect)
		if err != nil {
			return nil, errors.Wrapf(err, "[cmd] - policy %d", i)
		}
		p := rbac.Policy{Subject: subject, Object: c.Object, Effect: effect}
		for _, a := range c.Actions {
			p.Actions = append(p.Actions, access.Action(strings.ToLower(a)))
		}
		out = append(out, p)
	}
	return out, nil
}

func parseEffect(s string) (rbac.Effect, error) {
	switch strings.ToLower(s) {
	case "allow", "":
		return rbac.Allow, nil
	case "deny":
		return rbac.Deny, nil
	}
	return rbac.Deny, errors.Newf("unknown effect %q", s)
}
