package main

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"crossbridge/internal/config"
)

var (
	configFormat   string
	configShowDiff bool
	configForce    bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage crossbridge configuration",
	Long:  "View and manage configuration stored in .crossbridge/config.json",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after defaults, config.json and CROSSBRIDGE_*
environment overrides are applied. Secrets are masked.

Examples:
  crossbridge config show
  crossbridge config show --format=json
  crossbridge config show --diff       # Only show non-default values`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "human", "Output format (json, human)")
	configShowCmd.Flags().BoolVar(&configShowDiff, "diff", false, "Only show non-default values")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config.json")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// ConfigShowResponse is the response format for config show
type ConfigShowResponse struct {
	ConfigPath string                 `json:"configPath"`
	FileExists bool                   `json:"fileExists"`
	Config     map[string]interface{} `json:"config"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	configMap, err := toMap(cfg)
	if err != nil {
		return err
	}
	if configShowDiff {
		defaults, err := toMap(config.DefaultConfig())
		if err != nil {
			return err
		}
		configMap = computeDiff(configMap, defaults)
	}
	maskSecrets(configMap)

	path := config.ConfigPath(root)
	_, statErr := os.Stat(path)
	resp := &ConfigShowResponse{ConfigPath: path, FileExists: statErr == nil, Config: configMap}

	if OutputFormat(configFormat) == FormatJSON {
		return writeResponse(cmd.OutOrStdout(), resp, FormatJSON)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "crossbridge configuration")
	fmt.Fprintln(out, strings.Repeat("─", 50))
	if resp.FileExists {
		fmt.Fprintf(out, "Source: %s\n\n", path)
	} else {
		fmt.Fprintln(out, "Source: defaults (no config file found)")
		fmt.Fprintln(out)
	}
	flat := make(map[string]string)
	flatten("", configMap, flat)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %s = %s\n", k, flat[k])
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	path := config.ConfigPath(root)
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(root); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func toMap(cfg *config.Config) (map[string]interface{}, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// computeDiff keeps the entries of current that differ from defaults
func computeDiff(current, defaults map[string]interface{}) map[string]interface{} {
	diff := make(map[string]interface{})
	for k, v := range current {
		dv, ok := defaults[k]
		if !ok {
			diff[k] = v
			continue
		}
		vm, vIsMap := v.(map[string]interface{})
		dm, dIsMap := dv.(map[string]interface{})
		if vIsMap && dIsMap {
			if sub := computeDiff(vm, dm); len(sub) > 0 {
				diff[k] = sub
			}
			continue
		}
		if !reflect.DeepEqual(v, dv) {
			diff[k] = v
		}
	}
	return diff
}

func maskSecrets(m map[string]interface{}) {
	for k, v := range m {
		if sub, ok := v.(map[string]interface{}); ok {
			maskSecrets(sub)
			continue
		}
		lk := strings.ToLower(k)
		if s, ok := v.(string); ok && s != "" && (strings.Contains(lk, "secret") || strings.Contains(lk, "postgresurl")) {
			m[k] = "********"
		}
	}
}

func flatten(prefix string, m map[string]interface{}, out map[string]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]interface{}); ok {
			flatten(key, sub, out)
			continue
		}
		data, _ := json.Marshal(v)
		out[key] = string(data)
	}
}
