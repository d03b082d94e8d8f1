package cli

import (
	"fmt"

	"github.com/dl-alexandre/drivesync/internal/config"
	"github.com/dl-alexandre/drivesync/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Show and edit the drivesync configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration, including environment overrides",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value. Keys use the names shown by 'config show',
for example authMode, serviceAccountKeyFile or excludePatterns (comma-separated).`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	RunE:  runConfigReset,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration and history file locations",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd, configResetCmd, configPathCmd)
}

// configView shows a Config as key/value rows in table mode and as the
// plain object in JSON
type configView struct {
	*config.Config
}

func (v configView) Headers() []string { return []string{"Key", "Value"} }

func (v configView) Rows() [][]string {
	rows := make([][]string, 0, len(config.Keys()))
	for _, key := range config.Keys() {
		value, _ := v.Get(key)
		rows = append(rows, []string{key, value})
	}
	return rows
}

func (v configView) EmptyMessage() string { return "" }

func runConfigShow(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)
	return out.WriteSuccess("config.show", configView{appConfig})
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)
	key, value := args[0], args[1]

	cfg := *appConfig
	if err := cfg.Set(key, value); err != nil {
		return out.Fail("config.set", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).Build(), err))
	}
	if err := cfg.SaveTo(flags.Config); err != nil {
		return out.Fail("config.set", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to save configuration: %v", err)).Build(), err))
	}
	*appConfig = cfg

	out.Log("Configuration updated: %s = %s", key, value)
	return out.WriteSuccess("config.set", configView{appConfig})
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)

	cfg := config.DefaultConfig()
	if err := cfg.SaveTo(flags.Config); err != nil {
		return out.Fail("config.reset", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to reset configuration: %v", err)).Build(), err))
	}

	out.Log("Configuration reset to defaults")
	return out.WriteSuccess("config.reset", configView{cfg})
}

// pathList is the output of `config path`
type pathList struct {
	Config  string `json:"config"`
	History string `json:"history"`
}

func (p pathList) Headers() []string { return []string{"File", "Path"} }
func (p pathList) Rows() [][]string {
	return [][]string{{"config", p.Config}, {"history", p.History}}
}
func (p pathList) EmptyMessage() string { return "" }

func runConfigPath(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet)

	paths := pathList{Config: flags.Config}
	var err error
	if paths.Config == "" {
		if paths.Config, err = config.GetConfigPath(); err != nil {
			return out.Fail("config.path", err)
		}
	}
	if paths.History, err = config.GetHistoryPath(); err != nil {
		return out.Fail("config.path", err)
	}
	return out.WriteSuccess("config.path", paths)
}
