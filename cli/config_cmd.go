package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/threefoldtech/go-flist/internal/colors"
	"github.com/threefoldtech/go-flist/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get and set flist configuration options",
	Long: `Get and set flist configuration options.

Configuration can be set at two levels:
- Global (~/.flistconfig) - applies to every archive
- Archive (<dir>/config.json) - applies only to the archive given by --dir

Examples:
  flist config --list
  flist config identity.uname
  flist config identity.uname root
  flist config --global backend.host cache.example.com`,
	RunE: runConfig,
}

var (
	configGlobal bool
	configList   bool
)

func init() {
	configCmd.Flags().BoolVar(&configGlobal, "global", false, "use the global config file")
	configCmd.Flags().BoolVar(&configList, "list", false, "list all configuration")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configList {
		return listConfig()
	}
	switch len(args) {
	case 1:
		return getConfigValue(args[0])
	case 2:
		return setConfigValue(args[0], args[1], configGlobal)
	default:
		return fmt.Errorf("invalid usage, see: flist config --help")
	}
}

func listConfig() error {
	cfg, err := config.LoadConfig(archiveDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(colors.SectionHeader("Identity:"))
	fmt.Printf("  identity.uname = %s\n", colors.InfoText(cfg.Identity.Uname))
	fmt.Printf("  identity.gname = %s\n", colors.InfoText(cfg.Identity.Gname))

	fmt.Println()
	fmt.Println(colors.SectionHeader("Backend:"))
	if cfg.Backend.Host != "" {
		fmt.Printf("  backend.host = %s\n", colors.InfoText(cfg.Backend.Host))
		fmt.Printf("  backend.port = %s\n", colors.InfoText(fmt.Sprintf("%d", cfg.Backend.Port)))
		fmt.Printf("  backend.namespace = %s\n", colors.InfoText(cfg.Backend.Namespace))
	} else {
		fmt.Printf("  %s\n", colors.Gray("(no backend configured, offline dry-run mode)"))
	}
	return nil
}

func getConfigValue(key string) error {
	value, err := config.GetValue(archiveDir, key)
	if err != nil {
		return err
	}
	if value == "" {
		fmt.Printf("%s is %s\n", key, colors.Gray("(not set)"))
	} else {
		fmt.Println(value)
	}
	return nil
}

func setConfigValue(key, value string, global bool) error {
	if err := config.SetValue(archiveDir, key, value, global); err != nil {
		return err
	}
	scope := "archive"
	if global {
		scope = "global"
	}
	fmt.Printf("%s %s config: %s = %s\n",
		colors.SuccessText("Set"), scope, colors.Bold(key), colors.InfoText(value))
	return nil
}
