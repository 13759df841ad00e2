package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/beanstack/pkg/engine"
	"github.com/openfroyo/beanstack/pkg/settings"
)

type templateView struct {
	Family      string                        `json:"family"`
	Template    string                        `json:"template"`
	Fingerprint string                        `json:"fingerprint"`
	Settings    []engine.ConfigurationSetting `json:"settings"`
}

func newSettingsCommand() *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Print the built configuration template settings",
		Long: `Build the settings of each template family from the property file and
print them with their fingerprint. Nothing is read from or written to AWS.`,
		Example: `  # All families
  beanstack settings

  # Only the portal family, as JSON
  beanstack settings --family portal --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadStack()
			if err != nil {
				return err
			}

			requests, err := buildTemplates(cfg)
			if err != nil {
				return err
			}

			names := engine.NewTemplateManager(nil, cfg.TemplatePrefix(), settings.Fingerprint, log.Logger)
			var views []templateView
			for _, tr := range requests {
				if family != "" && tr.Family != family {
					continue
				}
				views = append(views, templateView{
					Family:      tr.Family,
					Template:    names.TemplateName(tr.Family),
					Fingerprint: settings.Fingerprint(tr.Settings),
					Settings:    tr.Settings,
				})
			}
			if family != "" && len(views) == 0 {
				return fmt.Errorf("no service uses template family %q", family)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, views)
			}

			for i, v := range views {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "# %s (family %s, fingerprint %s)\n", v.Template, v.Family, v.Fingerprint)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, s := range v.Settings {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Namespace, s.OptionName, s.Value)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&family, "family", "f", "", "only print this template family")

	return cmd
}
