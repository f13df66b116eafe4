package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/vftune/pkg/config"
	"github.com/charlie0129/vftune/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Inspect or create the configuration file",
		GroupID: gTuning,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Long:  `Print the configuration 'vftune auto' would use, with every default filled in.`,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				conf, err := loadConfig()
				if err != nil {
					return err
				}
				if err := conf.Validate(); err != nil {
					return fmt.Errorf("invalid configuration: %w", err)
				}

				b, err := yaml.Marshal(conf.Effective())
				if err != nil {
					return fmt.Errorf("failed to marshal config: %w", err)
				}
				cmd.Print(string(b))
				return nil
			},
		},
		&cobra.Command{
			Use:   "init <path>",
			Short: "Write a configuration file with the defaults",
			Long:  `Write a configuration file with the defaults. The file is JSON with a .json extension, YAML otherwise.`,
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				conf := config.NewFileFromConfig(config.DefaultRawFileConfig(), args[0])
				if err := conf.Save(); err != nil {
					return err
				}
				logrus.Infof("config written to %s", args[0])
				return nil
			},
		},
	)

	return cmd
}
