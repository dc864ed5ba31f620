package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/edgedir/rd/pkg/client"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var (
	directoryURL string
	cfgFile      string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rdctl",
	Short: "Resource directory CLI",
	Long: `rdctl is the command-line interface for a resource directory.

It registers endpoints with their link-format resource descriptions,
refreshes and removes registrations, and runs lookup queries.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.rdctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetDefault("directory_url", "http://localhost:8080")
		_ = viper.ReadInConfig()

		if directoryURL == "" {
			directoryURL = viper.GetString("directory_url")
		}
	},
}

func newClient() *client.Client {
	return client.New(directoryURL, client.WithTimeout(15*time.Second))
}

func cmdContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

var (
	regDomain   string
	regType     string
	regLifetime int
	regContext  string
	regPayload  string
)

var registerCmd = &cobra.Command{
	Use:   "register <endpoint-name>",
	Short: "Register an endpoint with the directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := regPayload
		if payload != "" && payload[0] == '@' {
			data, err := os.ReadFile(payload[1:])
			if err != nil {
				return fmt.Errorf("read payload file: %w", err)
			}
			payload = string(data)
		}

		ctx, cancel := cmdContext()
		defer cancel()
		res, err := newClient().Register(ctx, client.RegisterOptions{
			EndpointName:    args[0],
			Domain:          regDomain,
			EndpointType:    regType,
			LifetimeSeconds: regLifetime,
			Context:         regContext,
			Payload:         payload,
		})
		if err != nil {
			return err
		}
		if res.Created {
			fmt.Printf("registered %s (location %s)\n", args[0], res.Location)
		} else {
			fmt.Printf("refreshed %s\n", args[0])
		}
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <location>",
	Short: "Refresh a registration at its location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := regPayload
		if payload != "" && payload[0] == '@' {
			data, err := os.ReadFile(payload[1:])
			if err != nil {
				return fmt.Errorf("read payload file: %w", err)
			}
			payload = string(data)
		}

		ctx, cancel := cmdContext()
		defer cancel()
		if err := newClient().Update(ctx, args[0], client.UpdateOptions{
			LifetimeSeconds: regLifetime,
			Context:         regContext,
			Payload:         payload,
		}); err != nil {
			return err
		}
		fmt.Println("updated")
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <location>",
	Short: "Remove a registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()
		if err := newClient().Remove(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("removed")
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <location>",
	Short: "Read a registration's links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()
		links, err := newClient().ReadLinks(ctx, args[0], lookupFilter)
		if err != nil {
			return err
		}
		fmt.Println(links)
		return nil
	},
}

var lookupFilter string

var lookupCmd = &cobra.Command{
	Use:       "lookup {d|ep|res}",
	Short:     "Query the lookup function sets",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"d", "ep", "res"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		c := newClient()
		var (
			out string
			err error
		)
		switch args[0] {
		case "d":
			out, err = c.LookupDomains(ctx, lookupFilter)
		case "ep":
			out, err = c.LookupEndpoints(ctx, lookupFilter)
		case "res":
			out, err = c.LookupResources(ctx, lookupFilter)
		}
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the rdctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("rdctl", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&directoryURL, "directory", "", "directory base URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.rdctl/config.yaml)")

	for _, cmd := range []*cobra.Command{registerCmd, updateCmd} {
		cmd.Flags().IntVar(&regLifetime, "lifetime", 0, "registration lifetime in seconds")
		cmd.Flags().StringVar(&regContext, "context", "", "explicit context URI (scheme://host:port)")
		cmd.Flags().StringVar(&regPayload, "links", "", "link-format payload, or @file to read from disk")
	}
	registerCmd.Flags().StringVar(&regDomain, "domain", "", "registration domain")
	registerCmd.Flags().StringVar(&regType, "type", "", "endpoint type (et)")

	readCmd.Flags().StringVar(&lookupFilter, "filter", "", `attribute filter, e.g. "rt=temperature"`)
	lookupCmd.Flags().StringVar(&lookupFilter, "filter", "", `attribute filter, e.g. "rt=light&d=local"`)

	rootCmd.AddCommand(registerCmd, updateCmd, removeCmd, readCmd, lookupCmd, versionCmd)
}
