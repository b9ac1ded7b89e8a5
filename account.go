package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/julez-dev/encore/save"
)

var accountCMD = &cli.Command{
	Name:        "account",
	Description: "Encore account management",
	Usage:       "Manage the platform accounts used by Encore",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "plain-credentials",
			Usage: "Store credentials in a plain file instead of the system keyring",
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "list",
			Usage: "List all stored accounts",
			Action: func(_ context.Context, command *cli.Command) error {
				provider := accountProviderFrom(command)

				accounts, err := provider.GetAllAccounts()
				if err != nil {
					return fmt.Errorf("failed to load accounts: %w", err)
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPLATFORM\tMAIN")

				for _, a := range accounts {
					if a.IsAnonymous {
						continue
					}

					fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", a.ID, a.DisplayName, a.Platform, a.IsMain)
				}

				return w.Flush()
			},
		},
		{
			Name:  "add",
			Usage: "Store a new account",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "id", Usage: "The platform's user ID", Required: true},
				&cli.StringFlag{Name: "name", Usage: "The account's display name", Required: true},
				&cli.StringFlag{Name: "platform", Usage: "twitch or trovo", Value: "twitch"},
				&cli.StringFlag{Name: "access-token", Usage: "OAuth access token", Required: true},
				&cli.StringFlag{Name: "refresh-token", Usage: "OAuth refresh token"},
				&cli.BoolFlag{Name: "main", Usage: "Mark the account as the main account"},
			},
			Action: func(_ context.Context, command *cli.Command) error {
				provider := accountProviderFrom(command)

				if err := provider.Add(save.Account{
					ID:           command.String("id"),
					Platform:     command.String("platform"),
					DisplayName:  command.String("name"),
					AccessToken:  command.String("access-token"),
					RefreshToken: command.String("refresh-token"),
					IsMain:       command.Bool("main"),
				}); err != nil {
					return fmt.Errorf("failed to add account: %w", err)
				}

				fmt.Println("account added")

				return nil
			},
		},
		{
			Name:      "remove",
			Usage:     "Remove a stored account",
			ArgsUsage: "<account-id>",
			Action: func(_ context.Context, command *cli.Command) error {
				id := command.Args().First()
				if id == "" {
					return fmt.Errorf("account id argument missing")
				}

				if err := accountProviderFrom(command).Remove(id); err != nil {
					return fmt.Errorf("failed to remove account: %w", err)
				}

				fmt.Println("account removed")

				return nil
			},
		},
		{
			Name:      "set-main",
			Usage:     "Mark an account as the main account",
			ArgsUsage: "<account-id>",
			Action: func(_ context.Context, command *cli.Command) error {
				id := command.Args().First()
				if id == "" {
					return fmt.Errorf("account id argument missing")
				}

				if err := accountProviderFrom(command).MarkAccountAsMain(id); err != nil {
					return fmt.Errorf("failed to mark account as main: %w", err)
				}

				fmt.Println("main account updated")

				return nil
			},
		},
	},
}

func accountProviderFrom(command *cli.Command) save.AccountProvider {
	return save.NewAccountProvider(credentialStore(command, afero.NewOsFs()))
}
