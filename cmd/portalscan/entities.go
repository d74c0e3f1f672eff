package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

var entitiesCmd = &cobra.Command{
	Use:     "entities",
	Aliases: []string{"entity"},
	Short:   "Manage the scanned entities",
	Long: `Manage the entities scanned against the portal. A running server notices
population changes within POPULATION_POLL_INTERVAL and re-arms its schedule.`,
}

var (
	entityFirm          string
	entityTax           string
	entityUser          string
	entityPassword      string
	entityPasswordStdin bool
	entityStatus        string
	entityAll           bool
)

var entitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.repos.Entity.List(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFIRM\tTAX NUMBER\tUSER CODE\tSTATUS")
		for _, e := range list {
			if !entityAll && !e.IsActive() {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.FirmName, e.TaxNumber, e.UserCode, e.Status)
		}
		return tw.Flush()
	},
}

var entitiesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an active entity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		password, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if entityFirm == "" || entityUser == "" || password == "" {
			return errors.New("--firm, --user and a password are required")
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.entities.CreateEntity(cmd.Context(), entityFirm, entityTax, entityUser, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created entity %s (%s)\n", e.ID, e.FirmName)
		return nil
	},
}

var entitiesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if password != "" {
			if err := a.entities.UpdatePassword(ctx, args[0], password); err != nil {
				return err
			}
		}

		e, err := a.repos.Entity.GetByID(ctx, args[0])
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("firm") {
			e.FirmName = entityFirm
		}
		if flags.Changed("tax") {
			e.TaxNumber = entityTax
		}
		if flags.Changed("user") {
			e.UserCode = entityUser
		}
		if flags.Changed("status") {
			status := models.EntityStatus(entityStatus)
			if status != models.EntityStatusActive && status != models.EntityStatusInactive {
				return fmt.Errorf("invalid status %q", entityStatus)
			}
			e.Status = status
		}
		if err := a.repos.Entity.Update(ctx, e); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated entity %s\n", e.ID)
		return nil
	},
}

var entitiesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Exclude an entity from future scans",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.repos.Entity.SetStatus(cmd.Context(), args[0], models.EntityStatusInactive); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deactivated entity %s\n", args[0])
		return nil
	},
}

func init() {
	entitiesListCmd.Flags().BoolVar(&entityAll, "all", false, "Include inactive entities")

	for _, c := range []*cobra.Command{entitiesAddCmd, entitiesUpdateCmd} {
		c.Flags().StringVar(&entityFirm, "firm", "", "Firm name")
		c.Flags().StringVar(&entityTax, "tax", "", "Tax number")
		c.Flags().StringVar(&entityUser, "user", "", "Portal user code")
		c.Flags().StringVar(&entityPassword, "password", "", "Portal password")
		c.Flags().BoolVar(&entityPasswordStdin, "password-stdin", false, "Read the portal password from stdin")
	}
	entitiesUpdateCmd.Flags().StringVar(&entityStatus, "status", "", "active or inactive")

	entitiesCmd.AddCommand(entitiesListCmd, entitiesAddCmd, entitiesUpdateCmd, entitiesDeactivateCmd)
	rootCmd.AddCommand(entitiesCmd)
}

// readPassword returns --password, or the first line of r with
// --password-stdin.
func readPassword(r io.Reader) (string, error) {
	if !entityPasswordStdin {
		return entityPassword, nil
	}
	if entityPassword != "" {
		return "", errors.New("--password and --password-stdin are mutually exclusive")
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
