package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"checkinbot/internal/domain"
	"checkinbot/internal/store"

	"github.com/spf13/cobra"
)

func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the contact roster",
	}

	var name, phone string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a contact to the roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			if phone == "" && name == "" {
				return fmt.Errorf("at least one of --name or --phone is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			recordStore, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("record store: %w", err)
			}
			defer recordStore.Close()

			id, err := recordStore.Add(cmd.Context(), domain.Contact{Name: name, Phone: phone})
			if err != nil {
				return err
			}
			logger.Info("contact added", "id", id, "name", name, "phone", phone)
			logger.Info("run 'checkinbot rebuild' so replies from this contact correlate")
			return nil
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "contact name")
	addCmd.Flags().StringVar(&phone, "phone", "", "contact phone number")
	cmd.AddCommand(addCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the contact roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			recordStore, err := store.NewSQLiteStore(cfg.Store.DBPath, logger)
			if err != nil {
				return fmt.Errorf("record store: %w", err)
			}
			defer recordStore.Close()

			contacts, err := recordStore.ListAll(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPHONE\tLAST STATUS\tLAST REPLY")
			for _, c := range contacts {
				reply := c.LastReplyBody
				if c.LastReplyAt != nil {
					reply = fmt.Sprintf("%s (%s)", reply, c.LastReplyAt.Format("2006-01-02 15:04"))
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Phone, c.LastDeliveryStatus, reply)
			}
			return w.Flush()
		},
	})

	return cmd
}
