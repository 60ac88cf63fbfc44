package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskpal/deskpal/internal/ai"
	"github.com/deskpal/deskpal/internal/companion"
	"github.com/deskpal/deskpal/internal/config"
	"github.com/deskpal/deskpal/internal/db"
	"github.com/deskpal/deskpal/internal/schedule"
)

// ReminderCmd manages the active character's reminders.
func ReminderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminder",
		Short: "Manage reminders",
	}
	cmd.AddCommand(reminderListCmd())
	cmd.AddCommand(reminderAddCmd())
	cmd.AddCommand(reminderRemoveCmd())
	return cmd
}

func reminderListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the schedule for the active character",
		Run: func(cmd *cobra.Command, args []string) {
			st, _, err := openStore()
			if err != nil {
				fatal(err)
			}
			snap, err := st.CurrentSnapshot()
			if err != nil {
				fatal(err)
			}
			now := time.Now()
			table := schedule.NewTable()
			table.Rebuild(schedule.FromCharacter(snap, now), now)

			entries := table.Snapshot()
			if len(entries) == 0 {
				fmt.Println("Nothing scheduled.")
				return
			}
			for _, e := range entries {
				label := string(e.Kind)
				if e.Label != "" {
					label += " (" + e.Label + ")"
				}
				fmt.Printf("%-30s %s\n", label, e.FireAt.Format("Mon 15:04"))
			}
		},
	}
}

func reminderAddCmd() *cobra.Command {
	var interval float64
	var count int
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a countdown reminder",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, _, err := openStore()
			if err != nil {
				fatal(err)
			}
			r, err := st.AddCountdown(strings.Join(args, " "), interval, count)
			if err != nil {
				fatal(err)
			}
			fmt.Printf("Added reminder %s: every %g minutes, %d times\n", r.ID, interval, count)
		},
	}
	cmd.Flags().Float64VarP(&interval, "interval", "i", 30, "minutes between firings")
	cmd.Flags().IntVarP(&count, "count", "c", 1, "number of firings")
	return cmd
}

func reminderRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a countdown reminder",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, _, err := openStore()
			if err != nil {
				fatal(err)
			}
			if err := st.RemoveCountdown(args[0]); err != nil {
				fatal(err)
			}
			fmt.Println("Removed.")
		},
	}
}

// MedCmd manages medication reminders.
func MedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "med",
		Short: "Manage medication reminders",
	}

	var times []string
	var notes string
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a medication reminder",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, _, err := openStore()
			if err != nil {
				fatal(err)
			}
			id, err := st.AddMedication(args[0], times, notes)
			if err != nil {
				fatal(err)
			}
			fmt.Printf("Added medication %s (%s) at %s\n", args[0], id, strings.Join(times, ", "))
		},
	}
	addCmd.Flags().StringSliceVarP(&times, "time", "t", []string{"08:00"}, "daily times (HH:MM)")
	addCmd.Flags().StringVar(&notes, "notes", "", "dosage notes")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List medication reminders",
		Run: func(cmd *cobra.Command, args []string) {
			st, _, err := openStore()
			if err != nil {
				fatal(err)
			}
			snap, err := st.CurrentSnapshot()
			if err != nil {
				fatal(err)
			}
			for _, m := range snap.Health.Medications {
				state := "on"
				if !m.Enabled {
					state = "off"
				}
				fmt.Printf("%s  %-20s %s [%s]\n", m.ID, m.Name, strings.Join(m.Times, ", "), state)
			}
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a medication reminder",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, _, err := openStore()
			if err != nil {
				fatal(err)
			}
			if err := st.RemoveMedication(args[0]); err != nil {
				fatal(err)
			}
			fmt.Println("Removed.")
		},
	}

	cmd.AddCommand(addCmd, listCmd, removeCmd)
	return cmd
}

// DrinkCmd records one cup of water.
func DrinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drink",
		Short: "Record a cup of water",
		Run: func(cmd *cobra.Command, args []string) {
			st, _, err := openStore()
			if err != nil {
				fatal(err)
			}
			cups, target, err := st.RecordDrink()
			if err != nil {
				fatal(err)
			}
			fmt.Printf("Logged. %g of %g cups today.\n", cups, target)
		},
	}
}

// ChatCmd sends one message to the active character.
func ChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Talk to the active character",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, dataDir, err := openStore()
			if err != nil {
				fatal(err)
			}
			templates := ai.LoadTemplates(config.PromptsPath(dataDir))
			session := companion.New(companion.Options{
				Store:     st,
				Generator: ai.NewClient(st, templates, nil),
			})
			reply, err := session.Chat(context.Background(), strings.Join(args, " "))
			if err != nil {
				fatal(err)
			}
			fmt.Println(reply)
		},
	}
}

// HistoryCmd shows recent reminder firings.
func HistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent reminder firings",
		Run: func(cmd *cobra.Command, args []string) {
			_, dataDir, err := openStore()
			if err != nil {
				fatal(err)
			}
			history, err := db.NewSQLite(config.HistoryDBPath(dataDir))
			if err != nil {
				fatal(err)
			}
			defer history.Close()

			records, err := history.ListRecent(limit)
			if err != nil {
				fatal(err)
			}
			if len(records) == 0 {
				fmt.Println("No history yet.")
				return
			}
			for _, rec := range records {
				line := fmt.Sprintf("%s  %-10s %-9s", rec.FiredAt.Local().Format("2006-01-02 15:04"), rec.Kind, rec.Outcome)
				if rec.Label != "" {
					line += "  " + rec.Label
				}
				if rec.Error != "" {
					line += "  (" + rec.Error + ")"
				}
				fmt.Println(line)
			}
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	return cmd
}
