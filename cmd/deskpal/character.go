package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// CharacterCmd manages companion characters.
func CharacterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "character",
		Short: "Manage companion characters",
	}
	cmd.AddCommand(characterListCmd())
	cmd.AddCommand(characterCreateCmd())
	cmd.AddCommand(characterSwitchCmd())
	cmd.AddCommand(characterDeleteCmd())
	return cmd
}

func characterListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List characters",
		Run: func(cmd *cobra.Command, args []string) {
			st, _, err := openStore()
			if err != nil {
				fatal(err)
			}
			for _, info := range st.Characters() {
				marker := " "
				if info.Current {
					marker = "*"
				}
				fmt.Printf("%s %s  %s\n", marker, info.ID, info.Name)
			}
		},
	}
}

func characterCreateCmd() *cobra.Command {
	var persona, identity string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a character",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, _, err := openStore()
			if err != nil {
				fatal(err)
			}
			id, err := st.CreateCharacter(args[0], persona, identity)
			if err != nil {
				fatal(err)
			}
			fmt.Printf("Created %s (%s)\n", args[0], id)
		},
	}
	cmd.Flags().StringVar(&persona, "persona", "", "character persona description")
	cmd.Flags().StringVar(&identity, "identity", "", "how the character sees the user")
	return cmd
}

func characterSwitchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch <id>",
		Short: "Make a character active",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, _, err := openStore()
			if err != nil {
				fatal(err)
			}
			if err := st.SwitchCharacter(args[0]); err != nil {
				fatal(err)
			}
			fmt.Printf("Switched to %s\n", args[0])
		},
	}
}

func characterDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a character",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			st, _, err := openStore()
			if err != nil {
				fatal(err)
			}
			if err := st.DeleteCharacter(args[0]); err != nil {
				fatal(err)
			}
			fmt.Printf("Deleted %s\n", args[0])
		},
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
