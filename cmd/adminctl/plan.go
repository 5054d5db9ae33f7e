package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage user plan assignments",
}

var planAssignCmd = &cobra.Command{
	Use:   "assign <user-id> <plan-id>",
	Short: "Assign a plan to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().AssignPlan(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("plan %s assigned to user %s\n", args[1], args[0])
		return nil
	},
}

var planRemoveCmd = &cobra.Command{
	Use:   "remove <user-id>",
	Short: "Remove a user's plan assignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().RemovePlan(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("plan removed from user %s\n", args[0])
		return nil
	},
}

func init() {
	planCmd.AddCommand(planAssignCmd)
	planCmd.AddCommand(planRemoveCmd)
}
