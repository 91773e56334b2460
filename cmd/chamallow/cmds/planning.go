package cmds

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/taomfnbd/chamalloW/pkg/events"
)

func NewPlanningCommand() *cobra.Command {
	var platform string
	var days []string
	var postTime string
	var frequency string

	cmd := &cobra.Command{
		Use:   "planning",
		Short: "Push content-scheduling preferences to the planning webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := &events.PlanningConfig{
				Platform:  platform,
				Days:      days,
				Time:      postTime,
				Frequency: frequency,
				UpdatedAt: time.Now(),
			}
			return publishConfig(cmd.Context(), events.TopicPlanningConfig, config)
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "linkedin", "Platform the schedule applies to")
	cmd.Flags().StringSliceVarP(&days, "days", "d", []string{"monday", "wednesday", "friday"}, "Active posting days")
	cmd.Flags().StringVarP(&postTime, "time", "t", "09:00", "Posting time")
	cmd.Flags().StringVarP(&frequency, "frequency", "f", "weekly", "Posting frequency")

	return cmd
}
