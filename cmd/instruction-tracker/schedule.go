package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/instruction-tracker/internal/service"
)

func newScheduleCommand(root *rootOptions) *cobra.Command {
	var (
		frequency string
		hour      int
		command   string
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Сформировать строку crontab для рассылки напоминаний",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sched, err := service.CronLine(service.Frequency(frequency), hour, command)
			if err != nil {
				return fmt.Errorf("%w (frequency: daily|weekly|monthly, hour: 0-23)", err)
			}

			out := cmd.OutOrStdout()
			if ok, err := writeStructured(out, root.format, sched); ok {
				return err
			}
			fmt.Fprintln(out, sched.Line)
			return nil
		},
	}

	cmd.Flags().StringVar(&frequency, "frequency", string(service.FrequencyDaily), "периодичность (daily|weekly|monthly)")
	cmd.Flags().IntVar(&hour, "hour", 9, "час запуска (0-23)")
	cmd.Flags().StringVar(&command, "command", service.DefaultRemindCommand, "команда для запуска")

	return cmd
}
