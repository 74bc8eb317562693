package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigkaa/instruction-tracker/internal/service"
)

func newRemindCommand(root *rootOptions) *cobra.Command {
	var (
		kind string
		send bool
	)

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Показать или отправить напоминания ответственным",
		Long: "Без --send выводит список напоминаний. С --send отправляет письма через SMTP.\n" +
			"Предназначена для запуска по расписанию (см. команду schedule).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := service.ParseReminderKind(kind)
			if err != nil {
				return fmt.Errorf("--kind: допустимы outdated, nofile")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			reminders := service.NewReminderService(a.records, a.mailer, a.logger)
			out := cmd.OutOrStdout()

			if !send {
				plan, err := reminders.Plan(k)
				if err != nil {
					return err
				}
				if ok, err := writeStructured(out, root.format, plan); ok {
					return err
				}
				printPlan(out, plan)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := reminders.Send(ctx, k, nil)
			if err != nil {
				return err
			}
			if ok, err := writeStructured(out, root.format, result); ok {
				return err
			}
			fmt.Fprintf(out, "Отправлено %d из %d\n", result.Sent, result.Total)
			for _, f := range result.Failed {
				fmt.Fprintf(out, "  ошибка %s (%s): %s\n", f.Email, f.RecordID, f.Error)
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("не отправлено писем: %d", len(result.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", string(service.ReminderOutdated), "вид напоминаний (outdated|nofile)")
	cmd.Flags().BoolVar(&send, "send", false, "отправить письма")

	return cmd
}

func printPlan(w io.Writer, plan []service.Reminder) {
	if len(plan) == 0 {
		fmt.Fprintln(w, "Напоминаний нет")
		return
	}
	for _, r := range plan {
		fmt.Fprintf(w, "%s\t%s\t%s <%s>\t%s\n", r.RecordID, r.Title, r.Responsible, r.Email, r.LastUpdate)
	}
	fmt.Fprintf(w, "Всего: %d\n", len(plan))
}
