package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bigkaa/instruction-tracker/internal/config"
)

// Форматы вывода команд.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var validFormats = []string{formatText, formatJSON, formatYAML}

// rootOptions — общие флаги команд.
type rootOptions struct {
	format string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "instruction-tracker",
		Short:         "Реестр должностных инструкций",
		Long:          "Учёт должностных инструкций: файлы с версиями, контроль актуальности, напоминания, отчёты.",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if !slices.Contains(validFormats, opts.format) {
				return fmt.Errorf("недопустимый формат %q, допустимые: %v", opts.format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.format, "format", formatText, "формат вывода (text|json|yaml)")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newRemindCommand(opts))
	cmd.AddCommand(newScheduleCommand(opts))
	cmd.AddCommand(newReconcileCommand(opts))

	return cmd
}

// writeStructured выводит v в формате json или yaml.
// Возвращает false для текстового формата.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}
