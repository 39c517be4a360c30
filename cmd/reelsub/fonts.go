package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/reelsub/internal/fonts"
)

func newFontsCommand() *cobra.Command {
	fontsCmd := &cobra.Command{
		Use:   "fonts",
		Short: "Inspect caption font selection",
	}
	selector := fonts.NewSelector(fonts.DefaultRegistry())

	fontsCmd.AddCommand(newFontsLanguagesCommand(selector))
	fontsCmd.AddCommand(newFontsSelectCommand(selector))
	fontsCmd.AddCommand(newFontsValidateCommand(selector))
	return fontsCmd
}

func newFontsLanguagesCommand(selector *fonts.Selector) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported caption languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			for _, l := range selector.Registry().Languages() {
				rows = append(rows, []string{
					l.Code,
					l.Name,
					string(l.Direction),
					l.Script,
					strings.Join(l.Primary, ", "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Code", "Name", "Direction", "Script", "Primary fonts"}, rows, nil))
			return nil
		},
	}
}

func newFontsSelectCommand(selector *fonts.Selector) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "select [text]",
		Short: "Show the font decision for a language and caption text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) == 1 {
				text = args[0]
			}
			d, err := selector.Select(text, lang)
			if err != nil {
				return err
			}
			rows := [][]string{
				{"Language", d.Language},
				{"Script", d.Script},
				{"Direction", string(d.Direction)},
				{"Complex script", strconv.FormatBool(d.ComplexScript)},
				{"Primary", d.Primary},
				{"Fallbacks", strings.Join(d.Fallbacks, ", ")},
				{"Coverage", fmt.Sprintf("%.1f%% (%d/%d)", d.Coverage.Percentage, d.Coverage.Supported, d.Coverage.Total)},
				{"Missing", strings.Join(d.Coverage.Missing, " ")},
				{"Loading", string(d.LoadingStrategy)},
				{"Warnings", strings.Join(d.Warnings, "; ")},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Target language code (e.g. vi, ar, ja)")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

func newFontsValidateCommand(selector *fonts.Selector) *cobra.Command {
	var lang string
	var fontNames []string
	cmd := &cobra.Command{
		Use:   "validate [sample text]",
		Short: "Score fonts against a language sample",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sample := ""
			if len(args) == 1 {
				sample = args[0]
			}
			if len(fontNames) == 0 {
				cfg, err := selector.Registry().Language(lang)
				if err != nil {
					return err
				}
				fontNames = append(append(append([]string{}, cfg.Primary...), cfg.Secondary...), cfg.Fallback...)
			}

			var rows [][]string
			for _, name := range fontNames {
				v := selector.Validate(name, lang, sample)
				rows = append(rows, []string{
					v.Font,
					strconv.Itoa(v.Score),
					fmt.Sprintf("%.1f%%", v.Coverage.Percentage),
					strings.Join(v.Issues, "; "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Font", "Score", "Coverage", "Issues"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Language code to validate against")
	cmd.Flags().StringSliceVarP(&fontNames, "font", "f", nil, "Font families to score (defaults to the language's configured fonts)")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}
