package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Avinash-1994/Nexxo-sub001/hmr"
	"github.com/Avinash-1994/Nexxo-sub001/pathmatch"
)

// defaultRulesFile is written by rules init when hmr.rulesFile is unset.
const defaultRulesFile = "hmr-rules.yaml"

var rulesInitForce bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the hot-update rule sets",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the effective rule sets",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesMatchCmd = &cobra.Command{
	Use:   "match <path>...",
	Short: "Show which rule sets match each path",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRulesMatch,
}

var rulesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective rule sets to the rules file",
	Long: `Writes the built-in rule sets, with any overrides from the config applied,
to hmr.rulesFile (default hmr-rules.yaml in the project root).`,
	Args: cobra.NoArgs,
	RunE: runRulesInit,
}

// effectiveRules is what the classifier consults.
func (p *project) effectiveRules() (*pathmatch.Matcher, error) {
	overrides, err := p.ruleOverrides()
	if err != nil {
		return nil, err
	}
	return hmr.DefaultRules().Merge(overrides), nil
}

func runRulesList(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	rules, err := p.effectiveRules()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, r := range rules.Rules() {
		fmt.Fprintf(out, "%s:\n", r.Name)
		for _, pattern := range r.Paths {
			fmt.Fprintf(out, "  %s\n", pattern)
		}
	}
	return nil
}

func runRulesMatch(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	rules, err := p.effectiveRules()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, a := range args {
		path := a
		if filepath.IsAbs(path) {
			path = rel(p.cfg.Root, path)
		}
		path = strings.TrimPrefix(filepath.ToSlash(path), "./")

		names := rules.MatchPath(path)
		if len(names) == 0 {
			fmt.Fprintf(out, "%s: (none)\n", path)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", path, strings.Join(names, ", "))
	}
	return nil
}

func runRulesInit(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	name := p.cfg.HMR.RulesFile
	if name == "" {
		name = defaultRulesFile
	}
	path := filepath.Join(p.cfg.Root, name)

	if !rulesInitForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", name)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	rules, err := p.effectiveRules()
	if err != nil {
		return err
	}
	if err := rules.SaveRules(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", name)
	if p.cfg.HMR.RulesFile == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "set hmr.rulesFile: %s in nexxo.yaml to use it\n", name)
	}
	return nil
}

func init() {
	rulesInitCmd.Flags().BoolVar(&rulesInitForce, "force", false, "Overwrite an existing rules file")
	rulesCmd.AddCommand(rulesListCmd, rulesMatchCmd, rulesInitCmd)
	rulesCmd.GroupID = groupDev
	rootCmd.AddCommand(rulesCmd)
}
