package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/Ewasince/photo-compresser/internal/profile"
	"github.com/Ewasince/photo-compresser/internal/report"
	"github.com/Ewasince/photo-compresser/internal/statistics"
)

// selectCmd shows which profile an image would get.
var selectCmd = &cobra.Command{
	Use:   "select <file>",
	Short: "Show the measured properties of an image and the profile it selects",
	Long: `Measures the image, evaluates every profile's conditions against it and
prints the per-condition results. This is useful for debugging why an
image got a particular profile.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSelect(args[0])
	},
}

// profilesCmd groups the profile file commands.
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Create, list and validate profile files",
}

var profilesInitCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Write a starter profile file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if fileExists(args[0]) {
			return fmt.Errorf("file already exists: %s", args[0])
		}
		if err := profile.Save(profile.DefaultRegistry(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Wrote default profiles to %s\n", args[0])
		return nil
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <file> [name]",
	Short: "List the profiles of a file in precedence order, or one profile by name",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		return showProfiles(args[0], name)
	},
}

var profilesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a profile file for errors",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !fileExists(args[0]) {
			return fmt.Errorf("file does not exist: %s", args[0])
		}
		reg, err := profile.Load(args[0])
		if err != nil {
			return err
		}
		if err := reg.Validate(); err != nil {
			return err
		}
		fmt.Printf("%s: %d profiles OK\n", args[0], len(reg))
		return nil
	},
}

// reportCmd summarises a compression report.
var reportCmd = &cobra.Command{
	Use:   "report <file|output-dir>",
	Short: "Summarise a compression report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(args[0])
	},
}

func init() {
	profilesCmd.AddCommand(profilesInitCmd)
	profilesCmd.AddCommand(profilesShowCmd)
	profilesCmd.AddCommand(profilesValidateCmd)
}

// runSelect evaluates every profile against one file.
func runSelect(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := setupLogger(cfg)
	reg, err := loadProfiles(cfg, log)
	if err != nil {
		return err
	}

	ext := newExtractor(cfg, log)
	defer ext.Close()

	props, err := ext.Extract(filePath)
	if err != nil {
		return err
	}

	fmt.Printf("File: %s\n", filePath)
	fmt.Printf("Format: %s  Size: %dx%d  File size: %s  Transparency: %t\n",
		props.Format, props.Width, props.Height, humanize.IBytes(uint64(props.FileSize)), props.HasTransparency)
	if len(props.EXIF) > 0 {
		data, err := json.MarshalIndent(props.EXIF, "", "  ")
		if err == nil {
			fmt.Printf("EXIF (%s):\n%s\n", props.EXIFSource, data)
		}
	}

	sel := profile.SelectWithResults(props.Conditions(), reg)
	fmt.Println("\nProfiles (last match wins):")
	for i, p := range reg {
		results := sel.Results[p.Name]
		marker := " "
		if sel.Matched() && sel.Profile.Name == p.Name {
			marker = "*"
		}
		fmt.Printf("%s %2d. %-20s %s\n", marker, i+1, p.Name, formatResults(results))
	}

	if sel.Matched() {
		fmt.Printf("\nSelected: %s (%s, quality %d)\n", sel.Profile.Name, sel.Profile.OutputFormat, sel.Profile.ClampedQuality())
	} else {
		fmt.Printf("\nSelected: none, encoded with the first profile's settings and attributed as %s\n", profile.RawProfileName)
	}
	return nil
}

func formatResults(results map[string]bool) string {
	if len(results) == 0 {
		return "(no conditions)"
	}
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		mark := "no"
		if results[k] {
			mark = "ok"
		}
		parts[i] = fmt.Sprintf("%s=%s", k, mark)
	}
	return strings.Join(parts, " ")
}

// showProfiles prints every profile of the file, or only the named one.
func showProfiles(path, name string) error {
	reg, err := profile.Load(path)
	if err != nil {
		return err
	}
	if name == "" {
		printProfiles(reg)
		return nil
	}
	p, ok := reg.Find(name)
	if !ok {
		return fmt.Errorf("no profile named %q in %s (have: %s)", name, path, strings.Join(reg.Names(), ", "))
	}
	printProfiles(profile.Registry{p})
	return nil
}

func printProfiles(reg profile.Registry) {
	if len(reg) == 0 {
		fmt.Println("No profiles")
		return
	}
	for i, p := range reg {
		limits := ""
		if p.MaxLargestSide != nil {
			limits += fmt.Sprintf(" max_largest_side=%d", *p.MaxLargestSide)
		}
		if p.MaxSmallestSide != nil {
			limits += fmt.Sprintf(" max_smallest_side=%d", *p.MaxSmallestSide)
		}
		conditions := "always"
		if !p.Conditions.IsEmpty() {
			data, err := json.Marshal(p.Conditions)
			if err == nil {
				conditions = string(data)
			}
		}
		fmt.Printf("%2d. %s: %s quality %d%s, conditions %s\n",
			i+1, p.Name, p.OutputFormat, p.ClampedQuality(), limits, conditions)
	}
}

// runReport prints a report summary.
func runReport(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = report.Path(path)
	}
	rep, err := report.Read(path)
	if err != nil {
		return err
	}

	fmt.Printf("Run: %s (%s)\n", rep.RunID, rep.Status)
	fmt.Printf("Date: %s\n", rep.CompressionDate.Format("2006-01-02 15:04:05"))
	fmt.Printf("Input: %s\n", rep.Settings.InputDirectory)
	fmt.Printf("Output: %s\n", rep.Settings.OutputDirectory)
	fmt.Printf("Profiles: %s\n", strings.Join(rep.Profiles.Names(), ", "))
	fmt.Printf("Pairs: %d  Failed: %d\n", rep.TotalPairs, len(rep.FailedFiles))
	printRunStats(rep.Stats)

	for _, f := range rep.FailedFiles {
		fmt.Printf("  failed: %s: %s\n", f.Source, f.Error)
	}
	return nil
}

func printRunStats(s statistics.RunStatistics) {
	fmt.Printf("Size: %.2f MB -> %.2f MB (saved %.2f MB, %.2f%%)\n",
		s.InputSizeMB, s.OutputSizeMB, s.SpaceSavedMB, s.CompressionRatioPercent)
	fmt.Printf("Time: %s\n", s.ConversionTime)
}
